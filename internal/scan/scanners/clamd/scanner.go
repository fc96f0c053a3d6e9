// Package clamd scans buffers with a ClamAV daemon over its INSTREAM
// protocol. Calls go through a circuit breaker so a dead daemon costs one
// fast failure per upload instead of a dial timeout.
package clamd

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"kycvault/internal/scan"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/circuit"
)

const (
	Name             = "clamd"
	defaultChunkSize = 64 << 10
	defaultDial      = 5 * time.Second
)

var ErrCircuitOpen = errors.New("clamd circuit open")

type Scanner struct {
	addr      string
	network   string
	chunkSize int
	dialer    net.Dialer
	breaker   *circuit.Breaker
	sink      audit.Sink
	logger    *slog.Logger

	mu      sync.RWMutex
	version string
}

type Option func(*Scanner)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Scanner) { s.breaker = b }
}

func WithChunkSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func WithSink(sink audit.Sink) Option {
	return func(s *Scanner) { s.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// New targets addr, either host:port or unix:///path/to/clamd.sock.
func New(addr string, opts ...Option) (*Scanner, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("clamd address is required")
	}
	network := "tcp"
	if strings.HasPrefix(addr, "unix://") {
		network, addr = "unix", strings.TrimPrefix(addr, "unix://")
	}
	s := &Scanner{
		addr:      addr,
		network:   network,
		chunkSize: defaultChunkSize,
		dialer:    net.Dialer{Timeout: defaultDial},
		breaker:   circuit.New(Name, circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		sink:      audit.NopSink{},
		logger:    slog.Default(),
		version:   "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Scanner) Name() string { return Name }

// Version is the last version string reported by the daemon.
func (s *Scanner) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Scan streams buf to clamd. Daemon or transport failures are returned as
// errors; the orchestrator records them as an error verdict.
func (s *Scanner) Scan(ctx context.Context, buf []byte) (scan.Finding, error) {
	if !s.breaker.Allow() {
		return scan.Finding{}, ErrCircuitOpen
	}
	finding, err := s.instream(ctx, buf)
	if err != nil {
		s.recordFailure(ctx, err)
		return scan.Finding{}, err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "clamd circuit closed", "addr", s.addr)
	}
	return finding, nil
}

// Ping checks daemon liveness and refreshes the cached version.
func (s *Scanner) Ping(ctx context.Context) error {
	reply, err := s.command(ctx, "zVERSION\x00", nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.version = reply
	s.mu.Unlock()
	return nil
}

func (s *Scanner) instream(ctx context.Context, buf []byte) (scan.Finding, error) {
	reply, err := s.command(ctx, "zINSTREAM\x00", buf)
	if err != nil {
		return scan.Finding{}, err
	}
	return parseReply(reply)
}

func (s *Scanner) command(ctx context.Context, cmd string, stream []byte) (string, error) {
	conn, err := s.dialer.DialContext(ctx, s.network, s.addr)
	if err != nil {
		return "", fmt.Errorf("dial clamd: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, cmd); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}
	if stream != nil {
		if err := writeChunks(conn, stream, s.chunkSize); err != nil {
			return "", err
		}
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("read reply: %w", ctx.Err())
		}
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimSpace(string(bytes.TrimRight(reply, "\x00"))), nil
}

// writeChunks frames buf as <uint32 length><data> chunks and terminates the
// stream with a zero-length chunk.
func writeChunks(w io.Writer, buf []byte, chunkSize int) error {
	var header [4]byte
	for off := 0; off < len(buf); off += chunkSize {
		end := min(off+chunkSize, len(buf))
		binary.BigEndian.PutUint32(header[:], uint32(end-off))
		if _, err := w.Write(header[:]); err != nil {
			return fmt.Errorf("write chunk header: %w", err)
		}
		if _, err := w.Write(buf[off:end]); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	binary.BigEndian.PutUint32(header[:], 0)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	return nil
}

// parseReply understands "stream: OK", "stream: <name> FOUND" and
// "<message> ERROR".
func parseReply(reply string) (scan.Finding, error) {
	body := strings.TrimSpace(strings.TrimPrefix(reply, "stream:"))
	switch {
	case body == "OK":
		return scan.Finding{Verdict: scan.VerdictClean}, nil
	case strings.HasSuffix(body, " FOUND"):
		name := strings.TrimSpace(strings.TrimSuffix(body, " FOUND"))
		return scan.Finding{Verdict: scan.VerdictInfected, Threats: []string{name}}, nil
	case strings.HasSuffix(body, " ERROR"):
		return scan.Finding{}, fmt.Errorf("clamd error: %s", strings.TrimSuffix(body, " ERROR"))
	default:
		return scan.Finding{}, fmt.Errorf("unexpected clamd reply %q", reply)
	}
}

func (s *Scanner) recordFailure(ctx context.Context, err error) {
	_, change := s.breaker.RecordFailure()
	if !change.Opened {
		return
	}
	s.logger.ErrorContext(ctx, "clamd circuit opened", "addr", s.addr, "error", err)
	s.sink.Record(ctx, audit.EventScannerCircuitOpen, audit.SeverityWarning, map[string]any{
		"scanner": Name,
		"error":   err.Error(),
	})
}

var _ scan.Scanner = (*Scanner)(nil)
