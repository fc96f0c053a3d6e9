// Package signature is an in-process scanner: the EICAR test string, a
// SHA-256 blocklist, executable magic bytes and PDF active-content markers.
package signature

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"kycvault/internal/scan"
)

const (
	Name    = "signature"
	version = "builtin-2026.1"

	ThreatEICAR       = "Eicar-Test-Signature"
	ThreatBlocklisted = "Blocklisted.SHA256"
	ThreatPEBinary    = "Executable.PE"
	ThreatELFBinary   = "Executable.ELF"

	IndicatorPDFJS     = "PDF.ActiveContent.JavaScript"
	IndicatorPDFLaunch = "PDF.ActiveContent.Launch"
)

var eicar = []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

// Scanner checks buffers against built-in signatures.
type Scanner struct {
	blocklist map[string]struct{}
}

type Option func(*Scanner)

// WithBlocklist adds lowercase hex SHA-256 digests of known-bad files.
func WithBlocklist(hashes ...string) Option {
	return func(s *Scanner) {
		for _, h := range hashes {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" {
				s.blocklist[h] = struct{}{}
			}
		}
	}
}

func New(opts ...Option) *Scanner {
	s := &Scanner{blocklist: make(map[string]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadBlocklist reads one hex digest per line; blank lines and # comments are skipped.
func LoadBlocklist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist: %w", err)
	}
	defer f.Close()
	return parseBlocklist(f)
}

func parseBlocklist(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if b, err := hex.DecodeString(text); err != nil || len(b) != sha256.Size {
			return nil, fmt.Errorf("blocklist line %d: not a sha-256 hex digest", line)
		}
		out = append(out, strings.ToLower(text))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	return out, nil
}

func (s *Scanner) Name() string    { return Name }
func (s *Scanner) Version() string { return fmt.Sprintf("%s+%d", version, len(s.blocklist)) }

func (s *Scanner) Scan(ctx context.Context, buf []byte) (scan.Finding, error) {
	if err := ctx.Err(); err != nil {
		return scan.Finding{}, err
	}
	var threats []string
	if bytes.Contains(buf, eicar) {
		threats = append(threats, ThreatEICAR)
	}
	if len(s.blocklist) > 0 {
		sum := sha256.Sum256(buf)
		if _, ok := s.blocklist[hex.EncodeToString(sum[:])]; ok {
			threats = append(threats, ThreatBlocklisted)
		}
	}
	switch {
	case bytes.HasPrefix(buf, []byte("MZ")):
		threats = append(threats, ThreatPEBinary)
	case bytes.HasPrefix(buf, []byte("\x7fELF")):
		threats = append(threats, ThreatELFBinary)
	}
	if len(threats) > 0 {
		return scan.Finding{Verdict: scan.VerdictInfected, Threats: threats}, nil
	}

	// Active content in a PDF is unusual for identity documents but not
	// malicious on its own.
	if bytes.HasPrefix(buf, []byte("%PDF-")) {
		var markers []string
		if bytes.Contains(buf, []byte("/JavaScript")) || bytes.Contains(buf, []byte("/JS ")) {
			markers = append(markers, IndicatorPDFJS)
		}
		if bytes.Contains(buf, []byte("/Launch")) {
			markers = append(markers, IndicatorPDFLaunch)
		}
		if len(markers) > 0 {
			return scan.Finding{Verdict: scan.VerdictSuspicious, Indicators: markers}, nil
		}
	}
	return scan.Finding{Verdict: scan.VerdictClean}, nil
}

var _ scan.Scanner = (*Scanner)(nil)
