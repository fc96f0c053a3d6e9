// Package scan runs every registered malware scanner against an upload and
// reduces their verdicts to one consensus.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/requestcontext"
)

const DefaultScannerTimeout = 30 * time.Second

var errScannerPanic = errors.New("scanner panicked")

type Orchestrator struct {
	scanners []Scanner
	store    ResultStore
	timeout  time.Duration
	sink     audit.Sink
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Orchestrator)

// WithTimeout bounds each scanner call independently.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithSink(sink audit.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an orchestrator over scanners in the given order. An empty list
// is allowed; every scan then returns an explicit assumed-clean consensus.
func New(scanners []Scanner, store ResultStore, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("scan result store is required")
	}
	for i, s := range scanners {
		if s == nil {
			return nil, fmt.Errorf("scanner %d is nil", i)
		}
	}
	o := &Orchestrator{
		scanners: append([]Scanner(nil), scanners...),
		store:    store,
		timeout:  DefaultScannerTimeout,
		sink:     audit.NopSink{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Scanners returns the registered adapter names in order.
func (o *Orchestrator) Scanners() []string {
	names := make([]string, len(o.scanners))
	for i, s := range o.scanners {
		names[i] = s.Name()
	}
	return names
}

// Scan runs all scanners concurrently, waits for every one of them, persists
// each result plus the consensus and returns the consensus. An infected
// consensus is reported to the sink before Scan returns. The returned error
// is non-nil only when persistence fails.
func (o *Orchestrator) Scan(ctx context.Context, buf []byte, documentID domain.DocumentID, ownerID domain.OwnerID) (*Consensus, error) {
	start := time.Now()
	consensus := &Consensus{
		ScanID:       domain.NewScanID(),
		DocumentID:   documentID,
		OwnerID:      ownerID,
		ScannerCount: len(o.scanners),
		ScannedAt:    requestcontext.Now(ctx),
	}

	if len(o.scanners) == 0 {
		consensus.Verdict = VerdictClean
		consensus.ThreatNames = []string{}
		consensus.AssumedClean = true
		o.logger.WarnContext(ctx, "no malware scanners registered; document assumed clean",
			"document_id", documentID, "owner_id", ownerID)
		o.sink.Record(ctx, audit.EventScanAssumedClean, audit.SeverityWarning, map[string]any{
			"document_id": documentID.String(),
			"owner_id":    ownerID.String(),
			"scan_id":     consensus.ScanID.String(),
		})
		if o.metrics != nil {
			o.metrics.AssumedClean.Inc()
		}
	} else {
		consensus.Results = o.fanOut(ctx, buf, consensus)
		consensus.Verdict, consensus.ThreatNames = Reduce(consensus.Results)
		for _, r := range consensus.Results {
			switch r.Verdict {
			case VerdictClean:
				consensus.CleanCount++
			case VerdictInfected:
				consensus.InfectedCount++
			case VerdictError:
				consensus.ErrorCount++
			}
		}
	}
	consensus.Duration = time.Since(start)

	if consensus.Verdict == VerdictInfected {
		o.logger.ErrorContext(ctx, "malware detected",
			"document_id", documentID, "owner_id", ownerID, "threats", consensus.ThreatNames)
		o.sink.Record(ctx, audit.EventMalwareDetected, audit.SeverityCritical, map[string]any{
			"document_id": documentID.String(),
			"owner_id":    ownerID.String(),
			"scan_id":     consensus.ScanID.String(),
			"threats":     consensus.ThreatNames,
			"scanners":    o.Scanners(),
		})
	}
	if o.metrics != nil {
		o.metrics.Verdicts.WithLabelValues(string(consensus.Verdict)).Inc()
		o.metrics.Duration.Observe(consensus.Duration.Seconds())
	}

	if err := o.store.Save(ctx, consensus); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist scan results", "scan_id", consensus.ScanID, "error", err)
		return consensus, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record scan results")
	}
	return consensus, nil
}

// fanOut runs every scanner in its own goroutine. Adapter failures are
// captured in the result and never returned to the group, so siblings are
// never cancelled.
func (o *Orchestrator) fanOut(ctx context.Context, buf []byte, c *Consensus) []Result {
	results := make([]Result, len(o.scanners))
	var g errgroup.Group
	for i, scanner := range o.scanners {
		g.Go(func() error {
			results[i] = o.runOne(ctx, scanner, buf, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, scanner Scanner, buf []byte, c *Consensus) (res Result) {
	start := time.Now()
	res = Result{
		ScanID:         c.ScanID,
		DocumentID:     c.DocumentID,
		OwnerID:        c.OwnerID,
		Scanner:        scanner.Name(),
		ScannerVersion: scanner.Version(),
		ThreatNames:    []string{},
		ScannedAt:      requestcontext.Now(ctx),
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "scanner panicked",
				"scanner", res.Scanner, "panic", r, "stack", string(debug.Stack()))
			res.Verdict = VerdictError
			res.Error = errScannerPanic.Error()
		}
		res.Duration = time.Since(start)
		if o.metrics != nil {
			o.metrics.ScannerVerdicts.WithLabelValues(res.Scanner, string(res.Verdict)).Inc()
			o.metrics.ScannerDuration.WithLabelValues(res.Scanner).Observe(res.Duration.Seconds())
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	finding, err := o.callWithDeadline(scanCtx, scanner, buf)
	if err != nil {
		res.Verdict = VerdictError
		res.Error = err.Error()
		o.logger.WarnContext(ctx, "scanner failed", "scanner", res.Scanner, "document_id", c.DocumentID, "error", err)
		return res
	}
	res.Verdict = finding.Verdict
	if finding.Version != "" {
		res.ScannerVersion = finding.Version
	}
	if len(finding.Threats) > 0 {
		res.ThreatNames = append([]string(nil), finding.Threats...)
	}
	if finding.Verdict == VerdictSuspicious {
		o.logger.WarnContext(ctx, "scanner flagged document as suspicious",
			"scanner", res.Scanner, "document_id", c.DocumentID, "indicators", finding.Indicators)
	}
	return res
}

// callWithDeadline returns when the scanner finishes or its deadline passes,
// whichever is first, so an adapter that ignores ctx cannot stall the join.
func (o *Orchestrator) callWithDeadline(ctx context.Context, scanner Scanner, buf []byte) (Finding, error) {
	type outcome struct {
		finding Finding
		err     error
		panic   any
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panic: r}
			}
		}()
		f, err := scanner.Scan(ctx, buf)
		done <- outcome{finding: f, err: err}
	}()

	select {
	case out := <-done:
		if out.panic != nil {
			panic(out.panic)
		}
		if out.err == nil && out.finding.Verdict == VerdictError {
			return Finding{}, errors.New("scanner reported an error verdict")
		}
		if out.err == nil && !validVerdict(out.finding.Verdict) {
			return Finding{}, fmt.Errorf("scanner returned unknown verdict %q", out.finding.Verdict)
		}
		return out.finding, out.err
	case <-ctx.Done():
		return Finding{}, fmt.Errorf("scanner timed out: %w", ctx.Err())
	}
}

func validVerdict(v Verdict) bool {
	switch v {
	case VerdictClean, VerdictInfected, VerdictSuspicious:
		return true
	}
	return false
}
