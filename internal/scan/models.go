package scan

import (
	"context"
	"time"

	"kycvault/pkg/domain"
)

type Verdict string

const (
	VerdictClean      Verdict = "clean"
	VerdictInfected   Verdict = "infected"
	VerdictSuspicious Verdict = "suspicious"
	VerdictError      Verdict = "error"
)

// Finding is what a scanner adapter reports for one buffer.
type Finding struct {
	Verdict Verdict
	Threats []string
	// Indicators explain a suspicious verdict. They are not threat names
	// and do not make the consensus infected.
	Indicators []string
	// Version identifies the engine or signature set that produced the finding.
	Version string
}

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Scanner,ResultStore

// Scanner is one malware-scanning adapter. Scan must honour ctx cancellation.
type Scanner interface {
	Name() string
	Version() string
	Scan(ctx context.Context, buf []byte) (Finding, error)
}

// Result is one scanner's outcome within a scan attempt. Immutable once stored.
type Result struct {
	ScanID         domain.ScanID
	DocumentID     domain.DocumentID
	OwnerID        domain.OwnerID
	Scanner        string
	ScannerVersion string
	Verdict        Verdict
	ThreatNames    []string
	Duration       time.Duration
	Error          string
	ScannedAt      time.Time
}

// Consensus is the reduced outcome of one scan attempt.
type Consensus struct {
	ScanID      domain.ScanID
	DocumentID  domain.DocumentID
	OwnerID     domain.OwnerID
	Verdict     Verdict
	ThreatNames []string
	// AssumedClean is set when no scanners were registered and the verdict
	// is clean by policy rather than by inspection.
	AssumedClean  bool
	Results       []Result
	ScannerCount  int
	CleanCount    int
	InfectedCount int
	ErrorCount    int
	Duration      time.Duration
	ScannedAt     time.Time
}

// Passed reports whether the upload may proceed.
func (c *Consensus) Passed() bool { return c != nil && c.Verdict == VerdictClean }

// ResultStore persists scan attempts.
type ResultStore interface {
	Save(ctx context.Context, consensus *Consensus) error
	ListByDocument(ctx context.Context, documentID domain.DocumentID) ([]*Consensus, error)
}
