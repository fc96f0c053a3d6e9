package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"kycvault/internal/scan"
	"kycvault/pkg/domain"
	txcontext "kycvault/pkg/platform/tx"
)

// Store persists scan attempts to scan_consensus and scan_results. Both
// tables are insert-only.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const insertConsensus = `
	INSERT INTO scan_consensus (scan_id, document_id, owner_id, verdict, threat_names, assumed_clean, scanner_count, duration_ms, scanned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const insertResult = `
	INSERT INTO scan_results (scan_id, document_id, owner_id, scanner, scanner_version, verdict, threat_names, duration_ms, error, scanned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *Store) Save(ctx context.Context, c *scan.Consensus) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)
		_, err := exec.ExecContext(ctx, insertConsensus,
			c.ScanID.String(), c.DocumentID.String(), c.OwnerID.String(), string(c.Verdict),
			pq.Array(nonNil(c.ThreatNames)), c.AssumedClean, c.ScannerCount,
			c.Duration.Milliseconds(), c.ScannedAt,
		)
		if err != nil {
			return fmt.Errorf("insert scan consensus: %w", err)
		}
		for _, r := range c.Results {
			_, err := exec.ExecContext(ctx, insertResult,
				c.ScanID.String(), r.DocumentID.String(), r.OwnerID.String(), r.Scanner, r.ScannerVersion,
				string(r.Verdict), pq.Array(nonNil(r.ThreatNames)), r.Duration.Milliseconds(), r.Error, r.ScannedAt,
			)
			if err != nil {
				return fmt.Errorf("insert scan result %s: %w", r.Scanner, err)
			}
		}
		return nil
	})
}

type consensusRow struct {
	ScanID       uuid.UUID      `db:"scan_id"`
	DocumentID   uuid.UUID      `db:"document_id"`
	OwnerID      uuid.UUID      `db:"owner_id"`
	Verdict      string         `db:"verdict"`
	ThreatNames  pq.StringArray `db:"threat_names"`
	AssumedClean bool           `db:"assumed_clean"`
	ScannerCount int            `db:"scanner_count"`
	DurationMS   int64          `db:"duration_ms"`
	ScannedAt    time.Time      `db:"scanned_at"`
}

type resultRow struct {
	ScanID         uuid.UUID      `db:"scan_id"`
	DocumentID     uuid.UUID      `db:"document_id"`
	OwnerID        uuid.UUID      `db:"owner_id"`
	Scanner        string         `db:"scanner"`
	ScannerVersion string         `db:"scanner_version"`
	Verdict        string         `db:"verdict"`
	ThreatNames    pq.StringArray `db:"threat_names"`
	DurationMS     int64          `db:"duration_ms"`
	Error          string         `db:"error"`
	ScannedAt      time.Time      `db:"scanned_at"`
}

const selectConsensus = `
	SELECT scan_id, document_id, owner_id, verdict, threat_names, assumed_clean, scanner_count, duration_ms, scanned_at
	FROM scan_consensus WHERE document_id = $1 ORDER BY scanned_at`

const selectResults = `
	SELECT scan_id, document_id, owner_id, scanner, scanner_version, verdict, threat_names, duration_ms, error, scanned_at
	FROM scan_results WHERE document_id = $1 ORDER BY id`

func (s *Store) ListByDocument(ctx context.Context, documentID domain.DocumentID) ([]*scan.Consensus, error) {
	exec := txcontext.Executor(ctx, s.db)

	var heads []consensusRow
	if err := sqlx.SelectContext(ctx, exec, &heads, selectConsensus, documentID.String()); err != nil {
		return nil, fmt.Errorf("select scan consensus: %w", err)
	}
	var rows []resultRow
	if err := sqlx.SelectContext(ctx, exec, &rows, selectResults, documentID.String()); err != nil {
		return nil, fmt.Errorf("select scan results: %w", err)
	}

	byScan := make(map[uuid.UUID]*scan.Consensus, len(heads))
	out := make([]*scan.Consensus, 0, len(heads))
	for _, h := range heads {
		c := &scan.Consensus{
			ScanID:       domain.ScanID(h.ScanID),
			DocumentID:   domain.DocumentID(h.DocumentID),
			OwnerID:      domain.OwnerID(h.OwnerID),
			Verdict:      scan.Verdict(h.Verdict),
			ThreatNames:  []string(h.ThreatNames),
			AssumedClean: h.AssumedClean,
			ScannerCount: h.ScannerCount,
			Duration:     time.Duration(h.DurationMS) * time.Millisecond,
			ScannedAt:    h.ScannedAt,
		}
		byScan[h.ScanID] = c
		out = append(out, c)
	}
	for _, r := range rows {
		c, ok := byScan[r.ScanID]
		if !ok {
			continue
		}
		res := scan.Result{
			ScanID:         c.ScanID,
			DocumentID:     domain.DocumentID(r.DocumentID),
			OwnerID:        domain.OwnerID(r.OwnerID),
			Scanner:        r.Scanner,
			ScannerVersion: r.ScannerVersion,
			Verdict:        scan.Verdict(r.Verdict),
			ThreatNames:    []string(r.ThreatNames),
			Duration:       time.Duration(r.DurationMS) * time.Millisecond,
			Error:          r.Error,
			ScannedAt:      r.ScannedAt,
		}
		c.Results = append(c.Results, res)
		switch res.Verdict {
		case scan.VerdictClean:
			c.CleanCount++
		case scan.VerdictInfected:
			c.InfectedCount++
		case scan.VerdictError:
			c.ErrorCount++
		}
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ scan.ResultStore = (*Store)(nil)
