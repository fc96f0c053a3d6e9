// Package outbox relays audit events from the postgres outbox table to a
// message broker.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	audit "kycvault/pkg/platform/audit"
	txcontext "kycvault/pkg/platform/tx"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// TopicForCategory maps an event category to its destination topic.
func TopicForCategory(prefix string, category audit.EventCategory) string {
	return prefix + "." + string(category)
}

type row struct {
	ID          string `db:"id"`
	EventType   string `db:"event_type"`
	Category    string `db:"category"`
	Severity    string `db:"severity"`
	AggregateID string `db:"aggregate_id"`
	Payload     []byte `db:"payload"`
}

// Relay polls unpublished outbox rows, publishes them and marks them sent.
// Rows are claimed with FOR UPDATE SKIP LOCKED so several relays can run.
type Relay struct {
	db          *sqlx.DB
	publisher   Publisher
	topicPrefix string
	batchSize   int
	interval    time.Duration
	logger      *slog.Logger
}

type Option func(*Relay)

func WithLogger(l *slog.Logger) Option { return func(r *Relay) { r.logger = l } }

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(db *sqlx.DB, publisher Publisher, topicPrefix string, opts ...Option) *Relay {
	r := &Relay{
		db:          db,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		batchSize:   100,
		interval:    2 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const (
	claimBatch = `
		SELECT id, event_type, category, severity, aggregate_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`
	markPublished = `UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`
)

// RelayOnce publishes one batch. Rows published before a broker failure are
// still marked; the failing row and the rest of the batch stay pending.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var published int
	err := txcontext.Run(ctx, r.db, func(ctx context.Context) error {
		ex := txcontext.Executor(ctx, r.db)
		var rows []row
		if err := sqlx.SelectContext(ctx, ex, &rows, claimBatch, r.batchSize); err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}

		sent := make([]string, 0, len(rows))
		var pubErr error
		for _, rw := range rows {
			topic := TopicForCategory(r.topicPrefix, audit.EventCategory(rw.Category))
			headers := map[string]string{"event_type": rw.EventType, "severity": rw.Severity}
			if err := r.publisher.Publish(ctx, topic, []byte(rw.AggregateID), rw.Payload, headers); err != nil {
				pubErr = fmt.Errorf("publish outbox entry %s: %w", rw.ID, err)
				break
			}
			sent = append(sent, rw.ID)
		}

		if len(sent) > 0 {
			if _, err := ex.ExecContext(ctx, markPublished, time.Now().UTC(), pq.Array(sent)); err != nil {
				return fmt.Errorf("mark outbox entries published: %w", err)
			}
		}
		published = len(sent)
		if pubErr != nil {
			r.logger.WarnContext(ctx, "outbox relay stopped early", "published", published, "error", pubErr)
		}
		return nil
	})
	return published, err
}

// Run relays until ctx is cancelled. Full batches are followed immediately by
// another pass.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
