package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	audit "kycvault/pkg/platform/audit"
	txcontext "kycvault/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to audit_outbox and relayed to Kafka by outbox.Relay.
// When the caller's context carries a transaction the insert joins it.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON document relayed to Kafka.
type outboxPayload struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Category   string         `json:"category"`
	Severity   string         `json:"severity"`
	Timestamp  string         `json:"timestamp"`
	OwnerID    string         `json:"owner_id,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

const insertOutbox = `
	INSERT INTO audit_outbox (id, event_type, category, severity, aggregate_id, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	// eventCategories is the source of truth for routing.
	category := event.Type.Category()

	body, err := json.Marshal(outboxPayload{
		ID:         event.ID.String(),
		Type:       string(event.Type),
		Category:   string(category),
		Severity:   string(event.Severity),
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
		OwnerID:    event.OwnerID,
		DocumentID: event.DocumentID,
		ActorID:    event.ActorID,
		RequestID:  event.RequestID,
		Payload:    event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateID := event.DocumentID
	if aggregateID == "" {
		aggregateID = event.OwnerID
	}
	if aggregateID == "" {
		aggregateID = event.ID.String()
	}

	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, insertOutbox,
		event.ID, string(event.Type), string(category), string(event.Severity),
		aggregateID, body, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
