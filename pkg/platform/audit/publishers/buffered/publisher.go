// Package buffered provides the non-blocking compliance event sink.
//
// Record enqueues into a bounded ring buffer and returns immediately; Run
// drains the buffer into an audit.Store in batches. Critical events wake the
// flusher early and are logged synchronously so they are never only in memory.
package buffered

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "kycvault/pkg/platform/audit"
	"kycvault/pkg/requestcontext"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// Publisher implements audit.Sink.
type Publisher struct {
	store         audit.Store
	buffer        *RingBuffer
	logger        *slog.Logger
	metrics       *Metrics
	batchSize     int
	flushInterval time.Duration
	wake          chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithCapacity(n int) Option {
	return func(p *Publisher) { p.buffer = NewRingBuffer(n) }
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        NewRingBuffer(0),
		logger:        slog.Default(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record enqueues an event. It never blocks on the store. Well-known payload
// keys (owner_id, document_id) are promoted onto the event.
func (p *Publisher) Record(ctx context.Context, eventType audit.AuditEvent, severity audit.Severity, payload map[string]any) {
	event := audit.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Category:  eventType.Category(),
		Severity:  severity,
		Timestamp: requestcontext.Now(ctx),
		ActorID:   requestcontext.Actor(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Payload:   payload,
	}
	event.OwnerID = stringField(payload, "owner_id")
	event.DocumentID = stringField(payload, "document_id")

	if severity == audit.SeverityCritical {
		p.logger.ErrorContext(ctx, "CRITICAL: "+string(eventType),
			"category", event.Category,
			"owner_id", event.OwnerID,
			"document_id", event.DocumentID,
			"request_id", event.RequestID,
		)
	}

	if p.buffer.Enqueue(event) {
		if p.metrics != nil {
			p.metrics.IncDropped()
		}
		p.logger.WarnContext(ctx, "audit buffer full, dropped oldest event")
	}
	if p.metrics != nil {
		p.metrics.IncRecorded(event.Category, severity)
	}
	if severity == audit.SeverityCritical {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Run flushes the buffer until ctx is cancelled, then drains what is left.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			defer cancel()
			for p.buffer.Len() > 0 {
				if _, err := p.Flush(drainCtx); err != nil {
					return err
				}
			}
			return nil
		case <-ticker.C:
		case <-p.wake:
		}
		if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "audit flush failed", "error", err)
		}
	}
}

// Flush persists up to one batch and returns how many events were written.
// Events whose write fails are logged and counted, not re-queued, so a broken
// store cannot grow memory without bound.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	batch := p.buffer.DequeueBatch(p.batchSize)
	written := 0
	var firstErr error
	for _, event := range batch {
		start := time.Now()
		if err := p.store.Append(ctx, event); err != nil {
			if p.metrics != nil {
				p.metrics.IncPersistFailures()
			}
			p.logger.ErrorContext(ctx, "audit event persistence failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"severity", event.Severity,
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("append audit event %s: %w", event.ID, err)
			}
			continue
		}
		written++
		if p.metrics != nil {
			p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		}
	}
	return written, firstErr
}

// Pending returns the number of events waiting to be flushed.
func (p *Publisher) Pending() int { return p.buffer.Len() }

func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
