// Package service applies per-owner upload budgets on top of a bucket store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kycvault/internal/ratelimit/metrics"
	"kycvault/internal/ratelimit/models"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
)

//go:generate mockgen -source=upload.go -destination=mocks/mocks.go -package=mocks BucketStore

// BucketStore is a sliding-window counter keyed by string.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	GetCurrentCount(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// UploadLimiter enforces models.Limit per owner. A store failure fails open
// so an unreachable cache never blocks onboarding; the failure is logged and
// counted.
type UploadLimiter struct {
	buckets BucketStore
	limit   models.Limit
	sink    audit.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*UploadLimiter)

func WithSink(sink audit.Sink) Option {
	return func(l *UploadLimiter) { l.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *UploadLimiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *UploadLimiter) { l.metrics = m }
}

func New(buckets BucketStore, limit models.Limit, opts ...Option) (*UploadLimiter, error) {
	if buckets == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	if limit.Requests <= 0 || limit.Window <= 0 {
		return nil, fmt.Errorf("upload limit must be positive, got %d per %s", limit.Requests, limit.Window)
	}
	l := &UploadLimiter{
		buckets: buckets,
		limit:   limit,
		sink:    audit.NopSink{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check consumes one upload from the owner's budget.
func (l *UploadLimiter) Check(ctx context.Context, ownerID domain.OwnerID) (*models.Result, error) {
	res, err := l.buckets.Allow(ctx, models.UploadKey(ownerID), l.limit.Requests, l.limit.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "upload rate limit check failed; allowing request",
			"owner_id", ownerID.String(), "error", err)
		if l.metrics != nil {
			l.metrics.IncrementStoreErrors()
		}
		return &models.Result{Allowed: true, Limit: l.limit.Requests}, nil
	}
	if l.metrics != nil {
		if res.Allowed {
			l.metrics.IncrementAllowed()
		} else {
			l.metrics.IncrementDenied()
		}
	}
	return res, nil
}

// AllowUpload returns a rate-limited error when the owner is over budget.
func (l *UploadLimiter) AllowUpload(ctx context.Context, ownerID domain.OwnerID) error {
	res, err := l.Check(ctx, ownerID)
	if err != nil {
		return err
	}
	if res.Allowed {
		return nil
	}
	l.sink.Record(ctx, audit.EventUploadRateLimited, audit.SeverityWarning, map[string]any{
		"owner_id":    ownerID.String(),
		"limit":       l.limit.Requests,
		"window":      l.limit.Window.String(),
		"retry_after": res.RetryAfterSeconds(),
	})
	l.logger.InfoContext(ctx, "upload rate limited", "owner_id", ownerID.String(), "retry_after_s", res.RetryAfterSeconds())
	return dErrors.RateLimitError(fmt.Sprintf("upload limit of %d per %s reached; retry in %ds",
		l.limit.Requests, l.limit.Window, res.RetryAfterSeconds()))
}

// Reset clears an owner's budget. Used by the admin CLI.
func (l *UploadLimiter) Reset(ctx context.Context, ownerID domain.OwnerID) error {
	return l.buckets.Reset(ctx, models.UploadKey(ownerID))
}

// Usage reports how many uploads the owner has made in the current window
// without consuming one.
func (l *UploadLimiter) Usage(ctx context.Context, ownerID domain.OwnerID) (used int, limit models.Limit, err error) {
	used, err = l.buckets.GetCurrentCount(ctx, models.UploadKey(ownerID))
	if err != nil {
		return 0, l.limit, fmt.Errorf("read upload count: %w", err)
	}
	return used, l.limit, nil
}
