// Package storage persists encrypted document blobs with retries, timeouts,
// optional backup copies, integrity verification and orphan cleanup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kycvault/internal/storage/objectstore"
	"kycvault/internal/storage/orphans"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

const (
	DefaultOpTimeout  = 15 * time.Second
	DefaultMaxRetries = 3
)

// StoredObject is what Store wrote. BackupPath is empty when no backup was
// configured or the backup write failed.
type StoredObject struct {
	Path       string
	BackupPath string
	ETag       string
	Size       int64
}

// KeyRef is everything needed to decrypt one stored object.
type KeyRef struct {
	KeyID      string
	DocumentID domain.DocumentID
	OwnerID    domain.OwnerID
}

// Cipher is the part of the encryption engine the manager needs.
type Cipher interface {
	Decrypt(ctx context.Context, ciphertext []byte, keyID string, documentID domain.DocumentID, ownerID domain.OwnerID) ([]byte, error)
	Hash(b []byte) string
	Verify(b []byte, expected string) bool
}

// SweepReport summarizes one orphan sweep.
type SweepReport struct {
	Attempted int
	Removed   int
	Failed    int
}

type Manager struct {
	primary    objectstore.ObjectStore
	backup     objectstore.ObjectStore
	cipher     Cipher
	orphans    orphans.Registry
	sink       audit.Sink
	logger     *slog.Logger
	metrics    *Metrics
	opTimeout  time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type Option func(*Manager)

// WithBackup enables a second copy under backups/. The backup store may be
// the primary store itself.
func WithBackup(store objectstore.ObjectStore) Option {
	return func(m *Manager) { m.backup = store }
}

func WithCipher(c Cipher) Option {
	return func(m *Manager) { m.cipher = c }
}

func WithOrphanRegistry(r orphans.Registry) Option {
	return func(m *Manager) { m.orphans = r }
}

func WithSink(sink audit.Sink) Option {
	return func(m *Manager) { m.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithOpTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.opTimeout = d
		}
	}
}

func WithMaxRetries(n uint64) Option {
	return func(m *Manager) { m.maxRetries = n }
}

// WithBackOff replaces the retry schedule; tests use a zero-delay policy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(m *Manager) { m.newBackOff = f }
}

func New(primary objectstore.ObjectStore, opts ...Option) (*Manager, error) {
	if primary == nil {
		return nil, errors.New("object store is required")
	}
	m := &Manager{
		primary:    primary,
		orphans:    orphans.NewInMemory(),
		sink:       audit.NopSink{},
		logger:     slog.Default(),
		opTimeout:  DefaultOpTimeout,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Store writes ciphertext to the primary store and, when configured, a
// backup copy. A failed backup is logged and reported but does not fail the
// write.
func (m *Manager) Store(ctx context.Context, ciphertext []byte, meta Metadata) (*StoredObject, error) {
	objectPath := ObjectPath(meta)
	putOpts := objectstore.PutOptions{
		ContentType: "application/octet-stream",
		Metadata: map[string]string{
			"document-id": meta.DocumentID.String(),
			"owner-id":    meta.OwnerID.String(),
			"category-id": string(meta.CategoryID),
		},
	}

	var obj objectstore.Object
	err := m.do(ctx, "put", func(ctx context.Context) error {
		var err error
		obj, err = m.primary.Put(ctx, objectPath, ciphertext, putOpts)
		return err
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "object write failed", "path", objectPath, "document_id", meta.DocumentID, "error", err)
		return nil, dErrors.StorageError(err, "failed to store document")
	}

	stored := &StoredObject{Path: objectPath, ETag: obj.ETag, Size: int64(len(ciphertext))}
	if m.backup == nil {
		return stored, nil
	}

	backupPath := BackupPath(meta)
	err = m.do(ctx, "put_backup", func(ctx context.Context) error {
		_, err := m.backup.Put(ctx, backupPath, ciphertext, putOpts)
		return err
	})
	if err != nil {
		m.logger.WarnContext(ctx, "backup write failed", "path", backupPath, "document_id", meta.DocumentID, "error", err)
		m.sink.Record(ctx, audit.EventBackupWriteFailed, audit.SeverityWarning, map[string]any{
			"document_id": meta.DocumentID.String(),
			"owner_id":    meta.OwnerID.String(),
			"path":        backupPath,
		})
		return stored, nil
	}
	stored.BackupPath = backupPath
	return stored, nil
}

// Retrieve reads an object and decrypts it when key is non-nil.
func (m *Manager) Retrieve(ctx context.Context, objectPath string, key *KeyRef) ([]byte, error) {
	ciphertext, err := m.get(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return ciphertext, nil
	}
	if m.cipher == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no cipher configured for decryption")
	}
	return m.cipher.Decrypt(ctx, ciphertext, key.KeyID, key.DocumentID, key.OwnerID)
}

// Delete removes the object and its backup. Missing objects count as deleted.
func (m *Manager) Delete(ctx context.Context, objectPath, backupPath string) error {
	var errs []error
	for _, p := range []string{objectPath, backupPath} {
		if p == "" {
			continue
		}
		store := m.primary
		if p == backupPath && m.backup != nil {
			store = m.backup
		}
		err := m.do(ctx, "delete", func(ctx context.Context) error {
			return store.Delete(ctx, p)
		})
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return dErrors.StorageError(errors.Join(errs...), "failed to delete document objects")
	}
	return nil
}

// VerifyIntegrity decrypts the stored object and compares the plaintext hash
// with expectedHash. An authentication failure or hash mismatch returns
// false and raises a critical event; only infrastructure failures return an
// error.
func (m *Manager) VerifyIntegrity(ctx context.Context, objectPath string, key KeyRef, expectedHash string) (bool, error) {
	if m.cipher == nil {
		return false, dErrors.New(dErrors.CodeInternal, "no cipher configured for verification")
	}
	ciphertext, err := m.get(ctx, objectPath)
	if err != nil {
		return false, err
	}

	payload := map[string]any{
		"document_id": key.DocumentID.String(),
		"owner_id":    key.OwnerID.String(),
		"path":        objectPath,
	}
	plaintext, err := m.cipher.Decrypt(ctx, ciphertext, key.KeyID, key.DocumentID, key.OwnerID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeIntegrity) {
			return false, err
		}
		payload["reason"] = "authentication_failed"
		m.integrityMismatch(ctx, payload)
		return false, nil
	}
	if !m.cipher.Verify(plaintext, expectedHash) {
		payload["reason"] = "hash_mismatch"
		m.integrityMismatch(ctx, payload)
		return false, nil
	}
	m.sink.Record(ctx, audit.EventIntegrityVerified, audit.SeverityInfo, payload)
	return true, nil
}

func (m *Manager) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	var objs []objectstore.Object
	err := m.do(ctx, "list", func(ctx context.Context) error {
		var err error
		objs, err = m.primary.List(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, dErrors.StorageError(err, "failed to list objects")
	}
	return objs, nil
}

// RecordOrphan queues path for a later sweep after a compensating delete failed.
func (m *Manager) RecordOrphan(ctx context.Context, objectPath, reason string, cause error) {
	o := orphans.Orphan{Path: objectPath, Reason: reason, RecordedAt: requestcontext.Now(ctx)}
	if cause != nil {
		o.LastError = cause.Error()
	}
	if err := m.orphans.Record(ctx, o); err != nil {
		m.logger.ErrorContext(ctx, "failed to record orphaned object", "path", objectPath, "error", err)
	}
	if m.metrics != nil {
		m.metrics.OrphansRecorded.Inc()
	}
	m.sink.Record(ctx, audit.EventOrphanedObject, audit.SeverityWarning, map[string]any{
		"path":   objectPath,
		"reason": reason,
	})
}

// SweepOrphans retries deletion of up to limit queued orphans.
func (m *Manager) SweepOrphans(ctx context.Context, limit int) (SweepReport, error) {
	var report SweepReport
	queued, err := m.orphans.List(ctx, limit)
	if err != nil {
		return report, dErrors.StorageError(err, "failed to list orphans")
	}
	for _, o := range queued {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Attempted++
		store := m.primary
		if m.backup != nil && isBackupPath(o.Path) {
			store = m.backup
		}
		err := m.do(ctx, "delete", func(ctx context.Context) error {
			return store.Delete(ctx, o.Path)
		})
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			report.Failed++
			o.Attempts++
			o.LastError = err.Error()
			if recErr := m.orphans.Record(ctx, o); recErr != nil {
				m.logger.ErrorContext(ctx, "failed to update orphan", "path", o.Path, "error", recErr)
			}
			continue
		}
		if err := m.orphans.Remove(ctx, o.Path); err != nil {
			m.logger.ErrorContext(ctx, "failed to dequeue swept orphan", "path", o.Path, "error", err)
		}
		report.Removed++
		if m.metrics != nil {
			m.metrics.OrphansSwept.Inc()
		}
		m.sink.Record(ctx, audit.EventOrphanedObjectSwept, audit.SeverityInfo, map[string]any{"path": o.Path})
	}
	if report.Attempted > 0 {
		m.logger.InfoContext(ctx, "orphan sweep finished",
			"attempted", report.Attempted, "removed", report.Removed, "failed", report.Failed)
	}
	return report, nil
}

func (m *Manager) get(ctx context.Context, objectPath string) ([]byte, error) {
	var b []byte
	err := m.do(ctx, "get", func(ctx context.Context) error {
		var err error
		b, err = m.primary.Get(ctx, objectPath)
		return err
	})
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			m.logger.ErrorContext(ctx, "object read failed", "path", objectPath, "error", err)
		}
		return nil, dErrors.StorageError(err, "failed to read document")
	}
	return b, nil
}

func (m *Manager) integrityMismatch(ctx context.Context, payload map[string]any) {
	if m.metrics != nil {
		m.metrics.IntegrityFailures.Inc()
	}
	m.logger.ErrorContext(ctx, "stored document failed integrity verification",
		"document_id", payload["document_id"], "reason", payload["reason"])
	m.sink.Record(ctx, audit.EventIntegrityMismatch, audit.SeverityCritical, payload)
}

// do runs op with a per-attempt timeout and bounded exponential retries.
// Only attempt timeouts and sentinel.ErrUnavailable are retried; every other
// error, not-found included, is permanent.
func (m *Manager) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 && m.metrics != nil {
			m.metrics.Retries.WithLabelValues(op).Inc()
		}
		attemptCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
		defer cancel()
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s timed out after %s: %w", op, m.opTimeout, err)
		}
		if !errors.Is(err, sentinel.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), m.maxRetries), ctx)
	err := backoff.Retry(operation, policy)

	if m.metrics != nil {
		outcome := "success"
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			outcome = "not_found"
		case err != nil:
			outcome = "error"
		}
		m.metrics.Operations.WithLabelValues(op, outcome).Inc()
		m.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	return err
}

func isBackupPath(p string) bool {
	return len(p) > len(backupsRoot) && p[:len(backupsRoot)+1] == backupsRoot+"/"
}
