// Package memory is an in-process document store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"kycvault/internal/document/models"
	"kycvault/internal/document/store"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/sentinel"
)

const (
	numShards        = 128
	defaultTxTimeout = 5 * time.Second
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Store)(nil)
)

// Store keeps documents in maps guarded by mu. RunInTx additionally holds a
// per-owner shard lock and stages writes until fn returns.
type Store struct {
	mu        sync.RWMutex
	docs      map[domain.DocumentID]*models.Document
	audit     map[domain.DocumentID][]models.AuditEntry
	nextAudit int64

	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func New() *Store {
	return &Store{
		docs:  make(map[domain.DocumentID]*models.Document),
		audit: make(map[domain.DocumentID][]models.AuditEntry),
	}
}

func (s *Store) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	if activeConflict(s.docs, doc) {
		return fmt.Errorf("active document for %s: %w", doc.CategoryID, sentinel.ErrConflict)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *Store) Update(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrNotFound)
	}
	if activeConflict(s.docs, doc) {
		return fmt.Errorf("active document for %s: %w", doc.CategoryID, sentinel.ErrConflict)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *Store) FindByID(_ context.Context, id domain.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(nil, nil).byID(id)
}

func (s *Store) FindActive(_ context.Context, ownerID domain.OwnerID, categoryID domain.CategoryID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(nil, nil).active(ownerID, categoryID)
}

func (s *Store) ListActiveByOwner(_ context.Context, ownerID domain.OwnerID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(nil, nil).list(models.ListFilter{OwnerID: ownerID, Limit: models.MaxListLimit}), nil
}

func (s *Store) List(_ context.Context, filter models.ListFilter) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(nil, nil).list(filter.Normalize()), nil
}

func (s *Store) ListOwnersWithStatus(_ context.Context, status models.Status) ([]domain.OwnerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(nil, nil).owners(status), nil
}

func (s *Store) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[entry.DocumentID]; !ok {
		return fmt.Errorf("document %s: %w", entry.DocumentID, sentinel.ErrNotFound)
	}
	s.appendAuditLocked(entry)
	return nil
}

func (s *Store) ListAudit(_ context.Context, documentID domain.DocumentID) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditEntry(nil), s.audit[documentID]...), nil
}

func (s *Store) appendAuditLocked(entry *models.AuditEntry) {
	s.nextAudit++
	entry.ID = s.nextAudit
	s.audit[entry.DocumentID] = append(s.audit[entry.DocumentID], *entry)
}

// RunInTx locks the owner's shard, runs fn against a staging view and applies
// the staged writes atomically if fn succeeds.
func (s *Store) RunInTx(ctx context.Context, ownerID domain.OwnerID, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := &s.shards[xxhash.Sum64String(ownerID.String())%numShards]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &txStore{base: s, staged: make(map[domain.DocumentID]*models.Document)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *txStore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.view(tx.staged, nil)
	for _, doc := range tx.staged {
		if activeConflict(merged.docs, doc) {
			return fmt.Errorf("active document for %s: %w", doc.CategoryID, sentinel.ErrConflict)
		}
	}
	for id, doc := range tx.staged {
		s.docs[id] = doc
	}
	for i := range tx.audit {
		s.appendAuditLocked(&tx.audit[i])
	}
	return nil
}

// view overlays staged documents on the committed set. Callers hold mu.
func (s *Store) view(staged map[domain.DocumentID]*models.Document, audit []models.AuditEntry) view {
	docs := make(map[domain.DocumentID]*models.Document, len(s.docs)+len(staged))
	for id, d := range s.docs {
		docs[id] = d
	}
	for id, d := range staged {
		docs[id] = d
	}
	return view{docs: docs, audit: s.audit, staged: audit}
}

type view struct {
	docs   map[domain.DocumentID]*models.Document
	audit  map[domain.DocumentID][]models.AuditEntry
	staged []models.AuditEntry
}

func (v view) byID(id domain.DocumentID) (*models.Document, error) {
	d, ok := v.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	out := d.Clone()
	out.AuditLog = v.auditFor(id)
	return out, nil
}

func (v view) active(ownerID domain.OwnerID, categoryID domain.CategoryID) (*models.Document, error) {
	for _, d := range v.docs {
		if d.OwnerID == ownerID && d.CategoryID == categoryID && d.Status.IsActive() {
			return d.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active %s document: %w", categoryID, sentinel.ErrNotFound)
}

func (v view) list(f models.ListFilter) []*models.Document {
	var out []*models.Document
	for _, d := range v.docs {
		if f.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if f.Offset >= len(out) {
		return nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (v view) owners(status models.Status) []domain.OwnerID {
	seen := make(map[domain.OwnerID]struct{})
	var out []domain.OwnerID
	for _, d := range v.docs {
		if d.Status != status {
			continue
		}
		if _, ok := seen[d.OwnerID]; ok {
			continue
		}
		seen[d.OwnerID] = struct{}{}
		out = append(out, d.OwnerID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (v view) auditFor(id domain.DocumentID) []models.AuditEntry {
	out := append([]models.AuditEntry(nil), v.audit[id]...)
	for _, e := range v.staged {
		if e.DocumentID == id {
			out = append(out, e)
		}
	}
	return out
}

// activeConflict reports whether another active document shares doc's owner
// and category.
func activeConflict(docs map[domain.DocumentID]*models.Document, doc *models.Document) bool {
	if !doc.Status.IsActive() {
		return false
	}
	for id, d := range docs {
		if id != doc.ID && d.OwnerID == doc.OwnerID && d.CategoryID == doc.CategoryID && d.Status.IsActive() {
			return true
		}
	}
	return false
}

// txStore stages writes made inside RunInTx. Reads see committed state
// overlaid with the staged writes.
type txStore struct {
	base   *Store
	staged map[domain.DocumentID]*models.Document
	audit  []models.AuditEntry
}

func (t *txStore) current() view {
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	return t.base.view(t.staged, t.audit)
}

func (t *txStore) Create(_ context.Context, doc *models.Document) error {
	v := t.current()
	if _, ok := v.docs[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	if activeConflict(v.docs, doc) {
		return fmt.Errorf("active document for %s: %w", doc.CategoryID, sentinel.ErrConflict)
	}
	t.staged[doc.ID] = doc.Clone()
	return nil
}

func (t *txStore) Update(_ context.Context, doc *models.Document) error {
	if _, ok := t.current().docs[doc.ID]; !ok {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrNotFound)
	}
	t.staged[doc.ID] = doc.Clone()
	return nil
}

func (t *txStore) FindByID(_ context.Context, id domain.DocumentID) (*models.Document, error) {
	return t.current().byID(id)
}

func (t *txStore) FindActive(_ context.Context, ownerID domain.OwnerID, categoryID domain.CategoryID) (*models.Document, error) {
	return t.current().active(ownerID, categoryID)
}

func (t *txStore) ListActiveByOwner(_ context.Context, ownerID domain.OwnerID) ([]*models.Document, error) {
	return t.current().list(models.ListFilter{OwnerID: ownerID, Limit: models.MaxListLimit}), nil
}

func (t *txStore) List(_ context.Context, filter models.ListFilter) ([]*models.Document, error) {
	return t.current().list(filter.Normalize()), nil
}

func (t *txStore) ListOwnersWithStatus(_ context.Context, status models.Status) ([]domain.OwnerID, error) {
	return t.current().owners(status), nil
}

func (t *txStore) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	if _, ok := t.current().docs[entry.DocumentID]; !ok {
		return fmt.Errorf("document %s: %w", entry.DocumentID, sentinel.ErrNotFound)
	}
	t.audit = append(t.audit, *entry)
	return nil
}

func (t *txStore) ListAudit(_ context.Context, documentID domain.DocumentID) ([]models.AuditEntry, error) {
	return t.current().auditFor(documentID), nil
}
