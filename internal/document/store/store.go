// Package store defines persistence for documents and their audit logs.
// Implementations live in the memory and postgres subpackages.
package store

import (
	"context"

	"kycvault/internal/document/models"
	"kycvault/pkg/domain"
)

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

// Store reads and writes documents. Missing rows are sentinel.ErrNotFound; a
// second active document for an owner and category is sentinel.ErrConflict.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id domain.DocumentID) (*models.Document, error)
	FindActive(ctx context.Context, ownerID domain.OwnerID, categoryID domain.CategoryID) (*models.Document, error)
	ListActiveByOwner(ctx context.Context, ownerID domain.OwnerID) ([]*models.Document, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error)
	ListOwnersWithStatus(ctx context.Context, status models.Status) ([]domain.OwnerID, error)
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, documentID domain.DocumentID) ([]models.AuditEntry, error)
}

// Tx serializes mutations for one owner. fn sees a Store bound to the
// transaction; returning an error rolls everything back.
type Tx interface {
	RunInTx(ctx context.Context, ownerID domain.OwnerID, fn func(ctx context.Context, s Store) error) error
}
