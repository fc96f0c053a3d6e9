package service

import (
	"context"

	"kycvault/internal/encryption"
	"kycvault/internal/scan"
	"kycvault/internal/storage"
	"kycvault/internal/validation"
	"kycvault/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Scanner runs the malware scan for one upload.
type Scanner interface {
	Scan(ctx context.Context, buf []byte, documentID domain.DocumentID, ownerID domain.OwnerID) (*scan.Consensus, error)
}

// Validator scores an upload against its category.
type Validator interface {
	Validate(ctx context.Context, buf []byte, meta validation.Metadata) *validation.Result
}

// Encrypter seals plaintext under a per-document key.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext []byte, documentID domain.DocumentID, ownerID domain.OwnerID) (*encryption.Envelope, error)
	Hash(b []byte) string
	Verify(b []byte, expected string) bool
}

// ObjectStorage is the part of the storage manager the service uses.
type ObjectStorage interface {
	Store(ctx context.Context, ciphertext []byte, meta storage.Metadata) (*storage.StoredObject, error)
	Retrieve(ctx context.Context, objectPath string, key *storage.KeyRef) ([]byte, error)
	Delete(ctx context.Context, objectPath, backupPath string) error
	VerifyIntegrity(ctx context.Context, objectPath string, key storage.KeyRef, expectedHash string) (bool, error)
	RecordOrphan(ctx context.Context, objectPath, reason string, cause error)
}

// UploadLimiter returns a rate-limited error when the owner is over budget.
type UploadLimiter interface {
	AllowUpload(ctx context.Context, ownerID domain.OwnerID) error
}
