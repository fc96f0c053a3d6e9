// Package models holds the document aggregate and its append-only audit log.
package models

import (
	"time"

	"kycvault/internal/scan"
	"kycvault/pkg/domain"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusArchived    Status = "archived"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// IsActive reports whether a document in this status counts toward the
// one-per-category rule.
func (s Status) IsActive() bool { return s.IsValid() && s != StatusArchived }

// Audit entry names written to a document's own log.
const (
	EntryUploaded    = "uploaded"
	EntryArchived    = "archived"
	EntrySubmitted   = "submitted"
	EntryApproved    = "approved"
	EntryRejected    = "rejected"
	EntryDeleted     = "deleted"
	EntryDownloaded  = "downloaded"
	EntryIntegrityOK = "integrity_verified"
	EntryTampered    = "integrity_mismatch"
)

// AuditEntry is one immutable line of a document's history.
type AuditEntry struct {
	ID         int64
	DocumentID domain.DocumentID
	Event      string
	Actor      string
	Payload    map[string]any
	CreatedAt  time.Time
}

// Document is the stored record of one accepted upload. Bytes live in the
// object store; KeyID is required to decrypt them and never changes.
type Document struct {
	ID               domain.DocumentID
	OwnerID          domain.OwnerID
	CategoryID       domain.CategoryID
	OriginalFilename string
	DeclaredMIME     string
	DetectedMIME     string
	Size             int64
	ContentHash      string
	StoragePath      string
	BackupPath       string
	KeyID            string
	ValidationScore  float64
	ScanID           domain.ScanID
	ScanVerdict      scan.Verdict
	ScanAssumedClean bool
	ThreatNames      []string
	Status           Status
	ExtractedData    map[string]string
	ReviewedBy       string
	ReviewNotes      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ArchivedAt       *time.Time
	AuditLog         []AuditEntry
}

// Archive moves the document out of the active set.
func (d *Document) Archive(at time.Time) {
	d.Status = StatusArchived
	d.UpdatedAt = at
	d.ArchivedAt = &at
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.ThreatNames = append([]string(nil), d.ThreatNames...)
	if d.ExtractedData != nil {
		c.ExtractedData = make(map[string]string, len(d.ExtractedData))
		for k, v := range d.ExtractedData {
			c.ExtractedData[k] = v
		}
	}
	if d.ArchivedAt != nil {
		at := *d.ArchivedAt
		c.ArchivedAt = &at
	}
	c.AuditLog = append([]AuditEntry(nil), d.AuditLog...)
	return &c
}

// ListFilter selects documents for List. Zero values match everything except
// archived documents, which need IncludeArchived or an explicit Status.
type ListFilter struct {
	OwnerID         domain.OwnerID
	CategoryID      domain.CategoryID
	Status          Status
	IncludeArchived bool
	Limit           int
	Offset          int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Normalize clamps Limit and Offset into range.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether d passes every set field of f.
func (f ListFilter) Matches(d *Document) bool {
	if !f.OwnerID.IsNil() && d.OwnerID != f.OwnerID {
		return false
	}
	if f.CategoryID != "" && d.CategoryID != f.CategoryID {
		return false
	}
	if f.Status != "" {
		return d.Status == f.Status
	}
	return f.IncludeArchived || d.Status != StatusArchived
}
