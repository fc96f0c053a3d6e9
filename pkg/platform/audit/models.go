package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// document lifecycle and KYC review decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events that feed alerting: malware, tamper
	// detection, upload abuse.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Severity levels used for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AuditEvent string

const (
	// Document lifecycle
	EventDocumentUploaded AuditEvent = "document_uploaded"
	EventDocumentRejected AuditEvent = "document_rejected"
	EventDocumentArchived AuditEvent = "document_archived"
	EventDocumentDeleted  AuditEvent = "document_deleted"
	EventDocumentAccessed AuditEvent = "document_accessed"

	// KYC review
	EventKYCSubmitted AuditEvent = "kyc_submitted"
	EventKYCApproved  AuditEvent = "kyc_approved"
	EventKYCRejected  AuditEvent = "kyc_rejected"

	// Security
	EventMalwareDetected     AuditEvent = "malware_detected"
	EventScanAssumedClean    AuditEvent = "scan_assumed_clean"
	EventIntegrityMismatch   AuditEvent = "integrity_mismatch"
	EventAccessDenied        AuditEvent = "document_access_denied"
	EventUploadRateLimited   AuditEvent = "upload_rate_limited"
	EventOrphanedObject      AuditEvent = "orphaned_object"
	EventScannerCircuitOpen  AuditEvent = "scanner_circuit_open"
	EventBackupWriteFailed   AuditEvent = "backup_write_failed"
	EventIntegrityVerified   AuditEvent = "integrity_verified"
	EventOrphanedObjectSwept AuditEvent = "orphaned_object_swept"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentUploaded: CategoryCompliance,
	EventDocumentRejected: CategoryCompliance,
	EventDocumentArchived: CategoryCompliance,
	EventDocumentDeleted:  CategoryCompliance,
	EventKYCSubmitted:     CategoryCompliance,
	EventKYCApproved:      CategoryCompliance,
	EventKYCRejected:      CategoryCompliance,

	EventMalwareDetected:    CategorySecurity,
	EventScanAssumedClean:   CategorySecurity,
	EventIntegrityMismatch:  CategorySecurity,
	EventAccessDenied:       CategorySecurity,
	EventUploadRateLimited:  CategorySecurity,
	EventScannerCircuitOpen: CategorySecurity,

	EventDocumentAccessed:    CategoryOperations,
	EventOrphanedObject:      CategoryOperations,
	EventOrphanedObjectSwept: CategoryOperations,
	EventBackupWriteFailed:   CategoryOperations,
	EventIntegrityVerified:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one record handed to the compliance sink. Payload must never
// carry plaintext document bytes or key material.
type Event struct {
	ID         uuid.UUID
	Type       AuditEvent
	Category   EventCategory
	Severity   Severity
	Timestamp  time.Time
	OwnerID    string
	DocumentID string
	ActorID    string
	RequestID  string
	Payload    map[string]any
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Sink records events without blocking the caller on transport failure.
type Sink interface {
	Record(ctx context.Context, eventType AuditEvent, severity Severity, payload map[string]any)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Record(context.Context, AuditEvent, Severity, map[string]any) {}
