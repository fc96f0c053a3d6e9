package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"kycvault/internal/document/models"
	"kycvault/internal/document/store"
	"kycvault/internal/storage"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

type DownloadResult struct {
	Document *models.Document
	Content  []byte
}

// Download decrypts a document for its owner and checks the plaintext
// against the hash recorded at upload.
func (s *Service) Download(ctx context.Context, documentID domain.DocumentID, ownerID domain.OwnerID) (res *DownloadResult, err error) {
	ctx, span := s.tracer.Start(ctx, "document.Download")
	defer func() {
		endSpan(span, err)
		if s.metrics != nil {
			s.metrics.Downloads.WithLabelValues(outcome(err)).Inc()
		}
	}()

	doc, err := s.loadOwned(ctx, documentID, ownerID, "download")
	if err != nil {
		return nil, err
	}
	content, err := s.objects.Retrieve(ctx, doc.StoragePath, keyRef(doc))
	if err != nil {
		s.logger.ErrorContext(ctx, "document retrieval failed", "document_id", documentID.String(), "error", err)
		if dErrors.HasCode(err, dErrors.CodeIntegrity) {
			s.tampered(ctx, doc, "authentication_failed")
		}
		return nil, err
	}
	if !s.cipher.Verify(content, doc.ContentHash) {
		s.logger.ErrorContext(ctx, "downloaded content does not match recorded hash", "document_id", documentID.String())
		s.tampered(ctx, doc, "hash_mismatch")
		return nil, dErrors.IntegrityError("document integrity check failed")
	}

	s.appendAudit(ctx, doc.ID, models.EntryDownloaded, nil)
	s.sink.Record(ctx, audit.EventDocumentAccessed, audit.SeverityInfo, map[string]any{
		"document_id": documentID.String(),
		"owner_id":    ownerID.String(),
	})
	return &DownloadResult{Document: doc, Content: content}, nil
}

// Info returns a document's metadata and audit log without touching storage.
func (s *Service) Info(ctx context.Context, documentID domain.DocumentID, ownerID domain.OwnerID) (*models.Document, error) {
	return s.loadOwned(ctx, documentID, ownerID, "info")
}

// Delete archives an owner's document. The encrypted object is retained;
// deleting an archived document is a no-op.
func (s *Service) Delete(ctx context.Context, documentID domain.DocumentID, ownerID domain.OwnerID) error {
	if _, err := s.loadOwned(ctx, documentID, ownerID, "delete"); err != nil {
		return err
	}
	now := requestcontext.Now(ctx).UTC()
	actor := requestcontext.Actor(ctx)
	var changed bool
	err := s.repo.RunInTx(ctx, ownerID, func(ctx context.Context, tx store.Store) error {
		doc, err := tx.FindByID(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Status == models.StatusArchived {
			return nil
		}
		prior := doc.Status
		doc.Archive(now)
		if err := tx.Update(ctx, doc); err != nil {
			return err
		}
		changed = true
		return tx.AppendAudit(ctx, &models.AuditEntry{
			DocumentID: doc.ID,
			Event:      models.EntryDeleted,
			Actor:      actor,
			Payload:    map[string]any{"previous_status": string(prior)},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return translateStoreErr(err, "failed to delete document")
	}
	if changed {
		s.sink.Record(ctx, audit.EventDocumentDeleted, audit.SeverityInfo, map[string]any{
			"document_id": documentID.String(),
			"owner_id":    ownerID.String(),
		})
		s.logger.InfoContext(ctx, "document deleted", "document_id", documentID.String(), "owner_id", ownerID.String())
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid document status")
	}
	docs, err := s.repo.List(ctx, filter.Normalize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// VerifyIntegrity re-reads a stored document and compares it with the hash
// recorded at upload. Intended for operators; no ownership check.
func (s *Service) VerifyIntegrity(ctx context.Context, documentID domain.DocumentID) (bool, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		return false, translateStoreErr(err, "failed to load document")
	}
	ok, err := s.objects.VerifyIntegrity(ctx, doc.StoragePath, *keyRef(doc), doc.ContentHash)
	if err != nil {
		return false, err
	}
	event := models.EntryIntegrityOK
	if !ok {
		event = models.EntryTampered
	}
	s.appendAudit(ctx, doc.ID, event, map[string]any{"path": doc.StoragePath})
	return ok, nil
}

func (s *Service) loadOwned(ctx context.Context, documentID domain.DocumentID, ownerID domain.OwnerID, action string) (*models.Document, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load document")
	}
	if doc.OwnerID != ownerID {
		s.sink.Record(ctx, audit.EventAccessDenied, audit.SeverityWarning, map[string]any{
			"document_id": documentID.String(),
			"owner_id":    ownerID.String(),
			"action":      action,
		})
		s.logger.WarnContext(ctx, "document access denied",
			"document_id", documentID.String(), "requested_by", ownerID.String(), "action", action)
		return nil, dErrors.AccessDeniedError("access to this document is denied")
	}
	return doc, nil
}

// tampered raises the critical integrity event and records it on the document.
func (s *Service) tampered(ctx context.Context, doc *models.Document, reason string) {
	s.sink.Record(ctx, audit.EventIntegrityMismatch, audit.SeverityCritical, map[string]any{
		"document_id": doc.ID.String(),
		"owner_id":    doc.OwnerID.String(),
		"path":        doc.StoragePath,
		"reason":      reason,
	})
	s.appendAudit(ctx, doc.ID, models.EntryTampered, map[string]any{"path": doc.StoragePath, "reason": reason})
}

// appendAudit writes an entry outside the upload transaction. Failures are
// logged; the read that triggered them has already succeeded.
func (s *Service) appendAudit(ctx context.Context, documentID domain.DocumentID, event string, payload map[string]any) {
	err := s.repo.AppendAudit(ctx, &models.AuditEntry{
		DocumentID: documentID,
		Event:      event,
		Actor:      requestcontext.Actor(ctx),
		Payload:    payload,
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit entry", "document_id", documentID.String(), "event", event, "error", err)
	}
}

func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func keyRef(doc *models.Document) *storage.KeyRef {
	return &storage.KeyRef{KeyID: doc.KeyID, DocumentID: doc.ID, OwnerID: doc.OwnerID}
}

// extensionFor prefers the extension of the detected type over the
// client-supplied filename.
func extensionFor(detected, filename string) string {
	if m := mimetype.Lookup(detected); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return strings.ToLower(filepath.Ext(filename))
}
