// Package service runs the upload pipeline and serves stored documents.
//
// Upload order: rate limit, in-flight slot, malware scan, validation,
// encryption, object write, then one locked transaction that archives the
// owner's prior document in the category and activates the new one. A
// failed transaction deletes the objects it wrote or queues them as orphans.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"kycvault/internal/document/models"
	"kycvault/internal/document/store"
	"kycvault/internal/encryption"
	"kycvault/internal/scan"
	"kycvault/internal/storage"
	"kycvault/internal/validation"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

const (
	DefaultMaxInFlight   = 16
	DefaultMaxUploadSize = 50 << 20
	compensationTimeout  = 30 * time.Second
	tracerName           = "kycvault/internal/document"
)

// Repository is a document store that can also run owner-scoped transactions.
type Repository interface {
	store.Store
	store.Tx
}

type Service struct {
	repo      Repository
	catalog   domain.Catalog
	scanner   Scanner
	validator Validator
	cipher    Encrypter
	objects   ObjectStorage
	limiter   UploadLimiter
	inFlight  *semaphore.Weighted
	maxUpload int64
	sink      audit.Sink
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLimiter(l UploadLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithMaxInFlight caps concurrent uploads past the rate limiter.
func WithMaxInFlight(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.inFlight = semaphore.NewWeighted(n)
		}
	}
}

// WithMaxUploadSize rejects larger bodies before any scanning work.
func WithMaxUploadSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func WithSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(repo Repository, catalog domain.Catalog, scanner Scanner, validator Validator, cipher Encrypter, objects ObjectStorage, opts ...Option) (*Service, error) {
	switch {
	case repo == nil:
		return nil, errors.New("document repository is required")
	case len(catalog) == 0:
		return nil, errors.New("category catalog is empty")
	case scanner == nil, validator == nil, cipher == nil, objects == nil:
		return nil, errors.New("scanner, validator, cipher and object storage are required")
	}
	s := &Service{
		repo:      repo,
		catalog:   catalog,
		scanner:   scanner,
		validator: validator,
		cipher:    cipher,
		objects:   objects,
		inFlight:  semaphore.NewWeighted(DefaultMaxInFlight),
		maxUpload: DefaultMaxUploadSize,
		sink:      audit.NopSink{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UploadRequest is one document submission. Content is the full plaintext.
type UploadRequest struct {
	OwnerID      domain.OwnerID
	CategoryID   domain.CategoryID
	Filename     string
	DeclaredMIME string
	DeclaredSize int64
	Content      []byte
}

type UploadResult struct {
	Document   *models.Document
	Validation *validation.Result
	Scan       *scan.Consensus
	// Archived is the document this upload replaced, if any.
	Archived *domain.DocumentID
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) (res *UploadResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "document.Upload", trace.WithAttributes(
		attribute.String("owner_id", req.OwnerID.String()),
		attribute.String("category_id", req.CategoryID.String()),
		attribute.Int("size", len(req.Content)),
	))
	defer func() {
		endSpan(span, err)
		if s.metrics != nil {
			s.metrics.Uploads.WithLabelValues(outcome(err)).Inc()
			s.metrics.UploadDuration.Observe(time.Since(start).Seconds())
		}
	}()

	category, err := s.checkRequest(req)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.AllowUpload(ctx, req.OwnerID); err != nil {
			return nil, err
		}
	}
	if err := s.inFlight.Acquire(ctx, 1); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "upload cancelled while waiting for a pipeline slot")
	}
	defer s.inFlight.Release(1)
	if s.metrics != nil {
		s.metrics.InFlight.Inc()
		defer s.metrics.InFlight.Dec()
	}

	docID := domain.NewDocumentID()
	span.SetAttributes(attribute.String("document_id", docID.String()))
	logger := s.logger.With("document_id", docID.String(), "owner_id", req.OwnerID.String(), "category_id", req.CategoryID.String())

	var consensus *scan.Consensus
	err = s.stage(ctx, "scan", func(ctx context.Context) error {
		var scanErr error
		consensus, scanErr = s.scanner.Scan(ctx, req.Content, docID, req.OwnerID)
		return scanErr
	})
	if err != nil {
		logger.ErrorContext(ctx, "malware scan failed", "error", err)
		return nil, err
	}
	if !consensus.Passed() {
		return nil, s.rejectScan(ctx, logger, req, docID, consensus)
	}

	var verdict *validation.Result
	_ = s.stage(ctx, "validate", func(ctx context.Context) error {
		verdict = s.validator.Validate(ctx, req.Content, validation.Metadata{
			Filename:     req.Filename,
			DeclaredMIME: req.DeclaredMIME,
			DeclaredSize: req.DeclaredSize,
			Category:     category,
		})
		return nil
	})
	if !verdict.IsValid {
		return nil, s.rejectValidation(ctx, logger, req, docID, verdict)
	}

	var envelope *encryption.Envelope
	err = s.stage(ctx, "encrypt", func(ctx context.Context) error {
		var encErr error
		envelope, encErr = s.cipher.Encrypt(ctx, req.Content, docID, req.OwnerID)
		return encErr
	})
	if err != nil {
		logger.ErrorContext(ctx, "encryption failed", "error", err)
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	var obj *storage.StoredObject
	err = s.stage(ctx, "store", func(ctx context.Context) error {
		var storeErr error
		obj, storeErr = s.objects.Store(ctx, envelope.Ciphertext, storage.Metadata{
			DocumentID:  docID,
			OwnerID:     req.OwnerID,
			CategoryID:  req.CategoryID,
			Extension:   extensionFor(verdict.DetectedMIME, req.Filename),
			ContentType: verdict.DetectedMIME,
			CreatedAt:   now,
		})
		return storeErr
	})
	if err != nil {
		logger.ErrorContext(ctx, "object write failed", "error", err)
		return nil, err
	}

	doc := &models.Document{
		ID:               docID,
		OwnerID:          req.OwnerID,
		CategoryID:       req.CategoryID,
		OriginalFilename: req.Filename,
		DeclaredMIME:     req.DeclaredMIME,
		DetectedMIME:     verdict.DetectedMIME,
		Size:             int64(len(req.Content)),
		ContentHash:      s.cipher.Hash(req.Content),
		StoragePath:      obj.Path,
		BackupPath:       obj.BackupPath,
		KeyID:            envelope.KeyID,
		ValidationScore:  verdict.Score,
		ScanID:           consensus.ScanID,
		ScanVerdict:      consensus.Verdict,
		ScanAssumedClean: consensus.AssumedClean,
		ThreatNames:      consensus.ThreatNames,
		Status:           models.StatusPending,
		ExtractedData:    verdict.ExtractedData,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var archived *models.Document
	err = s.stage(ctx, "activate", func(ctx context.Context) error {
		var txErr error
		archived, txErr = s.activate(ctx, doc, verdict, consensus)
		return txErr
	})
	if err != nil {
		s.compensate(ctx, logger, obj, err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "another upload for this category completed first")
		}
		if dErrors.CodeOf(err) == dErrors.CodeTimeout {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save document")
	}

	result := &UploadResult{Document: doc, Validation: verdict, Scan: consensus}
	payload := map[string]any{
		"document_id":   docID.String(),
		"owner_id":      req.OwnerID.String(),
		"category_id":   req.CategoryID.String(),
		"size":          doc.Size,
		"content_hash":  doc.ContentHash,
		"score":         verdict.Score,
		"scan_id":       consensus.ScanID.String(),
		"scan_verdict":  string(consensus.Verdict),
		"assumed_clean": consensus.AssumedClean,
	}
	if archived != nil {
		id := archived.ID
		result.Archived = &id
		payload["replaces"] = id.String()
		s.sink.Record(ctx, audit.EventDocumentArchived, audit.SeverityInfo, map[string]any{
			"document_id": id.String(),
			"owner_id":    req.OwnerID.String(),
			"category_id": req.CategoryID.String(),
			"replaced_by": docID.String(),
		})
	}
	s.sink.Record(ctx, audit.EventDocumentUploaded, audit.SeverityInfo, payload)
	logger.InfoContext(ctx, "document uploaded", "score", verdict.Score, "size", doc.Size, "archived_prior", archived != nil)
	return result, nil
}

func (s *Service) checkRequest(req UploadRequest) (domain.Category, error) {
	if req.OwnerID.IsNil() {
		return domain.Category{}, dErrors.New(dErrors.CodeInvalidInput, "owner ID is required")
	}
	category, ok := s.catalog.Lookup(req.CategoryID)
	if !ok {
		return domain.Category{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown document category %q", req.CategoryID))
	}
	if len(req.Content) == 0 {
		return domain.Category{}, dErrors.ValidationError("document failed validation", []string{"file is empty"})
	}
	if int64(len(req.Content)) > s.maxUpload {
		return domain.Category{}, dErrors.ValidationError("document failed validation",
			[]string{fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUpload)})
	}
	return category, nil
}

// activate writes doc and archives the owner's prior active document in the
// same category within one owner-locked transaction.
func (s *Service) activate(ctx context.Context, doc *models.Document, verdict *validation.Result, consensus *scan.Consensus) (*models.Document, error) {
	actor := requestcontext.Actor(ctx)
	var archived *models.Document
	err := s.repo.RunInTx(ctx, doc.OwnerID, func(ctx context.Context, tx store.Store) error {
		prior, err := tx.FindActive(ctx, doc.OwnerID, doc.CategoryID)
		switch {
		case err == nil:
			prior.Archive(doc.CreatedAt)
			if err := tx.Update(ctx, prior); err != nil {
				return fmt.Errorf("archive prior document: %w", err)
			}
			if err := tx.AppendAudit(ctx, &models.AuditEntry{
				DocumentID: prior.ID,
				Event:      models.EntryArchived,
				Actor:      actor,
				Payload:    map[string]any{"replaced_by": doc.ID.String()},
				CreatedAt:  doc.CreatedAt,
			}); err != nil {
				return err
			}
			archived = prior
		case !errors.Is(err, sentinel.ErrNotFound):
			return fmt.Errorf("find active document: %w", err)
		}

		if err := tx.Create(ctx, doc); err != nil {
			return err
		}
		payload := map[string]any{
			"score":         verdict.Score,
			"scan_id":       consensus.ScanID.String(),
			"scan_verdict":  string(consensus.Verdict),
			"assumed_clean": consensus.AssumedClean,
		}
		if len(verdict.Warnings) > 0 {
			payload["warnings"] = verdict.Warnings
		}
		if archived != nil {
			payload["replaces"] = archived.ID.String()
		}
		entry := &models.AuditEntry{
			DocumentID: doc.ID,
			Event:      models.EntryUploaded,
			Actor:      actor,
			Payload:    payload,
			CreatedAt:  doc.CreatedAt,
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		doc.AuditLog = append(doc.AuditLog, *entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// compensate removes objects written for an upload whose metadata never
// committed. A failed delete leaves the paths in the orphan registry.
func (s *Service) compensate(ctx context.Context, logger *slog.Logger, obj *storage.StoredObject, cause error) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := s.objects.Delete(cleanupCtx, obj.Path, obj.BackupPath)
	if err == nil {
		logger.WarnContext(ctx, "metadata write failed; stored objects removed", "error", cause)
		s.countCompensation("deleted")
		return
	}
	logger.ErrorContext(ctx, "metadata write failed and cleanup failed; recording orphans",
		"error", cause, "cleanup_error", err)
	s.countCompensation("orphaned")
	s.objects.RecordOrphan(cleanupCtx, obj.Path, "metadata write failed", err)
	if obj.BackupPath != "" {
		s.objects.RecordOrphan(cleanupCtx, obj.BackupPath, "metadata write failed", err)
	}
}

func (s *Service) countCompensation(outcome string) {
	if s.metrics != nil {
		s.metrics.Compensations.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) rejectScan(ctx context.Context, logger *slog.Logger, req UploadRequest, docID domain.DocumentID, c *scan.Consensus) error {
	reason := "scan_" + string(c.Verdict)
	s.recordRejection(ctx, req, docID, reason, map[string]any{
		"scan_id":      c.ScanID.String(),
		"scan_verdict": string(c.Verdict),
		"threat_names": c.ThreatNames,
	})
	logger.WarnContext(ctx, "upload rejected by malware scan", "verdict", c.Verdict, "threats", c.ThreatNames)
	switch c.Verdict {
	case scan.VerdictInfected:
		return dErrors.SecurityError("document rejected: malware detected")
	case scan.VerdictSuspicious:
		return dErrors.SecurityError("document rejected: suspicious content")
	default:
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeInternal, "malware scan could not complete; try again later")
	}
}

func (s *Service) rejectValidation(ctx context.Context, logger *slog.Logger, req UploadRequest, docID domain.DocumentID, v *validation.Result) error {
	s.recordRejection(ctx, req, docID, "validation", map[string]any{
		"score":         v.Score,
		"detected_mime": v.DetectedMIME,
		"errors":        v.Errors,
	})
	logger.InfoContext(ctx, "upload failed validation", "score", v.Score, "errors", v.Errors)
	return dErrors.ValidationError("document failed validation", v.Errors)
}

func (s *Service) recordRejection(ctx context.Context, req UploadRequest, docID domain.DocumentID, reason string, extra map[string]any) {
	if s.metrics != nil {
		s.metrics.Rejections.WithLabelValues(reason).Inc()
	}
	payload := map[string]any{
		"document_id": docID.String(),
		"owner_id":    req.OwnerID.String(),
		"category_id": req.CategoryID.String(),
		"filename":    req.Filename,
		"reason":      reason,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.sink.Record(ctx, audit.EventDocumentRejected, audit.SeverityInfo, payload)
}

// stage runs fn inside a child span and records its latency.
func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "document.upload."+name)
	err := fn(ctx)
	endSpan(span, err)
	if s.metrics != nil {
		s.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	return string(dErrors.CodeOf(err))
}
