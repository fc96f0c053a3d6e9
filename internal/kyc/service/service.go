// Package service drives the KYC review workflow over the document store.
// Status is never stored; every call derives it from the owner's active
// documents.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	docmodels "kycvault/internal/document/models"
	"kycvault/internal/document/store"
	"kycvault/internal/kyc/models"
	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/sentinel"
	"kycvault/pkg/requestcontext"
)

// Repository is the document store plus its per-owner transaction.
type Repository interface {
	store.Store
	store.Tx
}

type Service struct {
	repo         Repository
	requirements models.Requirements
	sink         audit.Sink
	logger       *slog.Logger
	metrics      *Metrics
}

type Option func(*Service)

func WithSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(repo Repository, requirements models.Requirements, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("document repository is required")
	}
	if len(requirements) == 0 {
		requirements = models.DefaultRequirements()
	}
	for role, ids := range requirements {
		if len(ids) == 0 {
			return nil, errors.New("requirement set " + string(role) + " is empty")
		}
	}
	s := &Service{
		repo:         repo,
		requirements: requirements,
		sink:         audit.NopSink{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Requirements returns the required categories for role.
func (s *Service) Requirements(role models.Role) ([]domain.CategoryID, error) {
	ids, ok := s.requirements[role]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+string(role))
	}
	return ids, nil
}

func (s *Service) GetStatus(ctx context.Context, ownerID domain.OwnerID, role models.Role) (*models.KYCStatus, error) {
	required, err := s.Requirements(role)
	if err != nil {
		return nil, err
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner id is required")
	}
	docs, err := s.repo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
	}
	return models.Derive(ownerID, role, required, docs), nil
}

// Submit moves every pending active document of the owner to under_review.
// All required categories must be uploaded first. Submitting again while
// documents are already under review is a no-op.
func (s *Service) Submit(ctx context.Context, ownerID domain.OwnerID, role models.Role, actorID string) (*models.KYCStatus, error) {
	required, err := s.Requirements(role)
	if err != nil {
		return nil, err
	}
	moved, err := s.transition(ctx, ownerID, actorID, func(docs []*docmodels.Document) ([]*docmodels.Document, error) {
		st := models.Derive(ownerID, role, required, docs)
		if missing := st.Missing(); len(missing) > 0 {
			details := make([]string, len(missing))
			for i, id := range missing {
				details[i] = "missing required document: " + id.String()
			}
			return nil, dErrors.ValidationError("all required documents must be uploaded before submission", details)
		}
		var pending, inReview []*docmodels.Document
		for _, d := range docs {
			switch d.Status {
			case docmodels.StatusPending:
				pending = append(pending, d)
			case docmodels.StatusUnderReview:
				inReview = append(inReview, d)
			}
		}
		if len(pending) == 0 && len(inReview) == 0 {
			return nil, dErrors.New(dErrors.CodeConflict, "no documents awaiting submission")
		}
		return pending, nil
	}, docmodels.StatusUnderReview, docmodels.EntrySubmitted, nil)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, "submit", audit.EventKYCSubmitted, ownerID, role, actorID, moved, nil)
	return s.GetStatus(ctx, ownerID, role)
}

// Approve marks every under_review document of the owner approved.
func (s *Service) Approve(ctx context.Context, ownerID domain.OwnerID, role models.Role, actorID, notes string) (*models.KYCStatus, error) {
	if _, err := s.Requirements(role); err != nil {
		return nil, err
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reviewer id is required")
	}
	review := &review{actor: actorID, notes: strings.TrimSpace(notes)}
	moved, err := s.transition(ctx, ownerID, actorID, underReview, docmodels.StatusApproved, docmodels.EntryApproved, review)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, "approve", audit.EventKYCApproved, ownerID, role, actorID, moved, map[string]any{"notes": review.notes})
	return s.GetStatus(ctx, ownerID, role)
}

// Reject marks every under_review document of the owner rejected. A reason
// is mandatory and is recorded on each document.
func (s *Service) Reject(ctx context.Context, ownerID domain.OwnerID, role models.Role, actorID, reason string) (*models.KYCStatus, error) {
	if _, err := s.Requirements(role); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rejection reason is required")
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reviewer id is required")
	}
	review := &review{actor: actorID, notes: reason}
	moved, err := s.transition(ctx, ownerID, actorID, underReview, docmodels.StatusRejected, docmodels.EntryRejected, review)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, "reject", audit.EventKYCRejected, ownerID, role, actorID, moved, map[string]any{"reason": reason})
	return s.GetStatus(ctx, ownerID, role)
}

// ListPendingReviews returns the status of every owner with documents under
// review whose requirement set for role is complete. An empty role checks
// every configured role.
func (s *Service) ListPendingReviews(ctx context.Context, role models.Role) ([]*models.KYCStatus, error) {
	roles := s.requirements.Roles()
	if role != "" {
		if _, err := s.Requirements(role); err != nil {
			return nil, err
		}
		roles = []models.Role{role}
	}
	owners, err := s.repo.ListOwnersWithStatus(ctx, docmodels.StatusUnderReview)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list owners under review")
	}
	var out []*models.KYCStatus
	for _, owner := range owners {
		docs, err := s.repo.ListActiveByOwner(ctx, owner)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
		}
		for _, r := range roles {
			st := models.Derive(owner, r, s.requirements[r], docs)
			if st.Status == models.StatusPendingReview && hasStatus(docs, docmodels.StatusUnderReview) {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

type review struct {
	actor string
	notes string
}

func underReview(docs []*docmodels.Document) ([]*docmodels.Document, error) {
	var out []*docmodels.Document
	for _, d := range docs {
		if d.Status == docmodels.StatusUnderReview {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "no documents under review")
	}
	return out, nil
}

// transition selects documents inside the owner's transaction, moves them to
// next and appends one audit entry per document.
func (s *Service) transition(
	ctx context.Context,
	ownerID domain.OwnerID,
	actorID string,
	selectDocs func([]*docmodels.Document) ([]*docmodels.Document, error),
	next docmodels.Status,
	entry string,
	rv *review,
) ([]domain.DocumentID, error) {
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner id is required")
	}
	now := requestcontext.Now(ctx).UTC()
	var moved []domain.DocumentID
	err := s.repo.RunInTx(ctx, ownerID, func(ctx context.Context, tx store.Store) error {
		moved = moved[:0]
		docs, err := tx.ListActiveByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		selected, err := selectDocs(docs)
		if err != nil {
			return err
		}
		for _, d := range selected {
			prior := d.Status
			d.Status = next
			d.UpdatedAt = now
			payload := map[string]any{"previous_status": string(prior)}
			if rv != nil {
				d.ReviewedBy = rv.actor
				d.ReviewNotes = rv.notes
				if rv.notes != "" {
					payload["notes"] = rv.notes
				}
			}
			if err := tx.Update(ctx, d); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, &docmodels.AuditEntry{
				DocumentID: d.ID,
				Event:      entry,
				Actor:      actorID,
				Payload:    payload,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
			moved = append(moved, d.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update documents")
	}
	return moved, nil
}

func (s *Service) emit(ctx context.Context, action string, event audit.AuditEvent, ownerID domain.OwnerID, role models.Role, actorID string, moved []domain.DocumentID, extra map[string]any) {
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(action, string(role)).Inc()
		s.metrics.Documents.WithLabelValues(action).Add(float64(len(moved)))
	}
	if len(moved) == 0 {
		return
	}
	ids := make([]string, len(moved))
	for i, id := range moved {
		ids[i] = id.String()
	}
	payload := map[string]any{
		"owner_id":     ownerID.String(),
		"role":         string(role),
		"actor_id":     actorID,
		"document_ids": ids,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.sink.Record(ctx, event, audit.SeverityInfo, payload)
	s.logger.InfoContext(ctx, "kyc review action", "action", action, "owner_id", ownerID.String(),
		"role", string(role), "documents", len(moved))
}

func hasStatus(docs []*docmodels.Document, st docmodels.Status) bool {
	for _, d := range docs {
		if d.Status == st {
			return true
		}
	}
	return false
}
