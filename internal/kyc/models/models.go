// Package models holds KYC roles, requirement sets and the derived
// onboarding status.
package models

import (
	"errors"
	"fmt"
	"sort"

	docmodels "kycvault/internal/document/models"
	"kycvault/pkg/domain"
)

type Role string

const (
	RoleIndividual Role = "individual"
	RoleBusiness   Role = "business"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleIndividual, RoleBusiness:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Status string

const (
	StatusNotStarted       Status = "not_started"
	StatusInProgress       Status = "in_progress"
	StatusPendingReview    Status = "pending_review"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusRequiresRevision Status = "requires_revision"
)

// Requirements maps a role to its ordered list of required categories.
type Requirements map[Role][]domain.CategoryID

// DefaultRequirements is used when no catalog file overrides them.
func DefaultRequirements() Requirements {
	return Requirements{
		RoleIndividual: {"national_id", "proof_of_address", "selfie"},
		RoleBusiness:   {"business_registration", "tax_certificate", "director_id", "proof_of_address"},
	}
}

// Roles returns the configured roles in name order.
func (r Requirements) Roles() []Role {
	roles := make([]Role, 0, len(r))
	for role := range r {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// FromConfig converts a role-name keyed map, as read from a catalog file,
// overlaying it on the defaults.
func FromConfig(raw map[string][]domain.CategoryID) (Requirements, error) {
	out := DefaultRequirements()
	for name, ids := range raw {
		role := Role(name)
		if role == "" {
			return nil, errors.New("requirement set has an empty role name")
		}
		out[role] = append([]domain.CategoryID(nil), ids...)
	}
	return out, nil
}

// Requirement is the state of one required category.
type Requirement struct {
	CategoryID     domain.CategoryID
	Uploaded       bool
	Approved       bool
	DocumentID     *domain.DocumentID
	DocumentStatus docmodels.Status
}

// KYCStatus is recomputed from the owner's active documents on every read.
type KYCStatus struct {
	OwnerID           domain.OwnerID
	Role              Role
	Status            Status
	CompletionPercent float64
	Requirements      []Requirement
}

// Missing lists required categories with no active document.
func (s *KYCStatus) Missing() []domain.CategoryID {
	var out []domain.CategoryID
	for _, r := range s.Requirements {
		if !r.Uploaded {
			out = append(out, r.CategoryID)
		}
	}
	return out
}

// Derive computes the status for role from the owner's active documents.
// Documents outside the requirement set are ignored.
func Derive(ownerID domain.OwnerID, role Role, required []domain.CategoryID, active []*docmodels.Document) *KYCStatus {
	byCategory := make(map[domain.CategoryID]*docmodels.Document, len(active))
	for _, d := range active {
		if d.Status.IsActive() {
			byCategory[d.CategoryID] = d
		}
	}

	st := &KYCStatus{OwnerID: ownerID, Role: role, Requirements: make([]Requirement, 0, len(required))}
	var uploaded, approved, rejected, pending int
	for _, id := range required {
		req := Requirement{CategoryID: id}
		if d, ok := byCategory[id]; ok {
			docID := d.ID
			req.Uploaded = true
			req.Approved = d.Status == docmodels.StatusApproved
			req.DocumentID = &docID
			req.DocumentStatus = d.Status
			uploaded++
			switch d.Status {
			case docmodels.StatusApproved:
				approved++
			case docmodels.StatusRejected:
				rejected++
			case docmodels.StatusPending:
				pending++
			}
		}
		st.Requirements = append(st.Requirements, req)
	}

	total := len(required)
	if total > 0 {
		st.CompletionPercent = float64(uploaded) / float64(total) * 100
	}

	switch {
	case uploaded == 0:
		st.Status = StatusNotStarted
	case approved == total:
		st.Status = StatusApproved
	case rejected > 0 && pending > 0:
		st.Status = StatusRequiresRevision
	case rejected > 0:
		st.Status = StatusRejected
	case uploaded < total:
		st.Status = StatusInProgress
	default:
		st.Status = StatusPendingReview
	}
	return st
}
