package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docmodels "kycvault/internal/document/models"
	"kycvault/pkg/domain"
)

var required = []domain.CategoryID{"national_id", "proof_of_address", "selfie"}

func doc(category domain.CategoryID, status docmodels.Status) *docmodels.Document {
	return &docmodels.Document{ID: domain.NewDocumentID(), CategoryID: category, Status: status}
}

func TestDerive(t *testing.T) {
	owner := domain.NewOwnerID()
	tests := []struct {
		name     string
		docs     []*docmodels.Document
		want     Status
		complete float64
	}{
		{"no documents", nil, StatusNotStarted, 0},
		{"unrelated category only", []*docmodels.Document{doc("tax_certificate", docmodels.StatusPending)}, StatusNotStarted, 0},
		{"partially uploaded", []*docmodels.Document{doc("national_id", docmodels.StatusPending)}, StatusInProgress, 100.0 / 3},
		{"all uploaded", []*docmodels.Document{
			doc("national_id", docmodels.StatusPending),
			doc("proof_of_address", docmodels.StatusUnderReview),
			doc("selfie", docmodels.StatusPending),
		}, StatusPendingReview, 100},
		{"all approved", []*docmodels.Document{
			doc("national_id", docmodels.StatusApproved),
			doc("proof_of_address", docmodels.StatusApproved),
			doc("selfie", docmodels.StatusApproved),
		}, StatusApproved, 100},
		{"rejected with nothing new", []*docmodels.Document{
			doc("national_id", docmodels.StatusRejected),
			doc("proof_of_address", docmodels.StatusRejected),
			doc("selfie", docmodels.StatusRejected),
		}, StatusRejected, 100},
		{"rejected with a replacement", []*docmodels.Document{
			doc("national_id", docmodels.StatusPending),
			doc("proof_of_address", docmodels.StatusRejected),
			doc("selfie", docmodels.StatusRejected),
		}, StatusRequiresRevision, 100},
		{"archived documents do not count", []*docmodels.Document{
			doc("national_id", docmodels.StatusArchived),
		}, StatusNotStarted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Derive(owner, RoleIndividual, required, tt.docs)
			assert.Equal(t, tt.want, st.Status)
			assert.InDelta(t, tt.complete, st.CompletionPercent, 0.001)
			assert.Len(t, st.Requirements, len(required))
		})
	}
}

func TestDeriveRequirementDetail(t *testing.T) {
	id := doc("selfie", docmodels.StatusApproved)
	st := Derive(domain.NewOwnerID(), RoleIndividual, required, []*docmodels.Document{id})

	assert.Equal(t, []domain.CategoryID{"national_id", "proof_of_address"}, st.Missing())
	last := st.Requirements[2]
	assert.True(t, last.Uploaded)
	assert.True(t, last.Approved)
	require.NotNil(t, last.DocumentID)
	assert.Equal(t, id.ID, *last.DocumentID)
	assert.Equal(t, docmodels.StatusApproved, last.DocumentStatus)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("business")
	require.NoError(t, err)
	assert.Equal(t, RoleBusiness, r)

	_, err = ParseRole("partner")
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	reqs, err := FromConfig(map[string][]domain.CategoryID{"individual": {"national_id"}})
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryID{"national_id"}, reqs[RoleIndividual])
	assert.Equal(t, DefaultRequirements()[RoleBusiness], reqs[RoleBusiness])
	assert.Equal(t, []Role{RoleBusiness, RoleIndividual}, reqs.Roles())
}
