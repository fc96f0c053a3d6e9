package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kycvault/pkg/domain"
)

func TestListFilter(t *testing.T) {
	owner := domain.NewOwnerID()
	active := &Document{OwnerID: owner, CategoryID: "national_id", Status: StatusPending}
	archived := &Document{OwnerID: owner, CategoryID: "national_id", Status: StatusArchived}

	t.Run("archived excluded by default", func(t *testing.T) {
		f := ListFilter{OwnerID: owner}
		assert.True(t, f.Matches(active))
		assert.False(t, f.Matches(archived))
	})

	t.Run("archived included on request", func(t *testing.T) {
		f := ListFilter{OwnerID: owner, IncludeArchived: true}
		assert.True(t, f.Matches(archived))
	})

	t.Run("explicit status wins", func(t *testing.T) {
		f := ListFilter{Status: StatusArchived}
		assert.True(t, f.Matches(archived))
		assert.False(t, f.Matches(active))
	})

	t.Run("other owner", func(t *testing.T) {
		f := ListFilter{OwnerID: domain.NewOwnerID()}
		assert.False(t, f.Matches(active))
	})

	t.Run("limits are clamped", func(t *testing.T) {
		assert.Equal(t, DefaultListLimit, ListFilter{}.Normalize().Limit)
		assert.Equal(t, MaxListLimit, ListFilter{Limit: 10_000}.Normalize().Limit)
		assert.Equal(t, 0, ListFilter{Offset: -3}.Normalize().Offset)
	})
}

func TestCloneIsDeep(t *testing.T) {
	at := time.Now()
	d := &Document{
		ThreatNames:   []string{"a"},
		ExtractedData: map[string]string{"k": "v"},
		ArchivedAt:    &at,
	}
	c := d.Clone()
	c.ThreatNames[0] = "b"
	c.ExtractedData["k"] = "changed"
	*c.ArchivedAt = at.Add(time.Hour)

	assert.Equal(t, "a", d.ThreatNames[0])
	assert.Equal(t, "v", d.ExtractedData["k"])
	assert.Equal(t, at, *d.ArchivedAt)
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusUnderReview.IsActive())
	assert.False(t, StatusArchived.IsActive())
	assert.False(t, Status("bogus").IsValid())
}
