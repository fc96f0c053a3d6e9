package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kycvault/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
//
// Justification: This is a pure function enforcing a domain invariant
// at trust boundaries. Per testing.md, unit tests are allowed for invariants.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseOwnerID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseOwnerID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseOwnerID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseOwnerID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, OwnerID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	ownerID := OwnerID(uuid.New())
	documentID := DocumentID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ OwnerID = documentID   // compile error
	// var _ DocumentID = ownerID   // compile error

	assert.NotEqual(t, uuid.UUID(ownerID), uuid.UUID(documentID))
}

// TestCrossTypeAssignment_CompileTimeInvariant documents the compile-time invariant.
// If someone removes type safety, this test's comments become incorrect.
//
// Justification: Documents security invariant - typed IDs prevent cross-type assignment.
func TestCrossTypeAssignment_CompileTimeInvariant(t *testing.T) {
	// The following would fail to compile:
	// var oid OwnerID = DocumentID(uuid.New())  // type mismatch
	// var did DocumentID = OwnerID(uuid.New())  // type mismatch
	// acceptsOwnerID(ScanID(uuid.New()))        // argument type mismatch

	// This test documents the invariant. If types become aliases,
	// these assignments would compile and the invariant is broken.
	t.Log("Typed IDs prevent cross-type assignment at compile time")
}

// TestParseID_SecurityInvariants validates security-critical parsing rules.
//
// Justification: These are trust boundary invariants - parsing must reject
// attack vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE documents;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		// Note: uuid.Parse trims whitespace, so " uuid " is accepted as valid

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOwnerID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestOwnerIsolation_DistinctOwnersNeverCompareEqual documents that ownership
// checks compare typed IDs by value.
func TestOwnerIsolation_DistinctOwnersNeverCompareEqual(t *testing.T) {
	ownerA := OwnerID(uuid.New())
	ownerB := OwnerID(uuid.New())

	assert.NotEqual(t, ownerA, ownerB, "Different owners must have different IDs")
	parsed, err := ParseOwnerID(ownerA.String())
	require.NoError(t, err)
	assert.Equal(t, ownerA, parsed)
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical parsing behavior.
//
// Justification: Inconsistent validation across ID types could create security holes.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	// All types should accept valid UUID
	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errOwner := ParseOwnerID(validUUID)
		_, errDocument := ParseDocumentID(validUUID)
		_, errScan := ParseScanID(validUUID)

		require.NoError(t, errOwner)
		require.NoError(t, errDocument)
		require.NoError(t, errScan)
	})

	// All types should reject invalid inputs identically
	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errOwner := ParseOwnerID(input)
			_, errDocument := ParseDocumentID(input)
			_, errScan := ParseScanID(input)

			require.Error(t, errOwner)
			require.Error(t, errDocument)
			require.Error(t, errScan)
		})
	}
}

func TestParseCategoryID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"national_id", false},
		{"proof_of_address", false},
		{"", true},
		{"National_ID", true},
		{"../national_id", true},
		{"a", true},
		{"id/../../etc", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategoryID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, CategoryID(tt.input), got)
		})
	}
}

func TestIDsMarshalAsStrings(t *testing.T) {
	owner := NewOwnerID()
	out, err := json.Marshal(map[string]any{"owner": owner})
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"`+owner.String()+`"}`, string(out))
}
