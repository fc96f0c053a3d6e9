// Package domain holds typed identifiers shared across modules.
//
// IDs are parsed once at trust boundaries; past that point the type system
// keeps a DocumentID from being passed where an OwnerID is expected.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "kycvault/pkg/domain-errors"
)

type (
	DocumentID uuid.UUID
	OwnerID    uuid.UUID
	ScanID     uuid.UUID
)

func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }
func NewScanID() ScanID         { return ScanID(uuid.New()) }
func NewOwnerID() OwnerID       { return OwnerID(uuid.New()) }

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OwnerID) String() string    { return uuid.UUID(id).String() }
func (id OwnerID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ScanID) String() string     { return uuid.UUID(id).String() }
func (id ScanID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// IDs encode as their canonical string in JSON and YAML.
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id OwnerID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ScanID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document ID")
	return DocumentID(u), err
}

func ParseOwnerID(s string) (OwnerID, error) {
	u, err := parseUUID(s, "owner ID")
	return OwnerID(u), err
}

func ParseScanID(s string) (ScanID, error) {
	u, err := parseUUID(s, "scan ID")
	return ScanID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// CategoryID names a document category such as "national_id".
type CategoryID string

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

func (c CategoryID) String() string { return string(c) }

// ParseCategoryID accepts lower snake_case identifiers of 2 to 64 characters.
// Category IDs end up in object keys, so anything else is rejected.
func ParseCategoryID(s string) (CategoryID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category ID is required")
	}
	if !categoryPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category ID")
	}
	return CategoryID(s), nil
}
