// Package domainerrors defines coded errors returned across service boundaries.
//
// Stores and adapters return sentinel facts (pkg/platform/sentinel); services
// translate those into coded errors so callers can branch on a stable Code
// without parsing messages.
package domainerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a domain error.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "access_denied"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Document handling codes.
	CodeSecurity    Code = "security_error"
	CodeEncryption  Code = "encryption_error"
	CodeIntegrity   Code = "integrity_error"
	CodeStorage     Code = "storage_error"
	CodeRateLimited Code = "rate_limited"
)

// Error is a coded domain error. Details carries itemized, caller-safe
// findings (for example individual validation failures).
type Error struct {
	Code    Code
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error. Wrapping nil returns nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WithDetails creates a coded error carrying itemized findings.
func WithDetails(code Code, msg string, details []string) error {
	return &Error{Code: code, Message: msg, Details: append([]string(nil), details...)}
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailsOf returns the itemized details of the outermost coded error.
func DetailsOf(err error) []string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

// Summary renders message and details on one line, suitable for logs.
func Summary(err error) string {
	var de *Error
	if !errors.As(err, &de) || len(de.Details) == 0 {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	return de.Message + ": " + strings.Join(de.Details, "; ")
}

// Constructors for the document pipeline. Messages are caller-safe; internal
// causes stay in Err for logs.

func ValidationError(msg string, details []string) error {
	return WithDetails(CodeValidation, msg, details)
}

func SecurityError(msg string) error { return New(CodeSecurity, msg) }

func IntegrityError(msg string) error { return New(CodeIntegrity, msg) }

func EncryptionError(err error, msg string) error { return Wrap(err, CodeEncryption, msg) }

func StorageError(err error, msg string) error { return Wrap(err, CodeStorage, msg) }

func AccessDeniedError(msg string) error { return New(CodeForbidden, msg) }

func RateLimitError(msg string) error { return New(CodeRateLimited, msg) }
