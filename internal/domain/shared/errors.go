// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInProgress             = errors.New("operation already in progress")

	// Storage errors
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "course", "student", "import"
	Op      string // Operation that failed, e.g., "Resolve", "Commit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Catalog errors. Out-of-scope records surface as these, never as ErrForbidden.
var (
	ErrDivisionNotFound   = NewDomainError("division", "Find", ErrNotFound, "division not found")
	ErrDepartmentNotFound = NewDomainError("department", "Find", ErrNotFound, "department not found")
	ErrCourseNotFound     = NewDomainError("course", "Find", ErrNotFound, "course not found")
	ErrRegulationNotFound = NewDomainError("regulation", "Find", ErrNotFound, "regulation not found")
)

// Student and enrollment errors
var (
	ErrStudentNotFound         = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrEnrollmentAlreadyExists = NewDomainError("enrollment", "Create", ErrAlreadyExists, "enrollment already exists")
	ErrInvalidTerm             = NewDomainError("enrollment", "Validate", ErrValueOutOfRange, "invalid term attributes")
)

// Actor errors
var (
	ErrActorNotFound      = NewDomainError("actor", "Find", ErrNotFound, "actor not found")
	ErrInvalidCredentials = NewDomainError("actor", "Authenticate", ErrUnauthorized, "invalid credentials")
)

// Import errors
var (
	ErrImportInProgress = NewDomainError("import", "Lock", ErrInProgress, "the same file is already being imported")
	ErrEmptyUpload      = NewDomainError("import", "Extract", ErrEmptyValue, "uploaded file is empty")
	ErrMalformedSheet   = NewDomainError("import", "Extract", ErrInvalidFormat, "malformed sheet")
	ErrReportNotFound   = NewDomainError("import", "FindReport", ErrNotFound, "import report not found")
	ErrReportExists     = NewDomainError("import", "SaveReport", ErrAlreadyExists, "import report already stored for this run")
)

// NewTransactionError wraps a storage commit failure. The whole run is discarded.
func NewTransactionError(op string, err error) *DomainError {
	return WrapError("import", op, ErrTransactionFailed, "commit failed, nothing was written", err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsTransactionFailure checks if the error aborted a whole run.
func IsTransactionFailure(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
