/*
errors.go - Centralized error types for the cost engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them with context) so callers can
  classify any failure with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - out-of-range or missing input, rejected before
     any derived field is written
  2. Not-found errors - operation on an id absent from the store
  3. Conflict errors - stale optimistic version on update
  4. Cascade failures - some records failed during a configuration-driven
     recompute; successful records are kept

USAGE:
  if errors.Is(err, generic.ErrNotFound) { ... }

  var cf *generic.CascadeFailure
  if errors.As(err, &cf) {
      log.Printf("failed: %v", cf.Failed)
  }

SEE ALSO:
  - labor/registry.go: returns CascadeFailure from UpdateConfiguration
  - api/handlers.go: maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when an input is missing or out of range.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when an update carries a stale version.
	ErrConflict = errors.New("version conflict")

	// ErrArchived is returned when editing a record that was soft-deleted.
	ErrArchived = errors.New("record is archived")

	// ErrCascadeFailed is returned when one or more records failed to
	// recompute during a cascade.
	ErrCascadeFailed = errors.New("cascade recompute failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "position", "budget", "composition"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError reports an optimistic-lock mismatch.
type ConflictError struct {
	Kind     string
	ID       string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: expected version %d, stored version is %d",
		e.Kind, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ArchivedError reports an edit attempted on an archived record.
type ArchivedError struct {
	Kind string
	ID   string
}

func (e *ArchivedError) Error() string {
	return fmt.Sprintf("%s %q is archived; restore it before editing", e.Kind, e.ID)
}

func (e *ArchivedError) Unwrap() error {
	return ErrArchived
}

// CascadeFailure lists which records recomputed and which did not.
// Succeeded records stay written; the cascade is best-effort per record.
type CascadeFailure struct {
	Succeeded []string
	Failed    map[string]error
}

func (e *CascadeFailure) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s: %v", id, e.Failed[id])
	}
	return fmt.Sprintf("cascade recompute failed for %d of %d records (%s)",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(parts, "; "))
}

func (e *CascadeFailure) Unwrap() error {
	return ErrCascadeFailed
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrArchived)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the caller should reload and retry its edit.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
