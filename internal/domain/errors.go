// Package domain holds the types shared by the session, swipe and matching
// packages along with the error taxonomy surfaced to clients.
package domain

import "errors"

// Sentinel errors used across all layers. Stores and services wrap them with
// context; the HTTP layer maps them to status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrSessionFull        = errors.New("session is full")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCandidate   = errors.New("restaurant is not a candidate of this session")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrValidation         = errors.New("validation error")
	ErrRateLimited        = errors.New("rate limited")

	// ErrConflict is returned by a conditional write whose precondition no
	// longer holds. It does not reach clients; services retry or translate it.
	ErrConflict = errors.New("conflict")
)

// ValidationError describes an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Code returns the stable machine-readable code for err, as carried in API
// error bodies and push error messages.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionFull):
		return "session_full"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidCandidate):
		return "invalid_candidate"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCatalogUnavailable):
		return "catalog_unavailable"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
