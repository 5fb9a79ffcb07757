package domain

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrStore        = errors.New("store failure")
	ErrConflict     = errors.New("already exists")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidEvent = errors.New("invalid event")
)

// Error codes sent to clients.
const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeInvalidEvent = "invalid_event"
	CodeValidation   = "validation_failed"
	CodeStore        = "store_failure"
	CodeConflict     = "already_exists"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal_error"
)

// CodeOf maps an error to its client-facing code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidEvent):
		return CodeInvalidEvent
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrStore):
		return CodeStore
	default:
		return CodeInternal
	}
}
