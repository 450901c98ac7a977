// Package apperror defines the error taxonomy shared by every layer.
//
// TWO LEVELS OF SENTINELS:
// Classes (ErrValidation, ErrNotFound, ...) decide the HTTP status.
// Kinds (ErrPollExpired, ErrTooFewOptions, ...) name the exact business rule
// that failed. Every kind wraps exactly one class with %w, so both of these
// hold for a PollExpired error:
//
//	errors.Is(err, apperror.ErrPollExpired) // true
//	errors.Is(err, apperror.ErrRejected)    // true
//
// Handlers switch on classes; services and tests assert on kinds.
package apperror

import (
	"errors"
	"fmt"
)

// Classes.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrRejected     = errors.New("rejected")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("unavailable")
)

// Kinds.
var (
	ErrOptionNotFound       = fmt.Errorf("option not found: %w", ErrRejected)
	ErrPollExpired          = fmt.Errorf("poll expired: %w", ErrRejected)
	ErrPollAtCapacity       = fmt.Errorf("poll at capacity: %w", ErrRejected)
	ErrQuotaExceeded        = fmt.Errorf("quota exceeded: %w", ErrRejected)
	ErrDuplicateProjectName = fmt.Errorf("duplicate project name: %w", ErrRejected)

	ErrTooFewOptions       = fmt.Errorf("too few options: %w", ErrValidation)
	ErrTooManyOptions      = fmt.Errorf("too many options: %w", ErrValidation)
	ErrDuplicateOptionText = fmt.Errorf("duplicate option text: %w", ErrValidation)

	ErrPollNotFound    = fmt.Errorf("poll not found: %w", ErrNotFound)
	ErrProjectNotFound = fmt.Errorf("project not found: %w", ErrNotFound)
	// ErrNotFoundOrForbidden is the only outcome a caller sees when a
	// project is missing or owned by someone else.
	ErrNotFoundOrForbidden = fmt.Errorf("not found or access denied: %w", ErrNotFound)

	ErrDuplicateEmail      = fmt.Errorf("duplicate email: %w", ErrConflict)
	ErrIdempotencyMismatch = fmt.Errorf("idempotency key reused: %w", ErrConflict)

	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)

	ErrStorageUnavailable = fmt.Errorf("storage unavailable: %w", ErrUnavailable)
)

type AppError struct {
	Err     error  // class or kind sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means no (valid) principal was presented.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// New builds an AppError for a specific kind.
func New(kind error, field, message string) *AppError {
	return &AppError{
		Err:     kind,
		Message: message,
		Field:   field,
	}
}

// Unavailable wraps an infrastructure failure. The message is generic on
// purpose; cause is kept for the logs.
func Unavailable(cause error) *AppError {
	return &AppError{
		Err:     ErrStorageUnavailable,
		Message: "storage is temporarily unavailable, please retry",
		Cause:   cause,
	}
}

// NotFoundOrForbidden is returned for ownership-checked lookups. Callers
// log the precise reason themselves.
func NotFoundOrForbidden(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFoundOrForbidden,
		Message: fmt.Sprintf("%s not found or access denied", resource),
	}
}
