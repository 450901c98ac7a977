package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ENVELOPE:
// Every response from the API has the same outer shape:
//   {"success": true,  "message": "...", "data": {...}}
//   {"success": false, "error": "poll_expired", "message": "This poll has expired", "field": "optionId"}
//
// `error` is a machine-readable code, `message` is for humans and `field`
// names the request field at fault when there is exactly one.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/pollar/internal/apperror"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// Envelope is the standard response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body; once Encode writes, the
// headers are on the wire and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeOK sends a success envelope.
func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// errorCodes gives specific kinds their own machine code. Anything not
// listed falls back to the code of its class.
var errorCodes = []struct {
	kind error
	code string
}{
	{apperror.ErrPollExpired, "poll_expired"},
	{apperror.ErrPollAtCapacity, "poll_at_capacity"},
	{apperror.ErrOptionNotFound, "option_not_found"},
	{apperror.ErrQuotaExceeded, "quota_exceeded"},
	{apperror.ErrDuplicateProjectName, "duplicate_project_name"},
	{apperror.ErrTooFewOptions, "too_few_options"},
	{apperror.ErrTooManyOptions, "too_many_options"},
	{apperror.ErrDuplicateOptionText, "duplicate_option_text"},
	{apperror.ErrDuplicateEmail, "duplicate_email"},
	{apperror.ErrIdempotencyMismatch, "idempotency_mismatch"},
	{apperror.ErrInvalidCredentials, "invalid_credentials"},
	{apperror.ErrStorageUnavailable, "storage_unavailable"},
}

// statusOf maps an error class to an HTTP status and a fallback code.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. It returns
// apperror classes and kinds; this is the single place they become HTTP.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrRejected):
		return http.StatusBadRequest, "rejected"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status and sends
// the error envelope.
//
// errors.As walks the chain (including the "poll 2: ..." wrapping done by
// draft validation) to find the *AppError carrying message and field.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Unknown error: NEVER expose internal details to the client.
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, Envelope{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, code := statusOf(err)
	for _, c := range errorCodes {
		if errors.Is(err, c.kind) {
			code = c.code
			break
		}
	}
	if status == http.StatusInternalServerError {
		slog.Error("unclassified application error", slog.String("error", err.Error()))
	}

	writeJSON(w, status, Envelope{
		Error:   code,
		Message: err.Error(),
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON body into dst. A malformed or oversized body is
// a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("", "Request body is required")
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}
