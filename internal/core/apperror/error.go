// Package apperror provides structured error handling for the counting engine.
// Every failure crossing a component boundary is an AppError with a stable
// machine code, so the UI layer always receives a definite, typed outcome.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by the failure taxonomy.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeStorage  = "STORAGE_ERROR"

	// Transient remote failures, never fatal; callers degrade to local state.
	CodeRemoteUnavailable = "REMOTE_UNAVAILABLE"

	// Data-integrity failures on locally persisted payloads.
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"

	// User-input failures (400), rejected before any write.
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business outcomes (422)
	CodeConfirmationPending = "CONFIRMATION_PENDING"
	CodeNoPendingChange     = "NO_PENDING_CHANGE"
	CodeNoActiveSession     = "NO_ACTIVE_SESSION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the engine.
// It implements the error interface and carries structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field names, barcodes, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidInput creates an invalid-input error for a specific field (400)
func NewInvalidInput(field, message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewRemoteUnavailable creates a transient remote failure (503).
// Callers are expected to fall back to local state, not abort.
func NewRemoteUnavailable(op string, err error) *AppError {
	return &AppError{
		Code:       CodeRemoteUnavailable,
		Message:    "Remote store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

// NewCorruptSnapshot creates a data-integrity error for a local payload.
// The corrupt entry is discarded; this error is logged, never surfaced as fatal.
func NewCorruptSnapshot(key string, err error) *AppError {
	return &AppError{
		Code:       CodeCorruptSnapshot,
		Message:    "Local snapshot is malformed and was discarded",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"key": key},
		Err:        err,
	}
}

// NewConfirmationPending signals that a mutation was deferred to the gate (422).
func NewConfirmationPending(barcode string, finalValue int64) *AppError {
	return &AppError{
		Code:       CodeConfirmationPending,
		Message:    "Change exceeds reference stock and requires confirmation",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"barcode": barcode, "final_value": finalValue},
	}
}

// NewNoPendingChange is returned on accept/cancel with nothing pending (422).
func NewNoPendingChange() *AppError {
	return &AppError{
		Code:       CodeNoPendingChange,
		Message:    "No change is awaiting confirmation",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewNoActiveSession is returned when an operation arrives without a bound
// (user, warehouse) pair (422).
func NewNoActiveSession() *AppError {
	return &AppError{
		Code:       CodeNoActiveSession,
		Message:    "No warehouse is currently bound for this user",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInternal creates an internal error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewStorage creates a local-storage error (500)
func NewStorage(op string, err error) *AppError {
	return &AppError{
		Code:       CodeStorage,
		Message:    "Local storage operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsRemoteUnavailable checks if error is CodeRemoteUnavailable
func IsRemoteUnavailable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeRemoteUnavailable
	}
	return false
}

// IsCorruptSnapshot checks if error is CodeCorruptSnapshot
func IsCorruptSnapshot(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeCorruptSnapshot
	}
	return false
}
