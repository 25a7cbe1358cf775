package types

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode is a stable machine-readable error identifier. Codes appear in
// API error envelopes, so renaming one is a breaking change for clients.
type ErrorCode string

// The full error code catalog.
// Handlers and jobs MUST pick from this list; never hardcode a code string.
const (
	// Validation (400)
	ErrCodeValidationInvalidPage     ErrorCode = "validation_invalid_page"
	ErrCodeValidationInvalidPageSize ErrorCode = "validation_invalid_page_size"
	ErrCodeValidationInvalidDate     ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidYear     ErrorCode = "validation_invalid_year"
	ErrCodeValidationInvalidStation  ErrorCode = "validation_invalid_station"

	// Not Found (404)
	ErrCodeNotFoundRoute ErrorCode = "not_found_route"

	// Ingest pipeline (batch jobs; surfaces as exit status, not HTTP)
	ErrCodeIngestSourceMissing ErrorCode = "ingest_source_missing"
	ErrCodeIngestSourceRead    ErrorCode = "ingest_source_read_failed"
	ErrCodeIngestAborted       ErrorCode = "ingest_aborted"

	// Storage (500/503)
	ErrCodeStorageUnavailable ErrorCode = "storage_unavailable"

	// Messaging (best-effort side channels)
	ErrCodeQueuePublish ErrorCode = "queue_publish_failed"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// statusByPrefix maps an error code family to its HTTP status. Families not
// listed here, including the batch-only ingest_ and queue_ codes, report as
// 500 if they ever cross the API boundary.
var statusByPrefix = []struct {
	prefix string
	status int
}{
	{"validation_", http.StatusBadRequest},
	{"not_found_", http.StatusNotFound},
}

// HTTPStatus resolves the HTTP status for an error code. Unknown codes
// default to 500.
func (c ErrorCode) HTTPStatus() int {
	if c == ErrCodeStorageUnavailable {
		return http.StatusServiceUnavailable
	}
	for _, m := range statusByPrefix {
		if strings.HasPrefix(string(c), m.prefix) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// AppError is the error type the service's jobs and handlers speak. The
// code drives HTTP status mapping; Err keeps the underlying cause available
// to errors.Is/As without ever serializing it.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAppError is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails constructs an AppError carrying structured details
// for the client (offending parameter names, limits, and the like).
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	e := NewAppError(code, message, err)
	e.Details = details
	return e
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus resolves the HTTP status for this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy with the given details merged over any
// existing ones. The receiver is not mutated.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	clone := *e
	clone.Details = make(map[string]any, len(e.Details)+len(details))
	maps.Copy(clone.Details, e.Details)
	maps.Copy(clone.Details, details)
	return &clone
}
