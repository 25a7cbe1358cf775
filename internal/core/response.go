package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"wxarchive/internal/types"
)

// APIErrorResponse is the envelope every error response uses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing description of a failure. RequestID lets
// operators correlate a client report with server logs.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// errorEnvelope assembles the standard error body.
func errorEnvelope(code types.ErrorCode, message string, details map[string]any, requestID string) APIErrorResponse {
	return APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	}
}

// JSON marshals data and writes it with the given status code. A payload
// that cannot be marshaled degrades to a 500 error envelope rather than a
// half-written response.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fallback := errorEnvelope(
			types.ErrCodeInternalUnexpected,
			"failed to marshal response",
			nil,
			types.GetRequestID(r.Context()),
		)
		// Best effort; the envelope contains nothing that can fail to encode.
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error translates an error into an HTTP response. An error that is, or
// wraps, a *types.AppError keeps its code, message, and details, with the
// status derived from the code family. Anything else becomes a plain 500:
// generic errors often carry driver or SQL text that must not reach
// clients, so they get a fixed message and the request ID for correlation.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		JSON(w, r, http.StatusInternalServerError, errorEnvelope(
			types.ErrCodeInternalUnexpected,
			"an unexpected error occurred",
			nil,
			requestID,
		))
		return
	}

	JSON(w, r, appErr.HTTPStatus(), errorEnvelope(
		appErr.Code,
		appErr.Message,
		appErr.Details,
		requestID,
	))
}
