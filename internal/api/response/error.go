// Package response provides standardized HTTP response structures for the
// dashboard API.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	dasherrors "gql-dashboard/internal/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     dasherrors.ErrorDetails `json:"error"`
	Timestamp string                  `json:"timestamp"`
	RequestID string                  `json:"request_id,omitempty"`
}

// SuccessResponse represents a standardized success response
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// WriteError writes err as a standardized error response. Errors that are not
// a StandardError are reported as internal errors.
func WriteError(w http.ResponseWriter, err error) {
	se := dasherrors.AsStandard(err)
	details := se.ErrorInfo
	if details.TraceID == "" {
		details.TraceID = getRequestID(w)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.ToHTTPStatus())

	resp := ErrorResponse{
		Error:     details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: getRequestID(w),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteSuccess writes data with the given status code
func WriteSuccess(w http.ResponseWriter, statusCode int, data interface{}, message ...string) {
	resp := SuccessResponse{
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(message) > 0 {
		resp.Message = message[0]
	}

	body, err := json.Marshal(resp)
	if err != nil {
		WriteError(w, dasherrors.NewInternalError("Failed to encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// WriteOK writes data with 200 OK
func WriteOK(w http.ResponseWriter, data interface{}) {
	WriteSuccess(w, http.StatusOK, data)
}

// WriteBadRequest writes a 400 validation error for one field
func WriteBadRequest(w http.ResponseWriter, field, reason string, value interface{}) {
	WriteError(w, dasherrors.NewValidationError(field, reason, value))
}

// WriteNotFound writes a 404 for a route or resource
func WriteNotFound(w http.ResponseWriter, resource, id string) {
	WriteError(w, dasherrors.NewNotFoundError(resource, id))
}

// WriteMethodNotAllowed writes a 405 Method Not Allowed error
func WriteMethodNotAllowed(w http.ResponseWriter, method string) {
	se := dasherrors.NewStandardError("METHOD_NOT_ALLOWED", "method "+method+" not allowed", nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     se.ErrorInfo,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: getRequestID(w),
	})
}

// getRequestID extracts the request ID set by the logging middleware
func getRequestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}
