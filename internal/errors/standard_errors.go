// Package errors provides the typed error taxonomy shared by the analytics
// core, the realtime service and the HTTP layer.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents semantic error codes for consistent error handling
type ErrorCode string

const (
	// Validation errors
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeRequiredField   ErrorCode = "REQUIRED_FIELD"

	// Resource errors
	ErrorCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrorCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Analytics errors
	ErrorCodeInsufficientData ErrorCode = "INSUFFICIENT_DATA"

	// Transport errors
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeTransportError     ErrorCode = "TRANSPORT_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Storage errors
	ErrorCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	ErrorCodeDatabaseError ErrorCode = "DATABASE_ERROR"

	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents the unified error structure
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
	cause     error
}

// ErrorDetails contains the detailed error information
type ErrorDetails struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// ValidationDetail provides specific validation error information
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// InsufficientDataDetail reports how many samples an operation needed
type InsufficientDataDetail struct {
	Operation string `json:"operation"`
	Required  int    `json:"required"`
	Actual    int    `json:"actual"`
}

// Error implements the Go error interface
func (e *StandardError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.ErrorInfo.Message, e.cause)
	}
	return e.ErrorInfo.Message
}

// Unwrap returns the underlying cause, if any
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code, so errors.Is(err, ErrInsufficientData) works
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.ErrorInfo.Code == e.ErrorInfo.Code
}

// Code returns the error code
func (e *StandardError) Code() ErrorCode {
	return e.ErrorInfo.Code
}

// NewStandardError creates a new standardized error
func NewStandardError(code ErrorCode, message string, details interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(field, reason string, value interface{}) *StandardError {
	return NewStandardError(ErrorCodeValidationError,
		fmt.Sprintf("Validation failed for field '%s': %s", field, reason),
		ValidationDetail{Field: field, Reason: reason, Value: value})
}

// NewRequiredFieldError creates an error for missing required fields
func NewRequiredFieldError(field string) *StandardError {
	return NewStandardError(ErrorCodeRequiredField,
		fmt.Sprintf("Required field '%s' is missing", field),
		ValidationDetail{Field: field, Reason: "missing_required_field"})
}

// NewNotFoundError creates a not-found error for a resource
func NewNotFoundError(resource, id string) *StandardError {
	return NewStandardError(ErrorCodeNotFound,
		fmt.Sprintf("%s '%s' not found", resource, id),
		map[string]interface{}{"resource": resource, "id": id})
}

// NewInsufficientDataError reports an analytics call that needs more samples
func NewInsufficientDataError(operation string, required, actual int) *StandardError {
	return NewStandardError(ErrorCodeInsufficientData,
		fmt.Sprintf("%s requires at least %d data points, got %d", operation, required, actual),
		InsufficientDataDetail{Operation: operation, Required: required, Actual: actual})
}

// NewTimeoutError reports an operation that exceeded its deadline
func NewTimeoutError(operation string, timeout time.Duration, cause error) *StandardError {
	e := NewStandardError(ErrorCodeTimeout,
		fmt.Sprintf("%s timed out after %s", operation, timeout),
		map[string]interface{}{"operation": operation, "timeout_ms": timeout.Milliseconds()})
	e.cause = cause
	return e
}

// NewTransportError wraps a network or protocol failure
func NewTransportError(operation string, cause error) *StandardError {
	e := NewStandardError(ErrorCodeTransportError,
		fmt.Sprintf("%s failed", operation),
		map[string]interface{}{"operation": operation})
	e.cause = cause
	return e
}

// NewQuotaExceededError reports a store that reached its capacity
func NewQuotaExceededError(resource string, limit int) *StandardError {
	return NewStandardError(ErrorCodeQuotaExceeded,
		fmt.Sprintf("%s quota of %d entries exceeded", resource, limit),
		map[string]interface{}{"resource": resource, "limit": limit})
}

// NewDatabaseError wraps a storage failure
func NewDatabaseError(operation string, cause error) *StandardError {
	e := NewStandardError(ErrorCodeDatabaseError,
		fmt.Sprintf("database operation %s failed", operation), nil)
	e.cause = cause
	return e
}

// NewInternalError creates an internal server error
func NewInternalError(message string, originalError error) *StandardError {
	details := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if originalError != nil {
		details["original_error"] = originalError.Error()
	}

	e := NewStandardError(ErrorCodeInternalError, message, details)
	e.cause = originalError
	return e
}

// WithTraceID adds a trace ID to the error for debugging
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// Sentinels for errors.Is comparisons by code
var (
	ErrInsufficientData = NewStandardError(ErrorCodeInsufficientData, "insufficient data", nil)
	ErrTimeout          = NewStandardError(ErrorCodeTimeout, "timeout", nil)
	ErrNotFound         = NewStandardError(ErrorCodeNotFound, "not found", nil)
	ErrQuotaExceeded    = NewStandardError(ErrorCodeQuotaExceeded, "quota exceeded", nil)
	ErrTransport        = NewStandardError(ErrorCodeTransportError, "transport error", nil)
)

// HasCode reports whether err is, or wraps, a StandardError with the given code
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.ErrorInfo.Code == code
}

// ToHTTPStatus maps StandardError to appropriate HTTP status code
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeValidationError, ErrorCodeRequiredField:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ErrorCodeInsufficientData:
		return http.StatusUnprocessableEntity
	case ErrorCodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrorCodeTransportError:
		return http.StatusBadGateway
	case ErrorCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts StandardError to JSON bytes
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes StandardError as HTTP response
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}

	w.WriteHeader(e.ToHTTPStatus())

	jsonBytes, _ := e.ToJSON()
	_, _ = w.Write(jsonBytes)
}

// AsStandard converts any error into a StandardError, wrapping unknown errors
// as internal errors
func AsStandard(err error) *StandardError {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se
	}
	return NewInternalError("Internal server error occurred", err)
}
