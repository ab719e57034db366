package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Creation(t *testing.T) {
	tests := []struct {
		name            string
		createError     func() *StandardError
		expectedCode    ErrorCode
		expectedMessage string
		expectedStatus  int
	}{
		{
			name: "validation error",
			createError: func() *StandardError {
				return NewValidationError("threshold", "must be finite", "NaN")
			},
			expectedCode:    ErrorCodeValidationError,
			expectedMessage: "Validation failed for field 'threshold': must be finite",
			expectedStatus:  http.StatusBadRequest,
		},
		{
			name: "not found error",
			createError: func() *StandardError {
				return NewNotFoundError("alert", "a-1")
			},
			expectedCode:    ErrorCodeNotFound,
			expectedMessage: "alert 'a-1' not found",
			expectedStatus:  http.StatusNotFound,
		},
		{
			name: "insufficient data error",
			createError: func() *StandardError {
				return NewInsufficientDataError("forecast", 2, 1)
			},
			expectedCode:    ErrorCodeInsufficientData,
			expectedMessage: "forecast requires at least 2 data points, got 1",
			expectedStatus:  http.StatusUnprocessableEntity,
		},
		{
			name: "timeout error",
			createError: func() *StandardError {
				return NewTimeoutError("fetch history", 5*time.Second, context.DeadlineExceeded)
			},
			expectedCode:    ErrorCodeTimeout,
			expectedMessage: "fetch history timed out after 5s",
			expectedStatus:  http.StatusGatewayTimeout,
		},
		{
			name: "quota error",
			createError: func() *StandardError {
				return NewQuotaExceededError("query history", 100)
			},
			expectedCode:    ErrorCodeQuotaExceeded,
			expectedMessage: "query history quota of 100 entries exceeded",
			expectedStatus:  http.StatusInsufficientStorage,
		},
		{
			name: "internal error",
			createError: func() *StandardError {
				return NewInternalError("Database connection failed", assert.AnError)
			},
			expectedCode:    ErrorCodeInternalError,
			expectedMessage: "Database connection failed",
			expectedStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.createError()
			assert.Equal(t, tt.expectedCode, err.Code())
			assert.Equal(t, tt.expectedMessage, err.ErrorInfo.Message)
			assert.Equal(t, tt.expectedStatus, err.ToHTTPStatus())
		})
	}
}

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("trend: %w", NewInsufficientDataError("trend", 2, 0))

	assert.True(t, stderrors.Is(err, ErrInsufficientData))
	assert.False(t, stderrors.Is(err, ErrTimeout))
	assert.True(t, HasCode(err, ErrorCodeInsufficientData))
	assert.False(t, HasCode(assert.AnError, ErrorCodeInsufficientData))
}

func TestStandardError_UnwrapCause(t *testing.T) {
	err := NewTimeoutError("dial", time.Second, context.DeadlineExceeded)

	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestStandardError_WriteHTTPError(t *testing.T) {
	w := httptest.NewRecorder()
	NewNotFoundError("rule", "r-9").WithTraceID("trace-1").WriteHTTPError(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "trace-1", w.Header().Get("X-Trace-ID"))

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["error"]["code"])
}

func TestAsStandard(t *testing.T) {
	se := NewValidationError("x", "bad", nil)
	assert.Same(t, se, AsStandard(fmt.Errorf("wrapped: %w", se)))

	wrapped := AsStandard(assert.AnError)
	assert.Equal(t, ErrorCodeInternalError, wrapped.Code())
	assert.True(t, stderrors.Is(wrapped, assert.AnError))
}
