package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"gql-dashboard/internal/logging"
)

// RequestIDKey is the context key for request ID
type contextKey string

const RequestIDKey contextKey = "request_id"

// LoggingMiddleware assigns request IDs and logs each request
type LoggingMiddleware struct {
	logger        logging.Logger
	slowThreshold time.Duration
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &LoggingMiddleware{
		logger:        logger.WithComponent("http"),
		slowThreshold: time.Second,
	}
}

// Handler returns the logging middleware handler
func (lm *LoggingMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			// The request ID doubles as the trace ID for context-aware logging
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = logging.WithTraceID(ctx, requestID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Request-ID", requestID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			lm.logResponse(r, ww.Status(), ww.BytesWritten(), time.Since(start))
		})
	}
}

// logResponse logs HTTP response information
func (lm *LoggingMiddleware) logResponse(r *http.Request, statusCode, bytes int, duration time.Duration) {
	// Skip logging for health checks to reduce noise
	if r.URL.Path == "/health" || r.URL.Path == "/ping" {
		return
	}
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	fields := []interface{}{
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"bytes", bytes,
		"duration_ms", duration.Milliseconds(),
		"remote", r.RemoteAddr,
	}

	ctx := r.Context()
	switch {
	case statusCode >= 500:
		lm.logger.ErrorContext(ctx, "Request failed", fields...)
	case statusCode >= 400:
		lm.logger.WarnContext(ctx, "Request rejected", fields...)
	case duration > lm.slowThreshold:
		lm.logger.WarnContext(ctx, "Slow request", fields...)
	default:
		lm.logger.InfoContext(ctx, "Request completed", fields...)
	}
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
