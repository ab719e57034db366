package logging

import (
	"context"
	"errors"
	"time"

	dasherrors "gql-dashboard/internal/errors"
)

// OperationLogger wraps a Logger with timing helpers for I/O-bound operations
type OperationLogger struct {
	Logger
	slowThreshold time.Duration
}

// NewOperationLogger creates an operation logger; operations slower than
// slowThreshold are reported at WARN level (0 disables the check)
func NewOperationLogger(base Logger, slowThreshold time.Duration) *OperationLogger {
	return &OperationLogger{Logger: base, slowThreshold: slowThreshold}
}

// LogOperation runs fn and logs its completion or failure with the duration
func (l *OperationLogger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		fields := []interface{}{"operation", operation, "duration_ms", duration.Milliseconds(), "error", err}
		var se *dasherrors.StandardError
		if errors.As(err, &se) {
			fields = append(fields, "code", string(se.Code()))
		}
		l.ErrorContext(ctx, "Operation failed", fields...)
		return err
	}

	if l.slowThreshold > 0 && duration > l.slowThreshold {
		l.WarnContext(ctx, "Slow operation detected",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"expected_ms", l.slowThreshold.Milliseconds(),
		)
		return nil
	}

	l.DebugContext(ctx, "Operation completed", "operation", operation, "duration_ms", duration.Milliseconds())
	return nil
}
