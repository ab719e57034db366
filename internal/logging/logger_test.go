package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestStructuredLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, INFO, true).WithComponent("alerting")

	logger.Info("alert triggered", "rule_id", "r1", "value", 300.5)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "alert triggered", entry["message"])
	assert.Equal(t, "alerting", entry["component"])
	assert.Equal(t, "r1", entry["rule_id"])
	assert.Equal(t, 300.5, entry["value"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, WARN, true)

	logger.Info("hidden")
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStructuredLogger_TraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, DEBUG, true)

	ctx := WithTraceID(context.Background(), "trace-123")
	logger.ErrorContext(ctx, "fetch failed", "error", assert.AnError)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "trace-123", entry["trace_id"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestStructuredLogger_OddFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, INFO, true)

	logger.Info("odd", "key")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "key", entry["field_0"])
}

func TestStructuredLogger_FatalUsesExitHook(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, INFO, true)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal("boom")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "boom")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"unknown", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestGenerateTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "")
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEqual(t, GenerateTraceID(), GenerateTraceID())
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.Info("nothing")
	logger.Fatal("still nothing")
	assert.Equal(t, logger, logger.WithComponent("x"))
	assert.Equal(t, logger, logger.WithTraceID("trace"))
	assert.IsType(t, NoOpLogger{}, logger)
}

func TestOperationLogger_LogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewOperationLogger(NewLoggerWithWriter(&buf, DEBUG, true), 0)

	err := logger.LogOperation(context.Background(), "fetch", func() error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "fetch", entry["operation"])

	buf.Reset()
	require.NoError(t, logger.LogOperation(context.Background(), "fetch", func() error { return nil }))
	assert.Equal(t, "Operation completed", decodeLine(t, &buf)["message"])
}
