package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger interface for structured logging with trace support
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	// Context-aware logging with trace IDs
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
	DebugContext(ctx context.Context, msg string, fields ...interface{})

	// Trace ID management
	WithTraceID(traceID string) Logger
	WithComponent(component string) Logger
}

// ContextKey represents keys used in context for trace IDs
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
)

// LogLevel represents logging levels
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// StructuredLogger implements Logger on top of zerolog
type StructuredLogger struct {
	zl        zerolog.Logger
	traceID   string
	component string
	exit      func(int)
}

// NewLogger creates a JSON logger writing to stdout
func NewLogger(level LogLevel) Logger {
	return NewLoggerWithWriter(os.Stdout, level, getEnvBool("LOG_JSON", true))
}

// NewLoggerWithFormat creates a stdout logger; format "text" selects the
// console writer, anything else JSON
func NewLoggerWithFormat(level LogLevel, format string) Logger {
	return NewLoggerWithWriter(os.Stdout, level, !strings.EqualFold(format, "text"))
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(w io.Writer, level LogLevel, useJSON bool) *StructuredLogger {
	if !useJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
	return &StructuredLogger{zl: zl, exit: os.Exit}
}

// getEnvBool gets a boolean environment variable with default
func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// WithTraceID creates a new logger with a trace ID
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	return &StructuredLogger{zl: l.zl, traceID: traceID, component: l.component, exit: l.exit}
}

// WithComponent creates a new logger with a component name
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{zl: l.zl, traceID: l.traceID, component: component, exit: l.exit}
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.log(l.zl.Info(), msg, "", fields)
}

func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(l.zl.Info(), msg, GetTraceID(ctx), fields)
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.log(l.zl.Warn(), msg, "", fields)
}

func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(l.zl.Warn(), msg, GetTraceID(ctx), fields)
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.log(l.zl.Error(), msg, "", fields)
}

func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(l.zl.Error(), msg, GetTraceID(ctx), fields)
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.log(l.zl.Debug(), msg, "", fields)
}

func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	l.log(l.zl.Debug(), msg, GetTraceID(ctx), fields)
}

// Fatal logs a fatal message and exits
func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	// WithLevel keeps zerolog from calling os.Exit itself
	l.log(l.zl.WithLevel(zerolog.FatalLevel), msg, "", fields)
	l.exit(1)
}

// log attaches trace, component and key/value fields to the event and sends it
func (l *StructuredLogger) log(ev *zerolog.Event, msg, contextTraceID string, fields []interface{}) {
	if ev == nil {
		return
	}

	traceID := l.traceID
	if contextTraceID != "" {
		traceID = contextTraceID
	}
	if traceID != "" {
		ev = ev.Str("trace_id", traceID)
	}
	if l.component != "" {
		ev = ev.Str("component", l.component)
	}

	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			if err, ok := fields[i+1].(error); ok {
				ev = ev.AnErr(key, err)
				continue
			}
			ev = ev.Interface(key, fields[i+1])
		} else {
			ev = ev.Interface(fmt.Sprintf("field_%d", i), fields[i])
		}
	}

	ev.Msg(msg)
}

// Default logger instance
var defaultLogger = NewLogger(INFO)

// Package-level functions for convenience
func Info(msg string, fields ...interface{}) {
	defaultLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...interface{}) {
	defaultLogger.Warn(msg, fields...)
}

func Error(msg string, fields ...interface{}) {
	defaultLogger.Error(msg, fields...)
}

func Debug(msg string, fields ...interface{}) {
	defaultLogger.Debug(msg, fields...)
}

func Fatal(msg string, fields ...interface{}) {
	defaultLogger.Fatal(msg, fields...)
}

// Trace ID utilities
func GenerateTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithComponent returns the default logger tagged with a component name
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// ParseLogLevel parses a level name, defaulting to INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetDefaultLogger sets the default logger instance
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}
