package logging

import "context"

var _ Logger = NoOpLogger{}

// NoOpLogger discards everything. Components fall back to it when no logger
// is injected, and tests use it to keep output quiet. Fatal does not exit.
type NoOpLogger struct{}

// NewNoOpLogger returns a Logger that discards all entries
func NewNoOpLogger() Logger {
	return NoOpLogger{}
}

func (NoOpLogger) Info(string, ...interface{})  {}
func (NoOpLogger) Warn(string, ...interface{})  {}
func (NoOpLogger) Error(string, ...interface{}) {}
func (NoOpLogger) Debug(string, ...interface{}) {}
func (NoOpLogger) Fatal(string, ...interface{}) {}

func (NoOpLogger) InfoContext(context.Context, string, ...interface{})  {}
func (NoOpLogger) WarnContext(context.Context, string, ...interface{})  {}
func (NoOpLogger) ErrorContext(context.Context, string, ...interface{}) {}
func (NoOpLogger) DebugContext(context.Context, string, ...interface{}) {}

func (n NoOpLogger) WithTraceID(string) Logger   { return n }
func (n NoOpLogger) WithComponent(string) Logger { return n }
