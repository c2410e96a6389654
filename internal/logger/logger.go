// Package logger defines the structured logging interface shared by every
// component and a minimal stdlib-backed implementation: a map-based
// Logger contract with a per-component naming convention.
package logger

import (
	"context"
)

// Logger is the structured logging contract every component depends on.
// Fields follow the map[string]interface{} convention rather than
// variadic key/value pairs so call sites read like a single structured
// record.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	DebugContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentLogger tags every record with a fixed component name, e.g.
// "reconcile.immediate"; calling WithComponent on a logger that already
// has a component joins the two names with a dot.
type ComponentLogger interface {
	Logger
	WithComponent(name string) ComponentLogger
}

// NoOpLogger discards everything; the zero-value safe default.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, map[string]interface{})                             {}
func (NoOpLogger) Info(string, map[string]interface{})                              {}
func (NoOpLogger) Warn(string, map[string]interface{})                              {}
func (NoOpLogger) Error(string, map[string]interface{})                             {}
func (NoOpLogger) DebugContext(context.Context, string, map[string]interface{})     {}
func (NoOpLogger) InfoContext(context.Context, string, map[string]interface{})      {}
func (NoOpLogger) WarnContext(context.Context, string, map[string]interface{})      {}
func (NoOpLogger) ErrorContext(context.Context, string, map[string]interface{})     {}
func (n NoOpLogger) WithComponent(string) ComponentLogger                           { return n }

var _ ComponentLogger = NoOpLogger{}
