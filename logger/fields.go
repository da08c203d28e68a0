package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across histsync.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRequestID = "request_id"
	FieldComponent = "component"

	// Sync
	FieldHostID    = "host_id"
	FieldTag       = "tag"
	FieldOperation = "operation"
	FieldPhase     = "phase"
	FieldLocalIdx  = "local_idx"
	FieldRemoteIdx = "remote_idx"
	FieldOffset    = "offset"
	FieldExpected  = "expected"
	FieldProgress  = "progress"

	// Counts and sizes
	FieldCount    = "count"
	FieldPageSize = "page_size"

	// Network
	FieldAddress = "address"
	FieldMethod  = "method"
	FieldPath    = "path"
	FieldStatus  = "status"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	componentKey contextKey = "logger_component"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base (or the global Logger when base is nil) with
// fields extracted from ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	syncer := sync.New(store, remote, sync.WithLogger(logger.ComponentLogger("sync")))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
