package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across crosspost.
const (
	// Identity
	FieldJobID       = "job_id"
	FieldDraftID     = "draft_id"
	FieldUserID      = "user_id"
	FieldRequestID   = "request_id"
	FieldFingerprint = "fingerprint"

	// Publishing
	FieldPlatform   = "platform"
	FieldPlatforms  = "platforms"
	FieldPostID     = "post_id"
	FieldRetryCount = "retry_count"
	FieldNextRunAt  = "next_run_at"
	FieldLockKey    = "lock_key"

	// Components
	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts
	FieldCount     = "count"
	FieldBatchSize = "batch_size"

	// Status
	FieldStatus = "status"

	// Network
	FieldAddress = "address"
)

type contextKey string

const (
	jobIDKey     contextKey = "logger_job_id"
	requestIDKey contextKey = "logger_request_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FieldsFromContext extracts logging fields from context as key-value pairs.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}

	return fields
}

// FromContext returns base with the context's logging fields attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
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
//	p := &Processor{logger: logger.ComponentLogger("pulse.engine")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
