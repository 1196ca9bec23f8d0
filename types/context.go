package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID    contextKey = "trace_id"
	keyRunID      contextKey = "run_id"
	keyInstanceID contextKey = "instance_id"
	keyCaller     contextKey = "caller"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRunID adds the DAG run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts the DAG run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithInstanceID adds the local instance ID to context.
func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, keyInstanceID, instanceID)
}

// InstanceID extracts the local instance ID from context.
func InstanceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyInstanceID).(string)
	return v, ok && v != ""
}

// WithCaller adds the authenticated caller (JWT subject) to context.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, keyCaller, caller)
}

// Caller extracts the authenticated caller from context.
func Caller(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCaller).(string)
	return v, ok && v != ""
}
