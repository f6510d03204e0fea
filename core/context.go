package core

import "context"

// requestIDContextKey is the context key carrying the per-request
// correlation ID set by pkg/telemetry's CorrelationMiddleware. Declared
// in core (rather than telemetry) so ProductionLogger can read it
// without core depending on telemetry.
type requestIDContextKey struct{}

// RequestIDKey is the context key telemetry.CorrelationMiddleware uses to
// stash the per-request correlation ID.
var RequestIDKey = requestIDContextKey{}

// WithRequestID returns a context carrying id as the request's
// correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
