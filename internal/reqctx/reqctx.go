// Package reqctx carries per-request identifiers through a context.Context:
// the request id assigned at the inbound edge and the component name set at
// startup. Adapted from the teacher's pkg/middleware identity/kitchen
// context-key pattern (private key type, Get/Set pair per value).
package reqctx

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	componentKey
)

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id carried by ctx, or "" if none was set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithComponent attaches the component name to ctx.
func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, componentKey, name)
}

// Component returns the component name carried by ctx, or "" if none was set.
func Component(ctx context.Context) string {
	name, _ := ctx.Value(componentKey).(string)
	return name
}
