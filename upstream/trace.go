package upstream

import "context"

// TraceHeader carries the gateway trace id to the upstream services.
const TraceHeader = "X-Trace-ID"

type traceKey struct{}

// WithTraceID returns ctx carrying id, which every call made with it sends
// as TraceHeader.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id carried by ctx, if any.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
