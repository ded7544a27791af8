package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries the correlation identifiers attached to a request.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, data *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, data)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	td, ok := val.(*TraceData)
	if !ok {
		return nil
	}
	return td
}
