package logger

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores a submission request id on the context. Feedback
// submissions mint one per call so background job logs can be correlated
// with the Submit that enqueued them.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id on the context, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
