package obscontext

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerKey    contextKey = "caller"
)

// Caller is the opaque identity parsed from the Authorization header. The
// service never validates it.
type Caller struct {
	Scheme string
	Token  string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	if caller.Token == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey, caller)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok
}
