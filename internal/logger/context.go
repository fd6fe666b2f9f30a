package logger

import "context"

// contextKey is unexported so LogContext values can't collide with other
// packages' context keys.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped fields that get prepended to every log
// line emitted via the *Ctx logging functions.
type LogContext struct {
	ChannelID string // remote address or connection identifier
	RequestID uint64 // request id, if the log line concerns a specific request
	StreamID  uint64 // stream id, if the log line concerns a specific stream
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext stored on ctx, or nil if absent.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 6+len(args))
	if lc.ChannelID != "" {
		fields = append(fields, KeyChannel, lc.ChannelID)
	}
	if lc.RequestID != 0 {
		fields = append(fields, KeyRequestID, lc.RequestID)
	}
	if lc.StreamID != 0 {
		fields = append(fields, KeyStreamID, lc.StreamID)
	}
	return append(fields, args...)
}
