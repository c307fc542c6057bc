package requestctx

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// Attr is the request id as a log attribute.
func Attr(ctx context.Context) slog.Attr {
	return slog.String("requestId", GetRequestID(ctx))
}
