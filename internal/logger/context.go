package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores a correlation ID on the context. Handlers and
// middleware read it back with RequestID when emitting log records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation ID stored on ctx, or "" when none is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// NewRequestID mints a random 32-character hex correlation ID. The HTTP
// middleware and the queue consumer both call this when a request or message
// arrives without one, so every unit of work ends up traceable.
func NewRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
