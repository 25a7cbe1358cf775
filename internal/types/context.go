package types

import "context"

// requestIDCtxKey is an unexported struct type so no other package can
// collide with it, even by accident.
type requestIDCtxKey struct{}

// WithRequestID stamps the request ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// GetRequestID returns the request ID, or "" when none is set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
