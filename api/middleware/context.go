package middleware

import "context"

type contextKey string

const ctxCartSession contextKey = "cart_session_id"

// CartSessionFromContext returns the cart session key resolved for the request.
func CartSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSession).(string); ok {
		return v
	}
	return ""
}

// WithCartSession injects the cart session key into the context.
func WithCartSession(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSession, sessionID)
}
