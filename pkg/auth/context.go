package auth

import (
	"context"
)

// Context keys for authentication data
type contextKey string

// ContextKeyResolver is the context key for the authenticated resolver
const ContextKeyResolver contextKey = "resolver"

// WithResolver adds the resolver identity to the context
func WithResolver(ctx context.Context, resolver string) context.Context {
	return context.WithValue(ctx, ContextKeyResolver, resolver)
}

// ResolverFromContext retrieves the resolver identity from the context
func ResolverFromContext(ctx context.Context) (string, bool) {
	r, ok := ctx.Value(ContextKeyResolver).(string)
	return r, ok && r != ""
}
