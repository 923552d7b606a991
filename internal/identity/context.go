package identity

import "context"

type contextKey struct{}

// NewContext stores the resolved identity in context.
func NewContext(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext extracts the resolved identity from context.
func FromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(contextKey{}).(*Identity)
	return ident
}
