package shared

import "context"

// Principal is the authenticated caller as resolved by the fronting identity
// layer. Verification of the identity itself happens upstream; the engine
// only consumes the resulting user ID.
type Principal struct {
	UserID string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.UserID != ""
}
