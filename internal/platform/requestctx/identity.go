// Package requestctx carries per-request identity through context.
package requestctx

import "context"

// Identity describes the authenticated operator behind a request.
// It is fixed at login by the session service and read-only here.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// identityContextKey is the context key for authenticated identity.
type identityContextKey struct{}

// WithIdentity stores an operator identity in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the operator identity stored in context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok && identity.UserID != ""
}
