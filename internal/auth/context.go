package auth

import "context"

// contextKey is the key type for request-scoped auth values
type contextKey string

const identityContextKey contextKey = "identity"

// SetIdentityInContext stores the verified identity in the request context.
// Only the access gate writes this, after credential verification.
func SetIdentityInContext(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext extracts the verified identity from the context.
// Returns "" when the request did not pass through the access gate.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey).(string)
	return identity
}
