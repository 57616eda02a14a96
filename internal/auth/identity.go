package auth

import (
	"context"
	"time"
)

// Identity is the caller resolved from a valid token. It lives only in the
// context of the request that carried the token.
type Identity struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity stores an identity in the request context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the identity from the request context
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok && id != nil
}

func identityFromClaims(c *Claims) *Identity {
	id := &Identity{Username: c.Username}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}
