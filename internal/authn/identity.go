// Package authn resolves the caller's identity from an incoming request —
// a session cookie, a bearer API key, or a personal access token — and
// exposes it to handlers through the request context.
package authn

import (
	"context"

	"github.com/google/uuid"
)

// Method records which credential type authenticated the request.
type Method string

const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
	MethodPAT     Method = "pat"
)

// Identity is the authenticated caller attached to every request context
// once authentication succeeds.
type Identity struct {
	UserID    uuid.UUID
	TeamID    uuid.UUID
	Role      string
	APIKeyID  uuid.UUID
	PATID     uuid.UUID
	Method    Method
	IsAdmin   bool
}

type contextKey string

const identityKey contextKey = "authn_identity"

func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext retrieves the Identity attached by the authentication
// middleware, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
