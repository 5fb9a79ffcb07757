// Package identity verifies who is on the other end of a request or connection.
package identity

import (
	"context"
	"time"
)

// Identity is a verified user bound to a connection or request.
type Identity struct {
	UserID    string
	Name      string
	ExpiresAt time.Time
}

// Valid reports whether the identity names a user and has not expired at now.
func (id Identity) Valid(now time.Time) bool {
	return id.UserID != "" && now.Before(id.ExpiresAt)
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity carried by ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
