package userctx

import (
	"context"

	"github.com/google/uuid"
)

// Identity of the caller attached by the auth middleware
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type ctxKey string

const identityKey ctxKey = "identity"

// Create a new context with the caller identity
func New(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Extract the caller identity from the context
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
