package objectstore

import (
	"context"
	"fmt"
)

// Action is what an actor wants to do with an object.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Authorizer decides whether actorID may perform action on an object owned
// by ownerID. It returns nil to allow, or an error wrapping ErrForbidden.
type Authorizer interface {
	Authorize(ctx context.Context, actorID string, action Action, ownerID string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actorID string, action Action, ownerID string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, actorID string, action Action, ownerID string) error {
	return f(ctx, actorID, action, ownerID)
}

// OwnerOnly allows an action only when the actor owns the object.
type OwnerOnly struct{}

func (OwnerOnly) Authorize(_ context.Context, actorID string, action Action, ownerID string) error {
	if actorID == "" || actorID != ownerID {
		return fmt.Errorf("%w: %s by %q on object owned by %q", ErrForbidden, action, actorID, ownerID)
	}
	return nil
}
