package types

import "context"

type Identity struct {
	UserID     string `json:"user_id"`
	Privileged bool   `json:"privileged"`
}

type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
)

type SessionEvent struct {
	Type     SessionEventType
	Identity Identity
}

type SessionListener func(ctx context.Context, event SessionEvent)

type SessionProvider interface {
	Current() (Identity, bool)
	Subscribe(listener SessionListener) (unsubscribe func())
}

// Invalidator drops every cache key an entity mutation can affect.
type Invalidator interface {
	Invalidate(ctx context.Context, entityType, entityID string, fields map[string]string) error
}
