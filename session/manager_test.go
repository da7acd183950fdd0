package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-content/logger"
	"github.com/saiset-co/sai-content/types"
)

func TestManager_SignInOutNotifies(t *testing.T) {
	ctx := context.Background()
	m := NewManager(logger.NewNop())

	var events []types.SessionEvent
	unsubscribe := m.Subscribe(func(_ context.Context, event types.SessionEvent) {
		events = append(events, event)
	})

	require.NoError(t, m.SignIn(ctx, types.Identity{UserID: "u1", Privileged: true}))

	identity, signedIn := m.Current()
	assert.True(t, signedIn)
	assert.Equal(t, "u1", identity.UserID)

	m.SignOut(ctx)
	m.SignOut(ctx)

	require.Len(t, events, 2)
	assert.Equal(t, types.SessionSignedIn, events[0].Type)
	assert.Equal(t, types.SessionSignedOut, events[1].Type)
	assert.Equal(t, "u1", events[1].Identity.UserID)

	unsubscribe()
	unsubscribe()
	require.NoError(t, m.SignIn(ctx, types.Identity{UserID: "u2"}))
	assert.Len(t, events, 2)
}

func TestManager_SignInRequiresUser(t *testing.T) {
	err := NewManager(logger.NewNop()).SignIn(context.Background(), types.Identity{})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestRequirePrivileged(t *testing.T) {
	ctx := context.Background()
	m := NewManager(logger.NewNop())

	_, err := RequirePrivileged(m)
	assert.ErrorIs(t, err, types.ErrNotSignedIn)

	require.NoError(t, m.SignIn(ctx, types.Identity{UserID: "reader"}))
	_, err = RequirePrivileged(m)
	assert.ErrorIs(t, err, types.ErrPermissionDenied)

	require.NoError(t, m.SignIn(ctx, types.Identity{UserID: "admin", Privileged: true}))
	identity, err := RequirePrivileged(m)
	require.NoError(t, err)
	assert.Equal(t, "admin", identity.UserID)
}
