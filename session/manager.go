// Package session tracks the signed-in identity and notifies subscribers of
// sign-in and sign-out transitions.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
)

type Manager struct {
	mu        sync.RWMutex
	logger    types.Logger
	identity  types.Identity
	signedIn  bool
	nextID    int
	listeners map[int]types.SessionListener
}

func NewManager(logger types.Logger) *Manager {
	return &Manager{
		logger:    logger,
		listeners: make(map[int]types.SessionListener),
	}
}

func (m *Manager) Current() (types.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.identity, m.signedIn
}

// Subscribe registers a listener; the returned func removes it.
func (m *Manager) Subscribe(listener types.SessionListener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SignIn replaces the current identity. Listeners run before SignIn returns.
func (m *Manager) SignIn(ctx context.Context, identity types.Identity) error {
	if identity.UserID == "" {
		return types.Errorf(types.ErrInvalidParameter, "user id is empty")
	}

	m.mu.Lock()
	m.identity = identity
	m.signedIn = true
	m.mu.Unlock()

	m.logger.Info("Signed in", zap.String("user_id", identity.UserID), zap.Bool("privileged", identity.Privileged))
	m.notify(ctx, types.SessionEvent{Type: types.SessionSignedIn, Identity: identity})

	return nil
}

// SignOut is a no-op when nobody is signed in.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	if !m.signedIn {
		m.mu.Unlock()
		return
	}
	identity := m.identity
	m.identity = types.Identity{}
	m.signedIn = false
	m.mu.Unlock()

	m.logger.Info("Signed out", zap.String("user_id", identity.UserID))
	m.notify(ctx, types.SessionEvent{Type: types.SessionSignedOut, Identity: identity})
}

// RequirePrivileged returns the current identity when it may mutate content.
func RequirePrivileged(provider types.SessionProvider) (types.Identity, error) {
	identity, signedIn := provider.Current()
	if !signedIn {
		return types.Identity{}, types.ErrNotSignedIn
	}
	if !identity.Privileged {
		return identity, types.Errorf(types.ErrPermissionDenied, "user %s", identity.UserID)
	}
	return identity, nil
}

func (m *Manager) notify(ctx context.Context, event types.SessionEvent) {
	m.mu.RLock()
	listeners := make([]types.SessionListener, 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, event)
	}
}
