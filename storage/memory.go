package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/saiset-co/sai-content/types"
)

// MemoryStore keeps entries in process memory. It is not durable and exists
// for tests and ephemeral tooling runs.
type MemoryStore struct {
	lifecycle
	logger types.Logger
	data   map[string][]byte
	mu     sync.RWMutex
}

func NewMemoryStore(logger types.Logger) *MemoryStore {
	store := &MemoryStore{
		logger: logger,
		data:   make(map[string][]byte),
	}

	store.init()
	return store
}

func (m *MemoryStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *MemoryStore) Write(_ context.Context, key string, value []byte) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) ListKeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Debug("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	m.logger.Debug("Memory store stopped")
	return nil
}
