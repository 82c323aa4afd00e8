package credstore

import (
	"context"
	"sync"
)

// Backend is the flat key/value medium behind a Store.
// Update applies every set and delete as one write: readers never observe half of it.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Update(ctx context.Context, set map[string]string, del []string) error
	Name() string
}

// MemoryBackend keeps values in process memory. Used for tests and ephemeral runs.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Update(_ context.Context, set map[string]string, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	applyUpdate(m.values, set, del)
	return nil
}

func (m *MemoryBackend) Name() string { return "memory" }

// Snapshot returns a copy of every stored value
func (m *MemoryBackend) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func applyUpdate(values map[string]string, set map[string]string, del []string) {
	for _, key := range del {
		delete(values, key)
	}
	for key, value := range set {
		values[key] = value
	}
}
