package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process KV used by tests and by `--store memory`.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	// SetErr, when non-nil, is returned by every Set.
	SetErr error
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range values {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }
