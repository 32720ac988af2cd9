package kvstore

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Used for dev runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, namespace string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryStore) Set(_ context.Context, namespace string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespace] = append([]byte(nil), value...)
	return nil
}
