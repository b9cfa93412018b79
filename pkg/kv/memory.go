package kv

import (
	"context"
	"sync"
)

type memoryDriver struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore keeps values in process memory.
func NewMemoryStore() Store {
	return &store{driver: "memory", r: &memoryDriver{entries: make(map[string][]byte)}}
}

func (m *memoryDriver) get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *memoryDriver) put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = v
	return nil
}

func (m *memoryDriver) del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *memoryDriver) close() error { return nil }
