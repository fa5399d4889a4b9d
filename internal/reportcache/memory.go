package reportcache

import (
	"context"
	"sync"
)

// Memory is a process-local store, the default when no cache backend is
// configured. Entries do not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Result
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Result)}
}

func (m *Memory) Get(ctx context.Context, key Key) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key.Canonical()]
	if !ok {
		return nil, ErrNotFound
	}
	out := entry
	return &out, nil
}

func (m *Memory) Put(ctx context.Context, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[result.Key.Canonical()] = *result
	return nil
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key.Canonical())
	return nil
}
