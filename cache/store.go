package cache

import (
	"encoding/json"
	"sort"
	"sync"
)

// Entry is one cached listing-query response.
type Entry struct {
	Timestamp  int64           `json:"t"` // unix milliseconds
	Payload    json.RawMessage `json:"data"`
	Refreshing bool            `json:"refreshing,omitempty"`
}

// KeyInfo describes one stored entry for eviction and stats purposes.
type KeyInfo struct {
	Key       string
	Timestamp int64
	Size      int
}

// Store is the storage backend behind the response cache. Implementations
// must be safe for concurrent use within a single process; no cross-process
// locking is assumed.
type Store interface {
	Get(key string) (*Entry, bool, error)
	Set(key string, e *Entry) error
	Delete(key string) error
	Keys() ([]KeyInfo, error)
	Clear() error
}

// MemoryStore is a map-backed Store, used in tests and as a fallback
// when no durable path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (m *MemoryStore) Get(key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *MemoryStore) Set(key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.entries[key] = &cp
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Keys() ([]KeyInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]KeyInfo, 0, len(m.entries))
	for k, e := range m.entries {
		infos = append(infos, KeyInfo{Key: k, Timestamp: e.Timestamp, Size: len(e.Payload)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp < infos[j].Timestamp })
	return infos, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}
