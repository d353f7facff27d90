package cache

import "sync"

// MemoryStore is a process-local store backed by a map.
type MemoryStore struct {
	compressor Compressor
	mu         sync.RWMutex
	entries    map[string][]byte
}

func NewMemoryStore(c Compressor) *MemoryStore {
	return &MemoryStore{
		compressor: c,
		entries:    make(map[string][]byte),
	}
}

func (m *MemoryStore) Get(key string) (*Entry, error) {
	m.mu.RLock()
	p, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return deserialize(m.compressor, p)
}

func (m *MemoryStore) Put(key string, entry *Entry) error {
	p, err := serialize(m.compressor, entry)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Purge() error {
	m.mu.Lock()
	m.entries = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}
