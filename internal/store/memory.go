package store

import "sync"

// MemoryBackend keeps collections in process memory. It backs tests and
// throwaway worlds.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func memoryKey(world, collection string) string {
	return world + "/" + collection
}

func (m *MemoryBackend) Get(world, collection string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	raw, ok := m.data[memoryKey(world, collection)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (m *MemoryBackend) PutAll(world string, collections map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for name, raw := range collections {
		m.data[memoryKey(world, name)] = append([]byte(nil), raw...)
	}
	return nil
}

// Put writes a single collection. Tests use it to plant damaged data.
func (m *MemoryBackend) Put(world, collection string, raw []byte) error {
	return m.PutAll(world, map[string][]byte{collection: raw})
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
