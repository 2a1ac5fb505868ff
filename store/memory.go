package store

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps every collection in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	opts options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		opts: buildOptions(opts),
	}
}

func (m *MemoryStore) Open(name string) (Collection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return newCollection(name, &memoryDoc{store: m, name: name}, m.opts), nil
}

func (m *MemoryStore) Close() error { return nil }

// Raw returns the persisted bytes of a collection, or nil.
func (m *MemoryStore) Raw(name string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bytes.Clone(m.docs[name])
}

type memoryDoc struct {
	store *MemoryStore
	name  string
}

func (d *memoryDoc) read(_ context.Context) ([]byte, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	return bytes.Clone(d.store.docs[d.name]), nil
}

func (d *memoryDoc) replace(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.docs[d.name] = bytes.Clone(data)
	return nil
}
