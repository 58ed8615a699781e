package catalog

import (
	"context"
	"sync"
)

// MemoryStore holds vehicle documents in memory. Used in tests and for
// local runs without a Firestore project.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
	err  error
}

func NewMemoryStore(docs ...Document) *MemoryStore {
	return &MemoryStore{docs: docs}
}

func (m *MemoryStore) ListVehicles(ctx context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Document, len(m.docs))
	copy(out, m.docs)
	return out, nil
}

// Fail makes every subsequent ListVehicles return err.
func (m *MemoryStore) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
