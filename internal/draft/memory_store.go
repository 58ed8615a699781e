package draft

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is the in-process Store used in tests and local runs. It
// round-trips through JSON so version checking behaves like the Redis
// store.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string][]byte)}
}

func (m *MemoryStore) Save(ctx context.Context, sessionID string, d Draft) error {
	d.Version = SchemaVersion
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.drafts[sessionID] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (Draft, error) {
	m.mu.RLock()
	b, ok := m.drafts[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Draft{}, ErrNotFound
	}
	return decode(b)
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.drafts, sessionID)
	m.mu.Unlock()
	return nil
}

// Put stores raw bytes, bypassing Save's version stamping. Test helper
// for exercising schema-version rejection.
func (m *MemoryStore) Put(sessionID string, raw []byte) {
	m.mu.Lock()
	m.drafts[sessionID] = raw
	m.mu.Unlock()
}
