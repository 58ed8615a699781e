package reservation

import (
	"context"
	"sync"

	"github.com/example/ride-booking/internal/models"
)

// Store defines persistence for finalized reservations. Records are
// append-only from the booking core's perspective; status changes
// (cancellation) belong to the administrative side.
type Store interface {
	Create(ctx context.Context, r *models.Reservation) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error)
}

// MemoryStore keeps reservations in memory for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Reservation
	order   []string
	err     error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Reservation)}
}

func (m *MemoryStore) Create(ctx context.Context, r *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records[r.ID] = *r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Reservation{}
	for _, id := range m.order {
		if r := m.records[id]; r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Count reports how many records were written. Test helper.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Fail makes every subsequent call return err; Fail(nil) heals it.
func (m *MemoryStore) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
