package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-booking/internal/identity"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// ErrSaveFailed wraps persistence failures. The caller's state is
// untouched, so retrying is safe.
var ErrSaveFailed = errors.New("reservation save failed")

// EventPublisher announces finalized reservations to downstream
// consumers. Publishing is best-effort; it never fails a finalize.
type EventPublisher interface {
	ReservationCreated(ctx context.Context, r models.Reservation) error
}

// Persister writes exactly one reservation record per successful
// finalize call.
type Persister struct {
	store  Store
	events EventPublisher
	logger *slog.Logger
}

func NewPersister(store Store, events EventPublisher, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{store: store, events: events, logger: logger}
}

// Finalize stamps identity, id, and creation time onto the snapshot and
// writes it. The owner must be authenticated; the surrounding shell is
// expected to enforce login before payment, but we do not trust that
// gating.
func (p *Persister) Finalize(ctx context.Context, owner identity.User, rec models.Reservation) (string, error) {
	if owner.ID == "" {
		return "", identity.ErrUnauthenticated
	}

	rec.ID = newID()
	rec.OwnerID = owner.ID
	rec.Status = models.StatusPending
	rec.CreatedAt = time.Now().UTC()

	if err := p.store.Create(ctx, &rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	observability.Finalizations.WithLabelValues(string(rec.PaymentMethod)).Inc()

	if p.events != nil {
		if err := p.events.ReservationCreated(ctx, rec); err != nil {
			p.logger.Warn("reservation event publish failed", "reservation_id", rec.ID, "error", err)
		}
	}
	p.logger.Info("reservation finalized",
		"reservation_id", rec.ID, "owner_id", rec.OwnerID,
		"payment_method", rec.PaymentMethod, "total", rec.Quote.Total)
	return rec.ID, nil
}

// ListByOwner returns the owner's reservation history, newest first.
func (p *Persister) ListByOwner(ctx context.Context, owner identity.User) ([]models.Reservation, error) {
	if owner.ID == "" {
		return nil, identity.ErrUnauthenticated
	}
	return p.store.ListByOwner(ctx, owner.ID)
}

func newID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
