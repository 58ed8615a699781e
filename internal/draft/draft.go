// Package draft persists in-progress booking sessions so a reload or a
// forced re-authentication resumes at the same step with the same
// selections. Drafts are mutable and superseded on every write; the
// finalized reservation lives elsewhere.
package draft

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// SchemaVersion is bumped whenever the draft shape changes. A stored
// draft with a different version is rejected on load rather than read
// through ad hoc optional-field access.
const SchemaVersion = 1

// Draft is the recoverable snapshot of a wizard session past step 1.
type Draft struct {
	Version       int                  `json:"version"`
	Step          int                  `json:"step"`
	Route         models.RouteRequest  `json:"route"`
	ScheduledAt   *time.Time           `json:"scheduled_at,omitempty"`
	Passengers    int                  `json:"passengers"`
	VehicleID     string               `json:"vehicle_id,omitempty"`
	Options       []string             `json:"options,omitempty"`
	PaymentMethod models.PaymentMethod `json:"payment_method,omitempty"`
	RouteQuote    *models.RouteQuote   `json:"route_quote,omitempty"`
	Quote         *models.Quote        `json:"quote,omitempty"`
	SavedAt       time.Time            `json:"saved_at"`
}

var (
	// ErrNotFound is returned when no draft exists for the session.
	ErrNotFound = errors.New("draft not found")
	// ErrIncompatible is returned when a stored draft has a different
	// schema version than the running code.
	ErrIncompatible = errors.New("draft schema version mismatch")
)

// Store persists drafts keyed by session.
type Store interface {
	Save(ctx context.Context, sessionID string, d Draft) error
	Load(ctx context.Context, sessionID string) (Draft, error)
	Clear(ctx context.Context, sessionID string) error
}
