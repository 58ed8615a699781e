// Package wizard owns the multi-step booking flow: one session value
// per booking, mutated only through explicit transition methods, so a
// transition can never leave the state half-updated. Step order is
// Route → Schedule → Vehicle → Options → Summary → Payment.
package wizard

import (
	"errors"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Step indexes the six wizard steps.
const (
	StepRoute    = 1
	StepSchedule = 2
	StepVehicle  = 3
	StepOptions  = 4
	StepSummary  = 5
	StepPayment  = 6
)

var (
	ErrSessionNotFound   = errors.New("booking session not found")
	ErrSessionFinished   = errors.New("booking session already finished")
	ErrRouteIncomplete   = errors.New("departure and destination are required")
	ErrRouteNotComputed  = errors.New("route has not been computed")
	ErrScheduleRequired  = errors.New("pickup date and time are required")
	ErrVehicleRequired   = errors.New("a vehicle must be selected")
	ErrNoVehicles        = errors.New("no vehicle fits the passenger count")
	ErrWrongStep         = errors.New("operation not allowed on current step")
	ErrUnknownOption     = errors.New("unknown option")
	ErrVehicleNotOffered = errors.New("vehicle not in the offered list")
	ErrPaymentMethod     = errors.New("payment method not selected")
	ErrNoPaymentIntent   = errors.New("no payment intent created")
	ErrPaymentFailed     = errors.New("payment failed")
)

// session is the full mutable state of one in-progress booking. All
// access goes through the owning Service under the session mutex.
type session struct {
	mu sync.Mutex

	id         string
	step       int
	exited     bool
	confirmed  bool
	finalizing bool

	route       models.RouteRequest
	scheduledAt *time.Time
	passengers  int

	routeQuote *models.RouteQuote

	vehicles   []models.RateCard
	vehicleErr string
	selected   *models.RateCard

	options       []string
	paymentMethod models.PaymentMethod
	intentID      string

	quote *models.Quote

	reservationID string

	// issued-sequence counters for the three async operation types; a
	// completion whose sequence is no longer the latest is discarded.
	routeSeq   uint64
	vehicleSeq uint64
	paymentSeq uint64
}

// Snapshot is the read-only view of a session handed to the API layer
// and pushed over the quote stream.
type Snapshot struct {
	ID            string               `json:"id"`
	Step          int                  `json:"step"`
	Exited        bool                 `json:"exited"`
	Confirmed     bool                 `json:"confirmed"`
	Route         models.RouteRequest  `json:"route"`
	ScheduledAt   *time.Time           `json:"scheduled_at,omitempty"`
	Passengers    int                  `json:"passengers"`
	RouteQuote    *models.RouteQuote   `json:"route_quote,omitempty"`
	Vehicles      []models.RateCard    `json:"vehicles,omitempty"`
	VehicleError  string               `json:"vehicle_error,omitempty"`
	Vehicle       *models.RateCard     `json:"vehicle,omitempty"`
	Options       []string             `json:"options,omitempty"`
	PaymentMethod models.PaymentMethod `json:"payment_method,omitempty"`
	Quote         *models.Quote        `json:"quote,omitempty"`
	ReservationID string               `json:"reservation_id,omitempty"`
}

func (s *session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Step:          s.step,
		Exited:        s.exited,
		Confirmed:     s.confirmed,
		Route:         s.route,
		Passengers:    s.passengers,
		VehicleError:  s.vehicleErr,
		PaymentMethod: s.paymentMethod,
		ReservationID: s.reservationID,
	}
	if s.scheduledAt != nil {
		t := *s.scheduledAt
		snap.ScheduledAt = &t
	}
	if s.routeQuote != nil {
		q := *s.routeQuote
		snap.RouteQuote = &q
	}
	if len(s.vehicles) > 0 {
		snap.Vehicles = make([]models.RateCard, len(s.vehicles))
		copy(snap.Vehicles, s.vehicles)
	}
	if s.selected != nil {
		v := *s.selected
		snap.Vehicle = &v
	}
	if len(s.options) > 0 {
		snap.Options = make([]string, len(s.options))
		copy(snap.Options, s.options)
	}
	if s.quote != nil {
		q := *s.quote
		snap.Quote = &q
	}
	return snap
}

func (s *session) finishedLocked() bool { return s.exited || s.confirmed }

// toggleOptionLocked adds the option if absent, removes it if present.
func (s *session) toggleOptionLocked(id string) {
	for i, o := range s.options {
		if o == id {
			s.options = append(s.options[:i], s.options[i+1:]...)
			return
		}
	}
	s.options = append(s.options, id)
}
