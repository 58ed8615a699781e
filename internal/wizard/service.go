package wizard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/catalog"
	"github.com/example/ride-booking/internal/draft"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/pricing"
	"github.com/example/ride-booking/internal/reservation"
	"github.com/example/ride-booking/internal/routing"
)

// Notifier receives a snapshot after every state change, for pushing
// live quote updates to the client.
type Notifier interface {
	Publish(sessionID string, snap Snapshot)
}

// Service hosts booking sessions and orchestrates the collaborators at
// the right transition points.
type Service struct {
	routes    *routing.Service
	vehicles  *catalog.Service
	calc      *pricing.Calculator
	catalog   *pricing.Catalog
	drafts    draft.Store
	persister *reservation.Persister
	processor payments.Processor
	currency  string
	notifier  Notifier
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// Deps bundles the collaborators a Service needs.
type Deps struct {
	Routes    *routing.Service
	Vehicles  *catalog.Service
	Pricing   *pricing.Catalog
	Drafts    draft.Store
	Persister *reservation.Persister
	Processor payments.Processor
	Currency  string
	Notifier  Notifier
	Logger    *slog.Logger
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	currency := d.Currency
	if currency == "" {
		currency = "eur"
	}
	return &Service{
		routes:    d.Routes,
		vehicles:  d.Vehicles,
		calc:      pricing.NewCalculator(d.Pricing),
		catalog:   d.Pricing,
		drafts:    d.Drafts,
		persister: d.Persister,
		processor: d.Processor,
		currency:  currency,
		notifier:  d.Notifier,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

// Open starts a session. When sessionID names a recoverable draft the
// session resumes at the drafted step with the drafted selections; an
// incompatible or missing draft starts fresh at step 1.
func (s *Service) Open(ctx context.Context, sessionID string) (Snapshot, error) {
	if sessionID == "" {
		sessionID = newSessionID()
	}
	sess := &session{id: sessionID, step: StepRoute, passengers: 1}

	if d, err := s.drafts.Load(ctx, sessionID); err == nil {
		seedFromDraft(sess, d)
		if sess.step >= StepVehicle {
			s.restoreVehicle(ctx, sess, d.VehicleID)
		}
	} else if errors.Is(err, draft.ErrIncompatible) {
		s.logger.Warn("stale draft rejected, starting fresh", "session_id", sessionID, "error", err)
	}

	snap := sess.snapshotLocked()
	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	return snap, nil
}

func seedFromDraft(sess *session, d draft.Draft) {
	sess.step = d.Step
	if sess.step < StepRoute || sess.step > StepPayment {
		sess.step = StepRoute
	}
	sess.route = d.Route
	sess.scheduledAt = d.ScheduledAt
	if d.Passengers >= 1 {
		sess.passengers = d.Passengers
	}
	sess.options = append([]string(nil), d.Options...)
	sess.paymentMethod = d.PaymentMethod
	sess.routeQuote = d.RouteQuote
	sess.quote = d.Quote
}

// restoreVehicle re-fetches the offered list for a resumed session and
// re-validates the drafted selection against it. A selection that is no
// longer offered (or a failed fetch) parks the session back on step 3
// so the user picks again; the drafted card itself is never trusted.
// Called from Open before the session is published, so no lock is held.
func (s *Service) restoreVehicle(ctx context.Context, sess *session, vehicleID string) {
	cards, err := s.vehicles.FitFor(ctx, sess.passengers)
	if err != nil {
		sess.step = StepVehicle
		sess.selected = nil
		sess.quote = nil
		if errors.Is(err, catalog.ErrNoneAvailable) {
			sess.vehicleErr = ErrNoVehicles.Error()
		} else {
			sess.vehicleErr = "could not load vehicles"
			s.logger.Error("vehicle fetch failed on resume", "session_id", sess.id, "error", err)
		}
		return
	}
	sess.vehicles = cards
	for i := range cards {
		if cards[i].ID == vehicleID {
			selected := cards[i]
			sess.selected = &selected
			s.refreshQuoteLocked(sess)
			return
		}
	}
	sess.step = StepVehicle
	sess.selected = nil
	sess.quote = nil
}

func (s *Service) get(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Snapshot returns the current read-only view of the session.
func (s *Service) Snapshot(sessionID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked(), nil
}

// SetRoute replaces the route fields. Only valid on step 1; editing the
// route invalidates any previously computed quote.
func (s *Service) SetRoute(ctx context.Context, sessionID string, route models.RouteRequest) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepRoute {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	sess.route = route
	sess.routeQuote = nil
	sess.quote = nil
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// ComputeRoute issues a directions lookup for the current route. A
// recompute issued while an earlier one is still in flight supersedes
// it: the earlier result is discarded when it finally lands.
func (s *Service) ComputeRoute(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepRoute {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	if sess.route.Departure == "" || sess.route.Destination == "" {
		sess.mu.Unlock()
		return Snapshot{}, ErrRouteIncomplete
	}
	sess.routeSeq++
	seq := sess.routeSeq
	req := sess.route
	sess.mu.Unlock()

	quote, rerr := s.routes.ComputeRoute(ctx, req)

	sess.mu.Lock()
	if seq != sess.routeSeq {
		// a newer compute was issued while this one was in flight
		snap := sess.snapshotLocked()
		sess.mu.Unlock()
		s.logger.Debug("stale route result discarded", "session_id", sessionID, "seq", seq)
		return snap, nil
	}
	if rerr != nil {
		sess.mu.Unlock()
		return Snapshot{}, rerr
	}
	sess.routeQuote = &quote
	s.refreshQuoteLocked(sess)
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// Schedule sets the pickup time and passenger count on step 2. A
// passenger-count change drops a selected vehicle that no longer fits.
func (s *Service) Schedule(ctx context.Context, sessionID string, when time.Time, passengers int) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepSchedule {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	if passengers < 1 {
		passengers = 1
	}
	sess.scheduledAt = &when
	sess.passengers = passengers
	if sess.selected != nil && sess.selected.Capacity.Passengers < passengers {
		sess.selected = nil
		sess.quote = nil
	}
	s.refreshQuoteLocked(sess)
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// SelectVehicle picks a card from the offered (capacity-filtered) list
// and refreshes the quote.
func (s *Service) SelectVehicle(ctx context.Context, sessionID, vehicleID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepVehicle {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	var card *models.RateCard
	for i := range sess.vehicles {
		if sess.vehicles[i].ID == vehicleID {
			card = &sess.vehicles[i]
			break
		}
	}
	if card == nil {
		sess.mu.Unlock()
		return Snapshot{}, ErrVehicleNotOffered
	}
	selected := *card
	sess.selected = &selected
	s.refreshQuoteLocked(sess)
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// ToggleOption adds or removes an add-on on step 4. Toggling twice
// restores the original selection and total.
func (s *Service) ToggleOption(ctx context.Context, sessionID, optionID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if _, ok := s.catalog.Lookup(optionID); !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
	}
	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepOptions {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	sess.toggleOptionLocked(optionID)
	s.refreshQuoteLocked(sess)
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// SetPaymentMethod picks card or cash on step 6.
func (s *Service) SetPaymentMethod(ctx context.Context, sessionID string, method models.PaymentMethod) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if method != models.PaymentCard && method != models.PaymentCash {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrPaymentMethod, method)
	}
	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepPayment {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	sess.paymentMethod = method
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// Advance moves forward one step if the current step's required fields
// are present. Entering step 3 fetches the capacity-filtered vehicle
// list; an empty or failed fetch leaves the wizard on step 3 in an
// error sub-state with back-navigation as the only way out.
func (s *Service) Advance(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	switch sess.step {
	case StepRoute:
		if sess.route.Departure == "" || sess.route.Destination == "" {
			sess.mu.Unlock()
			return Snapshot{}, ErrRouteIncomplete
		}
		if sess.routeQuote == nil {
			sess.mu.Unlock()
			return Snapshot{}, ErrRouteNotComputed
		}
	case StepSchedule:
		if sess.scheduledAt == nil {
			sess.mu.Unlock()
			return Snapshot{}, ErrScheduleRequired
		}
	case StepVehicle:
		if sess.vehicleErr != "" {
			sess.mu.Unlock()
			return Snapshot{}, ErrNoVehicles
		}
		if sess.selected == nil {
			sess.mu.Unlock()
			return Snapshot{}, ErrVehicleRequired
		}
	case StepPayment:
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	sess.step++
	entersVehicleStep := sess.step == StepVehicle
	var seq uint64
	var passengers int
	if entersVehicleStep {
		sess.vehicleSeq++
		seq = sess.vehicleSeq
		passengers = sess.passengers
	}
	sess.mu.Unlock()

	if entersVehicleStep {
		cards, ferr := s.vehicles.FitFor(ctx, passengers)

		sess.mu.Lock()
		if seq == sess.vehicleSeq {
			if ferr != nil {
				sess.vehicles = nil
				sess.selected = nil
				sess.quote = nil
				if errors.Is(ferr, catalog.ErrNoneAvailable) {
					sess.vehicleErr = ErrNoVehicles.Error()
				} else {
					sess.vehicleErr = "could not load vehicles"
					s.logger.Error("vehicle fetch failed", "session_id", sessionID, "error", ferr)
				}
			} else {
				sess.vehicles = cards
				sess.vehicleErr = ""
				// keep a previously selected vehicle only if still offered
				if sess.selected != nil {
					still := false
					for _, c := range cards {
						if c.ID == sess.selected.ID {
							still = true
							break
						}
					}
					if !still {
						sess.selected = nil
						sess.quote = nil
					}
				}
			}
		}
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// Back moves one step backward without discarding anything. Backing out
// of step 1 exits the wizard for good.
func (s *Service) Back(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step == StepRoute {
		sess.exited = true
	} else {
		sess.step--
	}
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	s.afterChange(ctx, sess, snap)
	return snap, nil
}

// refreshQuoteLocked recomputes the price from the current selection.
// Called after every change that can move the total, so the displayed
// quote never lags the selection.
func (s *Service) refreshQuoteLocked(sess *session) {
	if sess.selected == nil || sess.routeQuote == nil {
		return
	}
	q := s.calc.Quote(*sess.selected, sess.routeQuote.DistanceKm, sess.routeQuote.DurationMin, sess.options)
	sess.quote = &q
	observability.QuotesComputed.Inc()
}

// afterChange persists the draft (only once the wizard is past step 1,
// and strictly after the in-memory mutation completed) and pushes the
// snapshot to any live stream.
func (s *Service) afterChange(ctx context.Context, sess *session, snap Snapshot) {
	if snap.Step > StepRoute && !snap.Confirmed && !snap.Exited {
		d := draft.Draft{
			Step:          snap.Step,
			Route:         snap.Route,
			ScheduledAt:   snap.ScheduledAt,
			Passengers:    snap.Passengers,
			Options:       snap.Options,
			PaymentMethod: snap.PaymentMethod,
			RouteQuote:    snap.RouteQuote,
			Quote:         snap.Quote,
			SavedAt:       time.Now().UTC(),
		}
		if snap.Vehicle != nil {
			d.VehicleID = snap.Vehicle.ID
		}
		if err := s.drafts.Save(ctx, snap.ID, d); err != nil {
			s.logger.Warn("draft save failed", "session_id", snap.ID, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(snap.ID, snap)
	}
}

func newSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// OptionsCost prices a historical option selection with the same
// catalog the live wizard uses, for the reservation detail view.
func (s *Service) OptionsCost(optionIDs []string) float64 {
	return s.catalog.SurchargeTotal(optionIDs)
}
