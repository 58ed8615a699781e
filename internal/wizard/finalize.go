package wizard

import (
	"context"
	"fmt"

	"github.com/example/ride-booking/internal/identity"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/payments"
)

// CreatePaymentIntent opens a card charge for the current total. The
// amount handed to the processor is always recomputed from the live
// state at this moment, in minor units — never a cached figure.
func (s *Service) CreatePaymentIntent(ctx context.Context, sessionID string) (payments.Intent, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return payments.Intent{}, err
	}

	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return payments.Intent{}, ErrSessionFinished
	}
	if sess.step != StepPayment {
		sess.mu.Unlock()
		return payments.Intent{}, ErrWrongStep
	}
	if sess.paymentMethod != models.PaymentCard {
		sess.mu.Unlock()
		return payments.Intent{}, ErrPaymentMethod
	}
	quote, qerr := s.freshQuoteLocked(sess)
	if qerr != nil {
		sess.mu.Unlock()
		return payments.Intent{}, qerr
	}
	sess.paymentSeq++
	seq := sess.paymentSeq
	amount := quote.TotalMinorUnits()
	sess.mu.Unlock()

	intent, perr := s.processor.CreateIntent(ctx, amount, s.currency)
	if perr != nil {
		observability.PaymentFailures.Inc()
		return payments.Intent{}, fmt.Errorf("%w: %v", ErrPaymentFailed, perr)
	}

	sess.mu.Lock()
	if seq == sess.paymentSeq {
		sess.intentID = intent.ID
	}
	sess.mu.Unlock()
	return intent, nil
}

// FinalizeCard completes the booking after the client confirmed the
// card payment. The processor outcome is re-checked server-side; only a
// succeeded charge finalizes. A failed payment leaves the wizard on
// step 6 with everything intact.
func (s *Service) FinalizeCard(ctx context.Context, sessionID string, owner identity.User) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	if sess.finishedLocked() {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	if sess.step != StepPayment || sess.paymentMethod != models.PaymentCard {
		sess.mu.Unlock()
		return Snapshot{}, ErrWrongStep
	}
	intentID := sess.intentID
	sess.mu.Unlock()

	if intentID == "" {
		return Snapshot{}, ErrNoPaymentIntent
	}
	outcome, perr := s.processor.ConfirmIntent(ctx, intentID)
	if perr != nil {
		observability.PaymentFailures.Inc()
		return Snapshot{}, fmt.Errorf("%w: %v", ErrPaymentFailed, perr)
	}
	if !outcome.Succeeded {
		observability.PaymentFailures.Inc()
		return Snapshot{}, ErrPaymentFailed
	}

	return s.finalize(ctx, sess, owner, models.PaymentCard, models.PaymentPaid, outcome.PaymentID)
}

// FinalizeCash completes the booking without a processor call; payment
// is collected by the driver and stays pending on the record.
func (s *Service) FinalizeCash(ctx context.Context, sessionID string, owner identity.User) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
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
	sess.paymentMethod = models.PaymentCash
	sess.mu.Unlock()

	return s.finalize(ctx, sess, owner, models.PaymentCash, models.PaymentPending, "")
}

// finalize recomputes the quote from the current state immediately
// before persisting, so a late option or vehicle change can never leave
// a stale total on the record. Exactly one reservation is written: the
// finalizing flag is held across the store write, so an overlapping
// finalize (double-click, client retry) is rejected instead of writing
// a second record. On failure the flag is released and the call is
// safely retryable.
func (s *Service) finalize(ctx context.Context, sess *session, owner identity.User, method models.PaymentMethod, payStatus models.PaymentStatus, payRef string) (Snapshot, error) {
	sess.mu.Lock()
	if sess.finishedLocked() || sess.finalizing {
		sess.mu.Unlock()
		return Snapshot{}, ErrSessionFinished
	}
	quote, qerr := s.freshQuoteLocked(sess)
	if qerr != nil {
		sess.mu.Unlock()
		return Snapshot{}, qerr
	}
	sess.finalizing = true
	rec := models.Reservation{
		Departure:        sess.route.Departure,
		Destination:      sess.route.Destination,
		Waypoints:        sess.route.ResolvedWaypoints(),
		FlightNumber:     sess.route.FlightNumber,
		ScheduledAt:      *sess.scheduledAt,
		Passengers:       sess.passengers,
		VehicleID:        sess.selected.ID,
		Options:          append([]string(nil), sess.options...),
		DistanceKm:       sess.routeQuote.DistanceKm,
		DurationMin:      sess.routeQuote.DurationMin,
		Quote:            quote,
		PaymentMethod:    method,
		PaymentStatus:    payStatus,
		PaymentReference: payRef,
	}
	sess.mu.Unlock()

	id, err := s.persister.Finalize(ctx, owner, rec)
	if err != nil {
		sess.mu.Lock()
		sess.finalizing = false
		sess.mu.Unlock()
		return Snapshot{}, err
	}

	sess.mu.Lock()
	sess.finalizing = false
	sess.confirmed = true
	sess.reservationID = id
	sess.quote = &quote
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	if err := s.drafts.Clear(ctx, snap.ID); err != nil {
		s.logger.Warn("draft clear failed", "session_id", snap.ID, "error", err)
	}
	if s.notifier != nil {
		s.notifier.Publish(snap.ID, snap)
	}
	return snap, nil
}

// freshQuoteLocked recomputes the total from the current selection and
// fails if the session is missing the pieces a price needs.
func (s *Service) freshQuoteLocked(sess *session) (models.Quote, error) {
	if sess.routeQuote == nil {
		return models.Quote{}, ErrRouteNotComputed
	}
	if sess.selected == nil {
		return models.Quote{}, ErrVehicleRequired
	}
	if sess.scheduledAt == nil {
		return models.Quote{}, ErrScheduleRequired
	}
	q := s.calc.Quote(*sess.selected, sess.routeQuote.DistanceKm, sess.routeQuote.DurationMin, sess.options)
	observability.QuotesComputed.Inc()
	return q, nil
}
