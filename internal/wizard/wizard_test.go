package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/catalog"
	"github.com/example/ride-booking/internal/draft"
	"github.com/example/ride-booking/internal/identity"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/pricing"
	"github.com/example/ride-booking/internal/reservation"
	"github.com/example/ride-booking/internal/routing"
)

type fakeProvider struct {
	legs []models.RouteLeg
}

func (p *fakeProvider) Route(ctx context.Context, origin, destination string, waypoints []string) ([]models.RouteLeg, error) {
	return p.legs, nil
}

// racingProvider holds the CDG lookup in flight until released while
// answering any other destination immediately, to exercise supersede
// semantics.
type racingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (p *racingProvider) Route(ctx context.Context, origin, destination string, waypoints []string) ([]models.RouteLeg, error) {
	if destination == "CDG" {
		close(p.entered)
		<-p.release
		return []models.RouteLeg{{DistanceMeters: 99000, DurationSeconds: 9900, End: models.Point{Lat: 2}}}, nil
	}
	return []models.RouteLeg{{DistanceMeters: 10000, DurationSeconds: 600, End: models.Point{Lat: 1}}}, nil
}

type failingProvider struct{ err error }

func (p *failingProvider) Route(ctx context.Context, origin, destination string, waypoints []string) ([]models.RouteLeg, error) {
	return nil, p.err
}

// fakeProcessor scripts payment outcomes and records requested amounts.
type fakeProcessor struct {
	amounts   []int64
	confirmOK bool
	createErr error
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, amountMinor int64, currency string) (payments.Intent, error) {
	if f.createErr != nil {
		return payments.Intent{}, f.createErr
	}
	f.amounts = append(f.amounts, amountMinor)
	return payments.Intent{ID: "pi_1", ClientSecret: "cs_1"}, nil
}

func (f *fakeProcessor) ConfirmIntent(ctx context.Context, intentID string) (payments.Outcome, error) {
	if !f.confirmOK {
		return payments.Outcome{Succeeded: false}, nil
	}
	return payments.Outcome{Succeeded: true, PaymentID: intentID}, nil
}

type env struct {
	svc      *Service
	store    *reservation.MemoryStore
	drafts   *draft.MemoryStore
	proc     *fakeProcessor
	vehicles *catalog.MemoryStore
	provider *fakeProvider
}

func vehicleDoc(id, base, perKm, perHour, passengers string) catalog.Document {
	return catalog.Document{
		ID: id, Name: "v-" + id,
		BasePrice: base, PricePerKm: perKm, PricePerHour: perHour,
		Passengers: passengers, Luggage: "2",
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	provider := &fakeProvider{
		legs: []models.RouteLeg{
			{DistanceMeters: 30000, DurationSeconds: 2700, Start: models.Point{Lat: 48.8}, End: models.Point{Lat: 49.0}},
		},
	}
	vehicles := catalog.NewMemoryStore(
		vehicleDoc("sedan", "20", "1.5", "10", "4"),
		vehicleDoc("van", "35", "2", "15", "7"),
	)
	store := reservation.NewMemoryStore()
	drafts := draft.NewMemoryStore()
	proc := &fakeProcessor{confirmOK: true}
	svc := NewService(Deps{
		// cache TTL of 0 keeps route computes independent across edits
		Routes:    routing.NewService(provider, time.Second, time.Nanosecond, nil),
		Vehicles:  catalog.NewService(vehicles, nil),
		Pricing:   pricing.NewCatalog(pricing.DefaultOptions, nil),
		Drafts:    drafts,
		Persister: reservation.NewPersister(store, nil, nil),
		Processor: proc,
	})
	return &env{svc: svc, store: store, drafts: drafts, proc: proc, vehicles: vehicles, provider: provider}
}

// driveTo walks a fresh session forward to the given step.
func (e *env) driveTo(t *testing.T, step int) string {
	t.Helper()
	ctx := context.Background()
	snap, err := e.svc.Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id := snap.ID

	if step < StepSchedule {
		return id
	}
	if _, err := e.svc.SetRoute(ctx, id, models.RouteRequest{Departure: "Paris", Destination: "CDG"}); err != nil {
		t.Fatalf("set route: %v", err)
	}
	if _, err := e.svc.ComputeRoute(ctx, id); err != nil {
		t.Fatalf("compute route: %v", err)
	}
	mustAdvance(t, e.svc, id) // → 2
	if step < StepVehicle {
		return id
	}
	when := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if _, err := e.svc.Schedule(ctx, id, when, 2); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	mustAdvance(t, e.svc, id) // → 3
	if step < StepOptions {
		return id
	}
	if _, err := e.svc.SelectVehicle(ctx, id, "sedan"); err != nil {
		t.Fatalf("select vehicle: %v", err)
	}
	mustAdvance(t, e.svc, id) // → 4
	if step < StepSummary {
		return id
	}
	mustAdvance(t, e.svc, id) // → 5
	if step < StepPayment {
		return id
	}
	mustAdvance(t, e.svc, id) // → 6
	return id
}

func mustAdvance(t *testing.T, svc *Service, id string) Snapshot {
	t.Helper()
	snap, err := svc.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	return snap
}

func TestStepGating(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	snap, _ := e.svc.Open(ctx, "")
	id := snap.ID

	// step 1 without endpoints
	if _, err := e.svc.Advance(ctx, id); !errors.Is(err, ErrRouteIncomplete) {
		t.Errorf("advance on empty route: err = %v, want ErrRouteIncomplete", err)
	}
	// endpoints set but route not computed
	_, _ = e.svc.SetRoute(ctx, id, models.RouteRequest{Departure: "Paris", Destination: "CDG"})
	if _, err := e.svc.Advance(ctx, id); !errors.Is(err, ErrRouteNotComputed) {
		t.Errorf("advance without compute: err = %v, want ErrRouteNotComputed", err)
	}
	if _, err := e.svc.ComputeRoute(ctx, id); err != nil {
		t.Fatalf("compute: %v", err)
	}
	mustAdvance(t, e.svc, id)

	// step 2 without a date
	if _, err := e.svc.Advance(ctx, id); !errors.Is(err, ErrScheduleRequired) {
		t.Errorf("advance without date: err = %v, want ErrScheduleRequired", err)
	}
	_, _ = e.svc.Schedule(ctx, id, time.Now().Add(24*time.Hour), 2)
	mustAdvance(t, e.svc, id)

	// step 3 without a vehicle
	if _, err := e.svc.Advance(ctx, id); !errors.Is(err, ErrVehicleRequired) {
		t.Errorf("advance without vehicle: err = %v, want ErrVehicleRequired", err)
	}
}

func TestRouteFailureKeepsStepOne(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.svc.routes = routing.NewService(&failingProvider{err: errors.New("NOT_FOUND")}, time.Second, time.Minute, nil)

	snap, _ := e.svc.Open(ctx, "")
	_, _ = e.svc.SetRoute(ctx, snap.ID, models.RouteRequest{Departure: "Paris", Destination: "Nowhere"})
	if _, err := e.svc.ComputeRoute(ctx, snap.ID); err == nil {
		t.Fatal("compute succeeded, want failure")
	}
	cur, _ := e.svc.Snapshot(snap.ID)
	if cur.Step != StepRoute {
		t.Errorf("step = %d, want 1 after route failure", cur.Step)
	}
	if _, err := e.svc.Advance(ctx, snap.ID); !errors.Is(err, ErrRouteNotComputed) {
		t.Errorf("advance after failure: err = %v", err)
	}
}

func TestEmptyVehicleListBlocksStepThree(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	id := e.driveTo(t, StepSchedule)
	// a fleet where nothing seats five
	small := catalog.NewMemoryStore(
		vehicleDoc("a", "20", "1", "10", "1"),
		vehicleDoc("b", "20", "1", "10", "2"),
		vehicleDoc("c", "20", "1", "10", "4"),
	)
	e.svc.vehicles = catalog.NewService(small, nil)
	if _, err := e.svc.Schedule(ctx, id, time.Now().Add(time.Hour), 5); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	snap := mustAdvance(t, e.svc, id)
	if snap.Step != StepVehicle {
		t.Fatalf("step = %d, want 3", snap.Step)
	}
	if snap.VehicleError == "" {
		t.Error("expected vehicle error sub-state")
	}
	if _, err := e.svc.Advance(ctx, id); !errors.Is(err, ErrNoVehicles) {
		t.Errorf("advance from empty list: err = %v, want ErrNoVehicles", err)
	}
	// back-navigation is the escape hatch
	back, err := e.svc.Back(ctx, id)
	if err != nil || back.Step != StepSchedule {
		t.Errorf("back: snap=%+v err=%v", back, err)
	}
}

func TestVehicleListFilteredByCapacity(t *testing.T) {
	e := newEnv(t)
	id := e.driveTo(t, StepVehicle)
	snap, _ := e.svc.Snapshot(id)
	if len(snap.Vehicles) != 2 {
		t.Fatalf("vehicles = %d, want 2 for 2 passengers", len(snap.Vehicles))
	}
	if _, err := e.svc.SelectVehicle(context.Background(), id, "bus"); !errors.Is(err, ErrVehicleNotOffered) {
		t.Errorf("select unknown: err = %v", err)
	}
}

func TestQuoteFollowsSelection(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepOptions)

	snap, _ := e.svc.Snapshot(id)
	// sedan: 20 + 1.5*30 + 10*(45/60) = 72.5
	if snap.Quote == nil || snap.Quote.Total != 72.5 {
		t.Fatalf("quote = %+v, want total 72.5", snap.Quote)
	}

	snap, err := e.svc.ToggleOption(ctx, id, "airport")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if snap.Quote.Total != 102.5 {
		t.Errorf("total = %v, want 102.5 with airport option", snap.Quote.Total)
	}

	// toggling twice restores the original set and total
	snap, _ = e.svc.ToggleOption(ctx, id, "airport")
	if len(snap.Options) != 0 || snap.Quote.Total != 72.5 {
		t.Errorf("after double toggle: options=%v total=%v", snap.Options, snap.Quote.Total)
	}
}

func TestToggleUnknownOptionRejected(t *testing.T) {
	e := newEnv(t)
	id := e.driveTo(t, StepOptions)
	if _, err := e.svc.ToggleOption(context.Background(), id, "jacuzzi"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("err = %v, want ErrUnknownOption", err)
	}
}

func TestBackKeepsData(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepOptions)
	_, _ = e.svc.ToggleOption(ctx, id, "baby")

	snap, _ := e.svc.Back(ctx, id) // → 3
	if snap.Step != StepVehicle || snap.Vehicle == nil || len(snap.Options) != 1 {
		t.Errorf("after back: %+v", snap)
	}
	snap, _ = e.svc.Back(ctx, id) // → 2
	if snap.Step != StepSchedule || snap.ScheduledAt == nil || snap.Route.Departure != "Paris" {
		t.Errorf("after back: %+v", snap)
	}
}

func TestBackFromStepOneExits(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	snap, _ := e.svc.Open(ctx, "")
	snap, err := e.svc.Back(ctx, snap.ID)
	if err != nil || !snap.Exited {
		t.Fatalf("back from step 1: snap=%+v err=%v", snap, err)
	}
	if _, err := e.svc.Advance(ctx, snap.ID); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("advance after exit: err = %v", err)
	}
}

func TestFinalizeCashWritesFreshQuote(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	// change the selection after reaching step 6, then come back
	for i := 0; i < 2; i++ { // 6 → 5 → 4
		if _, err := e.svc.Back(ctx, id); err != nil {
			t.Fatalf("back: %v", err)
		}
	}
	if _, err := e.svc.ToggleOption(ctx, id, "pet"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	for i := 0; i < 2; i++ { // 4 → 5 → 6
		mustAdvance(t, e.svc, id)
	}

	snap, err := e.svc.FinalizeCash(ctx, id, identity.User{ID: "u1"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !snap.Confirmed || snap.ReservationID == "" {
		t.Fatalf("snapshot after finalize: %+v", snap)
	}

	recs, _ := e.store.ListByOwner(ctx, "u1")
	if len(recs) != 1 {
		t.Fatalf("reservations = %d, want 1", len(recs))
	}
	// 72.5 + pet(20): the persisted total reflects the late change
	if recs[0].Quote.Total != 92.5 {
		t.Errorf("persisted total = %v, want 92.5", recs[0].Quote.Total)
	}
	if recs[0].PaymentStatus != models.PaymentPending {
		t.Errorf("payment status = %s, want pending for cash", recs[0].PaymentStatus)
	}

	// the draft is cleared once finalized
	if _, err := e.drafts.Load(ctx, id); !errors.Is(err, draft.ErrNotFound) {
		t.Errorf("draft after finalize: err = %v, want ErrNotFound", err)
	}
}

func TestFinalizeCardUsesFreshAmount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	if _, err := e.svc.SetPaymentMethod(ctx, id, models.PaymentCard); err != nil {
		t.Fatalf("set method: %v", err)
	}
	intent, err := e.svc.CreatePaymentIntent(ctx, id)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ClientSecret == "" {
		t.Error("empty client secret")
	}
	if len(e.proc.amounts) != 1 || e.proc.amounts[0] != 7250 {
		t.Errorf("intent amounts = %v, want [7250]", e.proc.amounts)
	}

	snap, err := e.svc.FinalizeCard(ctx, id, identity.User{ID: "u1"})
	if err != nil {
		t.Fatalf("finalize card: %v", err)
	}
	recs, _ := e.store.ListByOwner(ctx, "u1")
	if len(recs) != 1 || recs[0].PaymentStatus != models.PaymentPaid || recs[0].PaymentReference != "pi_1" {
		t.Errorf("persisted = %+v", recs)
	}
	if !snap.Confirmed {
		t.Error("session not confirmed")
	}
}

func TestFailedPaymentKeepsStepSix(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.proc.confirmOK = false
	id := e.driveTo(t, StepPayment)

	_, _ = e.svc.SetPaymentMethod(ctx, id, models.PaymentCard)
	if _, err := e.svc.CreatePaymentIntent(ctx, id); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if _, err := e.svc.FinalizeCard(ctx, id, identity.User{ID: "u1"}); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}

	snap, _ := e.svc.Snapshot(id)
	if snap.Step != StepPayment || snap.Confirmed {
		t.Errorf("after failed payment: %+v", snap)
	}
	if e.store.Count() != 0 {
		t.Errorf("reservations written = %d, want 0", e.store.Count())
	}

	// switching to cash still works
	e.proc.confirmOK = true
	if _, err := e.svc.FinalizeCash(ctx, id, identity.User{ID: "u1"}); err != nil {
		t.Fatalf("cash after failed card: %v", err)
	}
}

func TestFinalizeUnauthenticated(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	if _, err := e.svc.FinalizeCash(ctx, id, identity.User{}); !errors.Is(err, identity.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	snap, _ := e.svc.Snapshot(id)
	if snap.Step != StepPayment || snap.Confirmed {
		t.Errorf("state changed on unauthenticated finalize: %+v", snap)
	}
}

func TestFinalizeFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	boom := errors.New("db down")
	e.store.Fail(boom)
	if _, err := e.svc.FinalizeCash(ctx, id, identity.User{ID: "u1"}); !errors.Is(err, reservation.ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}
	snap, _ := e.svc.Snapshot(id)
	if snap.Step != StepPayment || snap.Confirmed {
		t.Errorf("state after save failure: %+v", snap)
	}

	e.store.Fail(nil)
	if _, err := e.svc.FinalizeCash(ctx, id, identity.User{ID: "u1"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if e.store.Count() != 1 {
		t.Errorf("reservations = %d, want exactly 1", e.store.Count())
	}
}

// gatedStore blocks Create until released, to overlap two finalize
// calls on the same session.
type gatedStore struct {
	inner   *reservation.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Create(ctx context.Context, r *models.Reservation) error {
	g.entered <- struct{}{}
	<-g.release
	return g.inner.Create(ctx, r)
}

func (g *gatedStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	return g.inner.ListByOwner(ctx, ownerID)
}

func TestConcurrentFinalizeWritesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	gated := &gatedStore{inner: e.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	e.svc.persister = reservation.NewPersister(gated, nil, nil)

	first := make(chan error, 1)
	go func() {
		_, err := e.svc.FinalizeCash(ctx, id, identity.User{ID: "u1"})
		first <- err
	}()
	<-gated.entered

	// a second finalize lands while the first is mid-write
	if _, err := e.svc.FinalizeCash(ctx, id, identity.User{ID: "u1"}); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("overlapping finalize: err = %v, want ErrSessionFinished", err)
	}

	close(gated.release)
	if err := <-first; err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if e.store.Count() != 1 {
		t.Fatalf("reservations written = %d, want exactly 1", e.store.Count())
	}
}

func TestStaleRouteResultDiscarded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	racing := &racingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	e.svc.routes = routing.NewService(racing, time.Second, time.Minute, nil)

	snap, _ := e.svc.Open(ctx, "")
	id := snap.ID
	_, _ = e.svc.SetRoute(ctx, id, models.RouteRequest{Departure: "Paris", Destination: "CDG"})

	// first compute blocks inside the provider
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.svc.ComputeRoute(ctx, id)
	}()
	<-racing.entered

	// user edits the route and recomputes; this one resolves first
	if _, err := e.svc.SetRoute(ctx, id, models.RouteRequest{Departure: "Paris", Destination: "Orly"}); err != nil {
		t.Fatalf("set route: %v", err)
	}
	if _, err := e.svc.ComputeRoute(ctx, id); err != nil {
		t.Fatalf("second compute: %v", err)
	}

	// release the stale first call; its 99km result must be discarded
	close(racing.release)
	<-done

	cur, _ := e.svc.Snapshot(id)
	if cur.RouteQuote == nil || cur.RouteQuote.DistanceKm != 10 {
		t.Errorf("route quote = %+v, want the newer 10km result", cur.RouteQuote)
	}
}

func TestDraftSavedPastStepOneAndResumes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepVehicle)
	_, _ = e.svc.SelectVehicle(ctx, id, "sedan")

	d, err := e.drafts.Load(ctx, id)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if d.Step != StepVehicle || d.VehicleID != "sedan" || d.Route.Departure != "Paris" {
		t.Errorf("draft = %+v", d)
	}

	// a new service instance (process restart) resumes from the draft
	svc2 := NewService(Deps{
		Routes:    routing.NewService(e.provider, time.Second, time.Minute, nil),
		Vehicles:  catalog.NewService(e.vehicles, nil),
		Pricing:   pricing.NewCatalog(pricing.DefaultOptions, nil),
		Drafts:    e.drafts,
		Persister: reservation.NewPersister(e.store, nil, nil),
		Processor: e.proc,
	})
	snap, err := svc2.Open(ctx, id)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if snap.Step != StepVehicle || snap.Passengers != 2 || snap.Route.Destination != "CDG" {
		t.Errorf("resumed = %+v", snap)
	}
	if snap.Vehicle == nil || snap.Vehicle.ID != "sedan" {
		t.Errorf("resumed vehicle = %+v, want sedan restored", snap.Vehicle)
	}
}

func TestResumeAtPaymentStepFinalizes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	// process restart sharing the draft and reservation stores
	svc2 := NewService(Deps{
		Routes:    routing.NewService(e.provider, time.Second, time.Minute, nil),
		Vehicles:  catalog.NewService(e.vehicles, nil),
		Pricing:   pricing.NewCatalog(pricing.DefaultOptions, nil),
		Drafts:    e.drafts,
		Persister: reservation.NewPersister(e.store, nil, nil),
		Processor: e.proc,
	})
	snap, err := svc2.Open(ctx, id)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if snap.Step != StepPayment {
		t.Fatalf("resumed step = %d, want 6", snap.Step)
	}
	if snap.Vehicle == nil || snap.Vehicle.ID != "sedan" {
		t.Fatalf("resumed vehicle = %+v, want sedan restored", snap.Vehicle)
	}
	if snap.Quote == nil || snap.Quote.Total != 72.5 {
		t.Fatalf("resumed quote = %+v, want total 72.5", snap.Quote)
	}

	if _, err := svc2.FinalizeCash(ctx, id, identity.User{ID: "u1"}); err != nil {
		t.Fatalf("finalize on resumed session: %v", err)
	}
	if e.store.Count() != 1 {
		t.Errorf("reservations = %d, want 1", e.store.Count())
	}
}

func TestResumeWithVehicleGoneParksOnVehicleStep(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepPayment)

	// the drafted sedan is gone from the fleet by the time of the resume
	shrunk := catalog.NewMemoryStore(vehicleDoc("van", "35", "2", "15", "7"))
	svc2 := NewService(Deps{
		Routes:    routing.NewService(e.provider, time.Second, time.Minute, nil),
		Vehicles:  catalog.NewService(shrunk, nil),
		Pricing:   pricing.NewCatalog(pricing.DefaultOptions, nil),
		Drafts:    e.drafts,
		Persister: reservation.NewPersister(e.store, nil, nil),
		Processor: e.proc,
	})
	snap, err := svc2.Open(ctx, id)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if snap.Step != StepVehicle {
		t.Fatalf("resumed step = %d, want 3 when the selection is gone", snap.Step)
	}
	if snap.Vehicle != nil {
		t.Errorf("stale vehicle resurrected: %+v", snap.Vehicle)
	}
	if len(snap.Vehicles) != 1 || snap.Vehicles[0].ID != "van" {
		t.Errorf("offered = %+v, want only van", snap.Vehicles)
	}
}

func TestIncompatibleDraftStartsFresh(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.drafts.Put("old-session", []byte(`{"version":99,"step":5}`))

	snap, err := e.svc.Open(ctx, "old-session")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.Step != StepRoute {
		t.Errorf("step = %d, want fresh step 1 for incompatible draft", snap.Step)
	}
}

func TestPassengerIncreaseDropsUnfitVehicle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.driveTo(t, StepOptions)

	// back to step 2 and grow the party beyond the sedan's capacity
	_, _ = e.svc.Back(ctx, id) // → 3
	_, _ = e.svc.Back(ctx, id) // → 2
	snap, err := e.svc.Schedule(ctx, id, time.Now().Add(time.Hour), 6)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if snap.Vehicle != nil {
		t.Errorf("sedan kept despite 6 passengers: %+v", snap.Vehicle)
	}
	// re-entering step 3 offers only the van now
	snap = mustAdvance(t, e.svc, id)
	if len(snap.Vehicles) != 1 || snap.Vehicles[0].ID != "van" {
		t.Errorf("vehicles = %+v, want only van", snap.Vehicles)
	}
}
