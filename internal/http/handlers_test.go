package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	"github.com/example/ride-booking/internal/stream"
	"github.com/example/ride-booking/internal/wizard"
)

type fixedProvider struct{}

func (fixedProvider) Route(ctx context.Context, origin, destination string, waypoints []string) ([]models.RouteLeg, error) {
	return []models.RouteLeg{{DistanceMeters: 30000, DurationSeconds: 2700}}, nil
}

type noopProcessor struct{}

func (noopProcessor) CreateIntent(ctx context.Context, amountMinor int64, currency string) (payments.Intent, error) {
	return payments.Intent{ID: "pi_test", ClientSecret: "cs_test"}, nil
}

func (noopProcessor) ConfirmIntent(ctx context.Context, intentID string) (payments.Outcome, error) {
	return payments.Outcome{Succeeded: true, PaymentID: intentID}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vehicles := catalog.NewMemoryStore(catalog.Document{
		ID: "sedan", Name: "Sedan",
		BasePrice: "20", PricePerKm: "1.5", PricePerHour: "10",
		Passengers: "4", Luggage: "2",
	})
	options := pricing.NewCatalog(pricing.DefaultOptions, nil)
	persister := reservation.NewPersister(reservation.NewMemoryStore(), nil, nil)
	booking := wizard.NewService(wizard.Deps{
		Routes:    routing.NewService(fixedProvider{}, time.Second, time.Minute, nil),
		Vehicles:  catalog.NewService(vehicles, nil),
		Pricing:   options,
		Drafts:    draft.NewMemoryStore(),
		Persister: persister,
		Processor: noopProcessor{},
	})
	return NewServer(Deps{
		Wizard:   booking,
		History:  persister,
		Options:  options,
		Verifier: identity.StaticVerifier{"tok": {ID: "u1"}},
		Streams:  stream.NewRegistry(nil),
	})
}

func do(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) wizard.Snapshot {
	t.Helper()
	var snap wizard.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestBookingFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, "POST", "/api/v1/bookings", nil, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("open: status %d body %s", w.Code, w.Body)
	}
	id := decodeSnapshot(t, w).ID

	w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/route",
		map[string]any{"departure": "Paris", "destination": "CDG"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("route: status %d body %s", w.Code, w.Body)
	}
	snap := decodeSnapshot(t, w)
	if snap.RouteQuote == nil || snap.RouteQuote.DistanceKm != 30 {
		t.Fatalf("route quote = %+v", snap.RouteQuote)
	}

	if w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/advance", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("advance: status %d body %s", w.Code, w.Body)
	}
	w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/schedule",
		map[string]any{"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339), "passengers": 2}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("schedule: status %d body %s", w.Code, w.Body)
	}
	if w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/advance", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("advance: status %d body %s", w.Code, w.Body)
	}
	w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/vehicle", map[string]string{"vehicle_id": "sedan"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("vehicle: status %d body %s", w.Code, w.Body)
	}
	for i := 0; i < 3; i++ { // options → summary → payment
		if w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/advance", nil, ""); w.Code != http.StatusOK {
			t.Fatalf("advance %d: status %d body %s", i, w.Code, w.Body)
		}
	}

	w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/finalize", map[string]string{"method": "cash"}, "tok")
	if w.Code != http.StatusOK {
		t.Fatalf("finalize: status %d body %s", w.Code, w.Body)
	}
	snap = decodeSnapshot(t, w)
	if !snap.Confirmed || snap.ReservationID == "" {
		t.Fatalf("finalize snapshot = %+v", snap)
	}

	w = do(t, srv, "GET", "/api/v1/reservations", nil, "tok")
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d body %s", w.Code, w.Body)
	}
	var resp struct {
		Reservations []json.RawMessage `json:"reservations"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(resp.Reservations) != 1 {
		t.Fatalf("history items = %d, want 1", len(resp.Reservations))
	}
}

func TestAdvanceBeforeRouteRejected(t *testing.T) {
	srv := newTestServer(t)
	id := decodeSnapshot(t, do(t, srv, "POST", "/api/v1/bookings", nil, "")).ID

	w := do(t, srv, "POST", "/api/v1/bookings/"+id+"/advance", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)
	if w := do(t, srv, "GET", "/api/v1/bookings/nope", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestFinalizeRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	id := decodeSnapshot(t, do(t, srv, "POST", "/api/v1/bookings", nil, "")).ID

	w := do(t, srv, "POST", "/api/v1/bookings/"+id+"/finalize", map[string]string{"method": "cash"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", w.Code)
	}
	w = do(t, srv, "POST", "/api/v1/bookings/"+id+"/finalize", map[string]string{"method": "cash"}, "bad")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", w.Code)
	}
}

func TestListOptions(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, "GET", "/api/v1/options", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var opts []pricing.Option
	if err := json.NewDecoder(w.Body).Decode(&opts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(opts) != len(pricing.DefaultOptions) {
		t.Fatalf("options = %d, want %d", len(opts), len(pricing.DefaultOptions))
	}
}
