// Package httpapi is the thin HTTP skin over the booking wizard. Every
// handler decodes, calls one service method, and renders the snapshot;
// the wizard owns all sequencing rules.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-booking/internal/identity"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/pricing"
	"github.com/example/ride-booking/internal/reservation"
	"github.com/example/ride-booking/internal/routing"
	"github.com/example/ride-booking/internal/stream"
	"github.com/example/ride-booking/internal/wizard"
)

type Server struct {
	wizard   *wizard.Service
	history  *reservation.Persister
	options  *pricing.Catalog
	verifier identity.Verifier
	streams  *stream.Registry
	ready    func(context.Context) error
	logger   *slog.Logger
	mux      *mux.Router
}

// Deps bundles what the server needs. Ready is an optional probe for
// the readiness endpoint (backing-store pings).
type Deps struct {
	Wizard   *wizard.Service
	History  *reservation.Persister
	Options  *pricing.Catalog
	Verifier identity.Verifier
	Streams  *stream.Registry
	Ready    func(context.Context) error
	Logger   *slog.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		wizard:   d.Wizard,
		history:  d.History,
		options:  d.Options,
		verifier: d.Verifier,
		streams:  d.Streams,
		ready:    d.Ready,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/bookings", s.handleOpen).Methods("POST")
	api.HandleFunc("/bookings/{id}", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/bookings/{id}/route", s.handleRoute).Methods("POST")
	api.HandleFunc("/bookings/{id}/advance", s.handleAdvance).Methods("POST")
	api.HandleFunc("/bookings/{id}/back", s.handleBack).Methods("POST")
	api.HandleFunc("/bookings/{id}/schedule", s.handleSchedule).Methods("POST")
	api.HandleFunc("/bookings/{id}/vehicle", s.handleVehicle).Methods("POST")
	api.HandleFunc("/bookings/{id}/options/{option_id}", s.handleToggleOption).Methods("POST")
	api.HandleFunc("/bookings/{id}/payment-intent", s.handlePaymentIntent).Methods("POST")
	api.HandleFunc("/bookings/{id}/finalize", s.handleFinalize).Methods("POST")
	api.HandleFunc("/options", s.handleListOptions).Methods("GET")
	api.HandleFunc("/reservations", s.handleReservations).Methods("GET")

	s.mux.HandleFunc("/ws/bookings/{id}", s.handleStream).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.mux.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	snap, err := s.wizard.Open(r.Context(), req.SessionID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wizard.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRoute sets the route fields and triggers the directions lookup
// in one round trip. The snapshot carries the computed quote or, when
// the lookup failed, the wizard still parked on step 1.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Departure    string   `json:"departure"`
		Destination  string   `json:"destination"`
		Waypoints    []string `json:"waypoints"`
		FlightNumber string   `json:"flight_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	route := models.RouteRequest{
		Departure:    req.Departure,
		Destination:  req.Destination,
		Waypoints:    req.Waypoints,
		FlightNumber: req.FlightNumber,
	}
	if _, err := s.wizard.SetRoute(r.Context(), id, route); err != nil {
		s.renderError(w, r, err)
		return
	}
	snap, err := s.wizard.ComputeRoute(r.Context(), id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wizard.Advance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wizard.Back(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at"`
		Passengers  int       `json:"passengers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}
	snap, err := s.wizard.Schedule(r.Context(), mux.Vars(r)["id"], req.ScheduledAt, req.Passengers)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID string `json:"vehicle_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}
	snap, err := s.wizard.SelectVehicle(r.Context(), mux.Vars(r)["id"], req.VehicleID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleToggleOption(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := s.wizard.ToggleOption(r.Context(), vars["id"], vars["option_id"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.wizard.SetPaymentMethod(r.Context(), id, models.PaymentCard); err != nil {
		s.renderError(w, r, err)
		return
	}
	intent, err := s.wizard.CreatePaymentIntent(r.Context(), id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"intent_id":     intent.ID,
		"client_secret": intent.ClientSecret,
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	owner, err := s.authenticate(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id := mux.Vars(r)["id"]

	var snap wizard.Snapshot
	switch req.Method {
	case "card":
		snap, err = s.wizard.FinalizeCard(r.Context(), id, owner)
	case "cash":
		snap, err = s.wizard.FinalizeCash(r.Context(), id, owner)
	default:
		writeError(w, http.StatusBadRequest, "method must be card or cash")
		return
	}
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.options.Options())
}

// handleReservations returns the caller's booking history, newest
// first, with the option surcharge priced by the same catalog the live
// wizard uses.
func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	owner, err := s.authenticate(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	recs, err := s.history.ListByOwner(r.Context(), owner)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	type item struct {
		Reservation any     `json:"reservation"`
		OptionsCost float64 `json:"options_cost"`
	}
	items := make([]item, 0, len(recs))
	for i := range recs {
		items = append(items, item{
			Reservation: recs[i],
			OptionsCost: s.wizard.OptionsCost(recs[i].Options),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": items})
}

var upgrader = websocket.Upgrader{}

// handleStream upgrades to a websocket and keeps the client fed with
// snapshots until it disconnects. The current snapshot is sent on
// connect so a fresh subscriber never starts blind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.wizard.Snapshot(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := s.streams.Add(id, conn)
	if err := sub.Send(snap); err != nil {
		s.streams.Remove(id, sub)
		return
	}
	go func() {
		defer s.streams.Remove(id, sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) authenticate(r *http.Request) (identity.User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return identity.User{}, identity.ErrUnauthenticated
	}
	return s.verifier.Verify(r.Context(), token)
}

// renderError maps domain errors to HTTP statuses. Anything unmapped is
// a 500 and gets logged with the request id.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, wizard.ErrSessionFinished),
		errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrNoVehicles):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wizard.ErrRouteIncomplete),
		errors.Is(err, wizard.ErrScheduleRequired),
		errors.Is(err, wizard.ErrVehicleRequired),
		errors.Is(err, wizard.ErrUnknownOption),
		errors.Is(err, wizard.ErrVehicleNotOffered),
		errors.Is(err, wizard.ErrPaymentMethod),
		errors.Is(err, wizard.ErrNoPaymentIntent),
		errors.Is(err, routing.ErrMissingEndpoints):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, routing.ErrNoRoute):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, wizard.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, reservation.ErrSaveFailed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "route computation timed out")
	default:
		s.logger.Error("unhandled error", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
