package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// Provider performs the actual directions lookup against the mapping
// backend. Implementations must return the ordered legs of the best
// route, or an error when the backend reports a non-OK status.
type Provider interface {
	Route(ctx context.Context, origin, destination string, waypoints []string) ([]models.RouteLeg, error)
}

// Geocoder resolves a coordinate back to a formatted address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p models.Point) (string, error)
}

var (
	// ErrMissingEndpoints is returned when departure or destination is empty.
	ErrMissingEndpoints = errors.New("departure and destination are required")
	// ErrNoRoute is returned when the provider found no route between the
	// endpoints.
	ErrNoRoute = errors.New("no route found")
)

// Service computes RouteQuotes. Each compute is bounded by a timeout so
// a slow mapping backend surfaces a failure instead of blocking step
// advancement, and identical requests are served from a short-lived
// cache, which also keeps recomputation deterministic.
type Service struct {
	provider Provider
	timeout  time.Duration
	cache    *cache
	logger   *slog.Logger
}

func NewService(provider Provider, timeout, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		timeout:  timeout,
		cache:    newCache(cacheTTL),
		logger:   logger,
	}
}

// ComputeRoute resolves the request into aggregate distance/duration.
// Empty waypoints are excluded before the provider call; totals are the
// sum over all legs, rounded to whole kilometers and minutes.
func (s *Service) ComputeRoute(ctx context.Context, req models.RouteRequest) (models.RouteQuote, error) {
	if req.Departure == "" || req.Destination == "" {
		return models.RouteQuote{}, ErrMissingEndpoints
	}
	waypoints := req.ResolvedWaypoints()

	key := cacheKey(req.Departure, req.Destination, waypoints)
	if q, ok := s.cache.get(key); ok {
		return q, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	legs, err := s.provider.Route(ctx, req.Departure, req.Destination, waypoints)
	observability.RouteComputeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RouteComputations.WithLabelValues("error").Inc()
		s.logger.Warn("route computation failed",
			"departure", req.Departure, "destination", req.Destination, "error", err)
		return models.RouteQuote{}, fmt.Errorf("compute route: %w", err)
	}
	if len(legs) == 0 {
		observability.RouteComputations.WithLabelValues("no_route").Inc()
		return models.RouteQuote{}, ErrNoRoute
	}
	observability.RouteComputations.WithLabelValues("ok").Inc()

	quote := aggregate(legs)
	s.cache.set(key, quote)
	return quote, nil
}

// aggregate sums leg distance/duration and derives the display data:
// "A"/"B" endpoint markers and a viewport covering every leg endpoint.
func aggregate(legs []models.RouteLeg) models.RouteQuote {
	var meters, seconds int
	for _, leg := range legs {
		meters += leg.DistanceMeters
		seconds += leg.DurationSeconds
	}

	vp := models.Viewport{SouthWest: legs[0].Start, NorthEast: legs[0].Start}
	for _, leg := range legs {
		for _, p := range [2]models.Point{leg.Start, leg.End} {
			vp.SouthWest.Lat = math.Min(vp.SouthWest.Lat, p.Lat)
			vp.SouthWest.Lng = math.Min(vp.SouthWest.Lng, p.Lng)
			vp.NorthEast.Lat = math.Max(vp.NorthEast.Lat, p.Lat)
			vp.NorthEast.Lng = math.Max(vp.NorthEast.Lng, p.Lng)
		}
	}

	return models.RouteQuote{
		DistanceKm:  int(math.Round(float64(meters) / 1000)),
		DurationMin: int(math.Round(float64(seconds) / 60)),
		Legs:        legs,
		Markers: []models.Marker{
			{Position: legs[0].Start, Label: "A"},
			{Position: legs[len(legs)-1].End, Label: "B"},
		},
		Viewport: &vp,
	}
}

// cacheKey length-prefixes every segment so addresses containing the
// separator cannot shift segment boundaries into a colliding key.
func cacheKey(origin, destination string, waypoints []string) string {
	var b strings.Builder
	writeSegment := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
		b.WriteByte('|')
	}
	writeSegment(origin)
	for _, wp := range waypoints {
		writeSegment(wp)
	}
	writeSegment(destination)
	return b.String()
}
