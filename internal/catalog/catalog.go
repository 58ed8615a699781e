// Package catalog reads the vehicle catalog and turns raw documents
// into validated rate cards. Vehicle create/update/delete is
// administrative tooling and lives elsewhere; this side is read-only.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// Document is a raw vehicle record as stored in the catalog backend.
// Numeric fields arrive as strings (the backend is schemaless and the
// admin tooling writes them that way) and are parsed here.
type Document struct {
	ID           string
	Name         string
	BasePrice    string
	PricePerKm   string
	PricePerHour string
	Passengers   string
	Luggage      string
	ImageURL     string
}

// Store lists raw vehicle documents.
type Store interface {
	ListVehicles(ctx context.Context) ([]Document, error)
}

// ErrNoneAvailable is returned when no vehicle fits the requested
// passenger count.
var ErrNoneAvailable = errors.New("no vehicle available for passenger count")

// Service validates documents and serves capacity-filtered rate cards.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// FitFor returns every valid rate card whose passenger capacity covers
// the requested count. Documents with unparseable numeric fields are
// excluded and logged, never offered.
func (s *Service) FitFor(ctx context.Context, passengers int) ([]models.RateCard, error) {
	docs, err := s.store.ListVehicles(ctx)
	if err != nil {
		observability.VehicleFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	cards := make([]models.RateCard, 0, len(docs))
	for _, doc := range docs {
		card, err := parseCard(doc)
		if err != nil {
			s.logger.Warn("invalid vehicle document excluded", "vehicle_id", doc.ID, "error", err)
			continue
		}
		if card.Capacity.Passengers >= passengers {
			cards = append(cards, card)
		}
	}
	if len(cards) == 0 {
		observability.VehicleFetches.WithLabelValues("empty").Inc()
		return nil, ErrNoneAvailable
	}
	observability.VehicleFetches.WithLabelValues("ok").Inc()
	return cards, nil
}

func parseCard(doc Document) (models.RateCard, error) {
	base, err := parsePrice("basePrice", doc.BasePrice)
	if err != nil {
		return models.RateCard{}, err
	}
	perKm, err := parsePrice("pricePerKm", doc.PricePerKm)
	if err != nil {
		return models.RateCard{}, err
	}
	perHour, err := parsePrice("pricePerHour", doc.PricePerHour)
	if err != nil {
		return models.RateCard{}, err
	}
	passengers, err := strconv.Atoi(doc.Passengers)
	if err != nil || passengers <= 0 {
		return models.RateCard{}, fmt.Errorf("passengers %q invalid", doc.Passengers)
	}
	luggage := 0
	if doc.Luggage != "" {
		luggage, err = strconv.Atoi(doc.Luggage)
		if err != nil || luggage < 0 {
			return models.RateCard{}, fmt.Errorf("luggage %q invalid", doc.Luggage)
		}
	}
	return models.RateCard{
		ID:           doc.ID,
		Name:         doc.Name,
		Capacity:     models.Capacity{Passengers: passengers, Luggage: luggage},
		BasePrice:    base,
		PricePerKm:   perKm,
		PricePerHour: perHour,
		ImageURL:     doc.ImageURL,
	}, nil
}

func parsePrice(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q not numeric", field, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s %q negative", field, raw)
	}
	return v, nil
}
