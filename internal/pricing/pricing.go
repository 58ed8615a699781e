package pricing

import (
	"log/slog"

	"github.com/example/ride-booking/internal/models"
)

// Option is a fixed-price add-on selectable independently of route and
// vehicle.
type Option struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Surcharge float64 `json:"surcharge"`
}

// Catalog is the static, enumerable set of add-on options. It is the
// single source of truth for option pricing: the live wizard and the
// historical reservation detail view both price options through it.
type Catalog struct {
	options []Option
	byID    map[string]Option
	logger  *slog.Logger
}

// DefaultOptions mirrors the production option set.
var DefaultOptions = []Option{
	{ID: "airport", Name: "Airport VIP assistance", Surcharge: 30},
	{ID: "baby", Name: "Baby seat", Surcharge: 10},
	{ID: "child", Name: "Child seat", Surcharge: 10},
	{ID: "booster", Name: "Booster seat", Surcharge: 10},
	{ID: "pet", Name: "Pet transport", Surcharge: 20},
	{ID: "early", Name: "Early arrival", Surcharge: 0},
}

// NewCatalog builds a catalog from the given options. A nil logger
// falls back to slog.Default.
func NewCatalog(options []Option, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]Option, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}
	return &Catalog{options: options, byID: byID, logger: logger}
}

// Options returns the catalog entries in declaration order.
func (c *Catalog) Options() []Option {
	out := make([]Option, len(c.options))
	copy(out, c.options)
	return out
}

// Lookup returns the option for id, if present.
func (c *Catalog) Lookup(id string) (Option, bool) {
	o, ok := c.byID[id]
	return o, ok
}

// SurchargeTotal sums the surcharge of every selected option present in
// the catalog. An unknown id contributes 0 and is logged; it must never
// inflate the total or fail the calculation.
func (c *Catalog) SurchargeTotal(optionIDs []string) float64 {
	var total float64
	for _, id := range optionIDs {
		o, ok := c.byID[id]
		if !ok {
			c.logger.Warn("unknown option id ignored", "option_id", id)
			continue
		}
		total += o.Surcharge
	}
	return total
}

// Calculator turns a rate card, route aggregates, and an option
// selection into a priced quote. It is pure: no I/O, no failure mode.
type Calculator struct {
	catalog *Catalog
}

func NewCalculator(catalog *Catalog) *Calculator {
	return &Calculator{catalog: catalog}
}

// Quote computes the full breakdown:
//
//	total = base + perKm*distanceKm + perHour*(durationMin/60) + options
//
// Intermediate math keeps full float64 precision; rounding to a
// displayable amount happens only at presentation time. Callers must
// hand in a RateCard with already-parsed numeric fields (the catalog
// layer guarantees this), so every component is non-negative by
// construction.
func (c *Calculator) Quote(card models.RateCard, distanceKm, durationMin int, optionIDs []string) models.Quote {
	distanceCost := card.PricePerKm * float64(distanceKm)
	timeCost := card.PricePerHour * (float64(durationMin) / 60)
	optionsCost := c.catalog.SurchargeTotal(optionIDs)
	return models.Quote{
		BasePrice:    card.BasePrice,
		DistanceCost: distanceCost,
		TimeCost:     timeCost,
		OptionsCost:  optionsCost,
		Total:        card.BasePrice + distanceCost + timeCost + optionsCost,
	}
}
