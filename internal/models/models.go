package models

import (
	"strconv"
	"time"
)

// Capacity describes how many passengers and bags a vehicle takes.
type Capacity struct {
	Passengers int `json:"passengers"`
	Luggage    int `json:"luggage"`
}

// RateCard is a vehicle's pricing and capacity profile. It is owned by
// the vehicle catalog; the booking core only reads it. Numeric fields
// are already parsed — a card that failed parsing never leaves the
// catalog layer.
type RateCard struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capacity     Capacity `json:"capacity"`
	BasePrice    float64  `json:"base_price"`
	PricePerKm   float64  `json:"price_per_km"`
	PricePerHour float64  `json:"price_per_hour"`
	ImageURL     string   `json:"image_url,omitempty"`
}

// RouteRequest is the user-entered route. Waypoints may be empty while
// the user is still typing; empty entries are excluded from routing.
type RouteRequest struct {
	Departure    string   `json:"departure"`
	Destination  string   `json:"destination"`
	Waypoints    []string `json:"waypoints,omitempty"`
	FlightNumber string   `json:"flight_number,omitempty"` // informational only
}

// ResolvedWaypoints returns the waypoints that actually participate in
// the route, preserving order.
func (r RouteRequest) ResolvedWaypoints() []string {
	out := make([]string, 0, len(r.Waypoints))
	for _, wp := range r.Waypoints {
		if wp != "" {
			out = append(out, wp)
		}
	}
	return out
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Marker is a labeled map endpoint ("A" for origin, "B" for destination).
type Marker struct {
	Position Point  `json:"position"`
	Label    string `json:"label"`
}

// Viewport is the bounding box covering every leg endpoint of a route.
type Viewport struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

// RouteLeg is one segment of the computed route, kept for map rendering.
type RouteLeg struct {
	DistanceMeters  int   `json:"distance_meters"`
	DurationSeconds int   `json:"duration_seconds"`
	Start           Point `json:"start"`
	End             Point `json:"end"`
}

// RouteQuote is the computed aggregate of a route request: whole-km and
// whole-minute totals summed across all legs, plus display data.
type RouteQuote struct {
	DistanceKm  int        `json:"distance_km"`
	DurationMin int        `json:"duration_min"`
	Legs        []RouteLeg `json:"legs,omitempty"`
	Markers     []Marker   `json:"markers,omitempty"`
	Viewport    *Viewport  `json:"viewport,omitempty"`
}

// DistanceLabel renders the aggregate distance for display.
func (q RouteQuote) DistanceLabel() string { return strconv.Itoa(q.DistanceKm) + " km" }

// DurationLabel renders the aggregate duration for display.
func (q RouteQuote) DurationLabel() string { return strconv.Itoa(q.DurationMin) + " min" }

// Quote is the priced breakdown for one vehicle + route + option set.
// Components are full-precision; rounding to two decimals happens only
// at presentation time.
type Quote struct {
	BasePrice    float64 `json:"base_price"`
	DistanceCost float64 `json:"distance_cost"`
	TimeCost     float64 `json:"time_cost"`
	OptionsCost  float64 `json:"options_cost"`
	Total        float64 `json:"total"`
}

// TotalMinorUnits converts the total to the minor-currency-unit integer
// form a payment processor expects (cents for 2-decimal currencies).
func (q Quote) TotalMinorUnits() int64 {
	return int64(q.Total*100 + 0.5)
}

// PaymentMethod is how the passenger chose to pay.
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

// ReservationStatus is the lifecycle state of a persisted reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// PaymentStatus tracks the charge outcome attached to a reservation.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Reservation is the immutable record written exactly once at finalize.
// The history view reads these records, so the shape is a hard contract.
type Reservation struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"owner_id"`
	Departure        string            `json:"departure"`
	Destination      string            `json:"destination"`
	Waypoints        []string          `json:"waypoints,omitempty"`
	FlightNumber     string            `json:"flight_number,omitempty"`
	ScheduledAt      time.Time         `json:"scheduled_at"`
	Passengers       int               `json:"passengers"`
	VehicleID        string            `json:"vehicle_id"`
	Options          []string          `json:"options,omitempty"`
	DistanceKm       int               `json:"distance_km"`
	DurationMin      int               `json:"duration_min"`
	Quote            Quote             `json:"quote"`
	PaymentMethod    PaymentMethod     `json:"payment_method"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	Status           ReservationStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}
