package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesComputed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "quotes_computed_total", Help: "Total price quotes computed"})

	RouteComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "route_computations_total", Help: "Route computations by outcome"},
		[]string{"outcome"},
	)
	RouteComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_booking",
		Name:      "route_compute_duration_seconds",
		Help:      "Mapping provider latency distribution",
		Buckets:   prometheus.DefBuckets,
	})

	VehicleFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "vehicle_fetches_total", Help: "Vehicle catalog fetches by outcome"},
		[]string{"outcome"},
	)

	Finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "finalizations_total", Help: "Reservations finalized by payment method"},
		[]string{"method"},
	)
	PaymentFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "payment_failures_total", Help: "Card payment attempts that failed"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_booking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
