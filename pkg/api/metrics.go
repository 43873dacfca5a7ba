package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// routeRequestsTotal counts route queries by outcome.
	routeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnrouter_route_requests_total",
			Help: "Total number of route requests",
		},
		[]string{"status"},
	)

	// routeDurationSeconds measures route query latency.
	routeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turnrouter_route_duration_seconds",
			Help:    "Latency of route requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// requestsInFlight tracks concurrently handled requests.
	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnrouter_requests_in_flight",
			Help: "Number of requests currently being handled",
		},
	)

	// requestsRejectedTotal counts requests shed by the concurrency limiter.
	requestsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnrouter_requests_rejected_total",
			Help: "Total number of requests rejected by the concurrency limiter",
		},
	)
)
