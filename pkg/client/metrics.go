package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Prometheus metrics for Steam client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_requests_total",
		Help: "Total Steam requests by client, endpoint and status",
	}, []string{"client", "endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "steam_request_duration_seconds",
		Help:    "Steam request duration in seconds by client and endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"client", "endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_errors_total",
		Help: "Total Steam errors by class",
	}, []string{"client", "class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"client", "error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "steam_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"client", "error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"client", "error_class"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "steam_circuit_breaker_state",
		Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
	}, []string{"client"})

	breakerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_circuit_breaker_rejections_total",
		Help: "Total number of calls rejected without network I/O by an open breaker",
	}, []string{"client"})
)

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
