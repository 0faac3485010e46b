package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"

	decisionAllowed = "allowed"
	decisionDenied  = "denied"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steam_ratelimit_decisions_total",
		Help: "Total number of admission decisions by backend and outcome",
	}, []string{"backend", "decision"})

	trackedCallers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steam_ratelimit_tracked_callers",
		Help: "Number of callers with a non-empty in-memory window",
	})
)

func recordDecision(backend string, allowed bool) {
	decision := decisionDenied
	if allowed {
		decision = decisionAllowed
	}
	decisionsTotal.WithLabelValues(backend, decision).Inc()
}
