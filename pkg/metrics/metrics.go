// Package metrics provides the Prometheus registry and HTTP handler for the
// Steam relay. All metrics are defined in their respective packages (client,
// cache, ratelimit) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the relay.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry the handler exposes.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - steam_requests_total{client, endpoint, status} (Counter): Requests by outcome
//   - steam_request_duration_seconds{client, endpoint} (Histogram): Fetch duration including retries
//   - steam_errors_total{client, class} (Counter): Failed attempts by error class
//
// Retry Metrics (pkg/client):
//   - steam_retries_total{client, error_class} (Counter): Retry attempts by error class
//   - steam_retry_backoff_seconds{client, error_class} (Histogram): Backoff and Retry-After waits
//   - steam_retry_exhausted_total{client, error_class} (Counter): Requests that exhausted their retries
//
// Circuit Breaker Metrics (pkg/client):
//   - steam_circuit_breaker_state{client} (Gauge): 0 closed, 1 half-open, 2 open
//   - steam_circuit_breaker_rejections_total{client} (Counter): Calls failed fast while open
//
// Cache Metrics (pkg/cache):
//   - steam_cache_hits_total (Counter): Cache hits
//   - steam_cache_misses_total (Counter): Cache misses, expired entries included
//   - steam_cache_evictions_total{reason} (Counter): Evictions by reason (capacity, expired)
//   - steam_cache_entries (Gauge): Current number of entries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - steam_ratelimit_decisions_total{backend, decision} (Counter): Allowed and denied calls
//   - steam_ratelimit_tracked_callers (Gauge): Callers with an in-memory window
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(steam_cache_hits_total[5m])) /
//   (sum(rate(steam_cache_hits_total[5m])) + sum(rate(steam_cache_misses_total[5m])))
//
//   # Open breakers
//   steam_circuit_breaker_state == 2
//
//   # Denied callers
//   rate(steam_ratelimit_decisions_total{decision="denied"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(steam_request_duration_seconds_bucket[5m]))
