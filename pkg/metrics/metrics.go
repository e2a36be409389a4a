// Package metrics exposes the Prometheus registry used by the ISS client.
// Metrics are defined in their owning packages (auth, cache, client, sink)
// via promauto; this package documents them and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the ISS client.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - iss_requests_total{kind, status} (Counter): requests by kind (catalog, cursor, page) and outcome
//   - iss_request_duration_seconds{kind} (Histogram): request latency
//   - iss_errors_total{class} (Counter): failures by class (client, server, rate_limit, network)
//   - iss_retries_total{error_class} (Counter): retry attempts
//   - iss_retry_backoff_seconds{error_class} (Histogram): backoff waited before a retry
//   - iss_retry_exhausted_total{error_class} (Counter): requests that used every attempt
//   - iss_history_pages_total (Counter): history pages delivered to sinks
//   - iss_history_rows_total (Counter): history rows delivered to sinks
//   - iss_instrument_failures_total (Counter): instruments aborted after a page failure
//
// Authentication Metrics (pkg/auth):
//   - iss_auth_attempts_total{result} (Counter): passport logins (success, rejected, no_cookie, error)
//
// Cache Metrics (pkg/cache):
//   - iss_cache_hits_total (Counter), iss_cache_misses_total (Counter)
//   - iss_cache_errors_total{operation} (Counter)
//
// Sink Metrics (pkg/sink):
//   - iss_sink_rows_written_total{kind} (Counter): rows persisted per sink kind
//
// Example Prometheus Queries:
//
//	# Page throughput
//	rate(iss_history_pages_total[5m])
//
//	# Retry pressure
//	sum by (error_class) (rate(iss_retries_total[5m]))
//
//	# P95 page latency
//	histogram_quantile(0.95, rate(iss_request_duration_seconds_bucket{kind="page"}[5m]))
