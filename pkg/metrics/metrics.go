// Package metrics exposes the Prometheus metrics of the mangadex client.
// Metrics are defined in their own packages (join, client, cache, ratelimit)
// via promauto and land in the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Join Engine Metrics (pkg/join):
//   - mangadex_join_pages_requested_total (Counter): Listing pages requested
//   - mangadex_join_pages_failed_total (Counter): Listing pages that failed to fetch or decode
//   - mangadex_join_records_skipped_total{reason} (Counter): Records skipped (decode, missing_relationship)
//   - mangadex_join_enrichments_total{kind, status} (Counter): Cover/author lookups by outcome
//   - mangadex_join_incomplete_entities (Gauge): Manga waiting for enrichment
//   - mangadex_join_completed_entities (Gauge): Manga published to the collection
//   - mangadex_join_duplicates_total (Counter): Completed manga discarded as duplicates
//   - mangadex_join_completion_seconds (Histogram): Registration to completion latency
//
// Request Metrics (pkg/client):
//   - mangadex_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - mangadex_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - mangadex_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - mangadex_retries_total{error_class} (Counter): Retry attempts
//   - mangadex_retry_backoff_seconds{error_class} (Histogram): Backoff before each retry
//   - mangadex_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - mangadex_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - mangadex_rate_limit_blocks_total (Counter): Requests refused while the window is exhausted
//   - mangadex_rate_limit_throttles_total (Counter): Requests delayed near exhaustion
//
// Cache Metrics (pkg/cache):
//   - mangadex_cache_hits_total{layer="redis"} (Counter): Cache hits
//   - mangadex_cache_misses_total (Counter): Cache misses
//   - mangadex_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Manga stuck waiting for enrichment
//   mangadex_join_incomplete_entities
//
//   # Enrichment failure rate
//   sum(rate(mangadex_join_enrichments_total{status=~".*_error"}[5m]))
//
//   # Cache hit rate
//   sum(rate(mangadex_cache_hits_total[5m])) /
//   (sum(rate(mangadex_cache_hits_total[5m])) + sum(rate(mangadex_cache_misses_total[5m])))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(mangadex_request_duration_seconds_bucket[5m]))
