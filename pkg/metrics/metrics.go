// Package metrics provides the centralized Prometheus metrics reference for
// the search aggregation service. All metrics are defined in their
// respective packages (provider, aggregate, session, paginate, quota) to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Upstream Metrics (pkg/provider):
//   - searchagg_upstream_requests_total{status} (Counter): Upstream calls by HTTP status
//   - searchagg_upstream_request_duration_seconds (Histogram): Upstream call duration
//   - searchagg_upstream_errors_total{kind} (Counter): Failures by taxonomy kind
//   - searchagg_upstream_retries_total{kind} (Counter): Retry attempts by kind
//   - searchagg_upstream_retry_backoff_seconds{kind} (Histogram): Backoff duration by kind
//   - searchagg_upstream_retry_exhausted_total{kind} (Counter): Calls that exhausted retries
//
// Aggregation Metrics (pkg/aggregate):
//   - searchagg_aggregation_passes_total{outcome} (Counter): Passes by outcome
//     (satisfied, exhausted, failed, noop)
//   - searchagg_duplicates_filtered_total (Counter): Results dropped by link dedup
//
// Session Metrics (pkg/session):
//   - searchagg_sessions_active (Gauge): Sessions currently held by the store
//   - searchagg_sessions_created_total (Counter): Sessions created
//   - searchagg_session_evictions_total{reason} (Counter): Evictions (ttl, capacity)
//
// Pagination Metrics (pkg/paginate):
//   - searchagg_pagination_requests_total{operation, status} (Counter):
//     Facade calls by operation (offset, next) and status (ok, error, not_found)
//
// Quota Metrics (pkg/quota):
//   - searchagg_quota_remaining (Gauge): Calls remaining in the current quota day
//   - searchagg_quota_blocks_total (Counter): Calls blocked by the tracker
//   - searchagg_quota_throttles_total (Counter): Calls throttled on low budget
//   - searchagg_quota_cooldowns_total (Counter): Cooldowns entered after upstream 429s
//
// Example Prometheus Queries:
//
//   # Upstream error rate
//   rate(searchagg_upstream_errors_total[5m])
//
//   # Dedup ratio (filtered vs. fetched)
//   rate(searchagg_duplicates_filtered_total[5m]) /
//   rate(searchagg_upstream_requests_total[5m])
//
//   # Quota burn-down
//   searchagg_quota_remaining
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(searchagg_upstream_request_duration_seconds_bucket[5m]))
//
//   # Session churn
//   rate(searchagg_session_evictions_total[5m])
