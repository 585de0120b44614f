// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - checks/degraded:    Completed evaluations and how many fell back
//   - cache_hits/misses:  Response cache performance
//   - dispatches:         Upstream calls actually sent
//   - retries/stalls:     Resilience machinery activity
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	checks         atomic.Int64
	degraded       atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	dispatches     atomic.Int64
	retries        atomic.Int64
	stalls         atomic.Int64
	providerErrors atomic.Int64
	dedupHits      atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordCheck records one completed evaluation.
func (mc *MetricsCollector) RecordCheck(degraded bool, _ time.Duration) {
	mc.checks.Add(1)
	if degraded {
		mc.degraded.Add(1)
	}
}

// RecordCacheHit records a response cache hit.
func (mc *MetricsCollector) RecordCacheHit() { mc.cacheHits.Add(1) }

// RecordCacheMiss records a response cache miss.
func (mc *MetricsCollector) RecordCacheMiss() { mc.cacheMisses.Add(1) }

// RecordDispatch records an upstream call leaving the queue.
func (mc *MetricsCollector) RecordDispatch() { mc.dispatches.Add(1) }

// RecordRetry records one retry attempt.
func (mc *MetricsCollector) RecordRetry() { mc.retries.Add(1) }

// RecordRateLimitStall records a drain pause forced by the local limiter.
func (mc *MetricsCollector) RecordRateLimitStall() { mc.stalls.Add(1) }

// RecordProviderError records an upstream failure.
func (mc *MetricsCollector) RecordProviderError() { mc.providerErrors.Add(1) }

// RecordDedupHit records a caller joining an in-flight identical check.
func (mc *MetricsCollector) RecordDedupHit() { mc.dedupHits.Add(1) }

// Stats returns a snapshot of all counters.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"checks":            mc.checks.Load(),
		"checks_degraded":   mc.degraded.Load(),
		"cache_hits":        mc.cacheHits.Load(),
		"cache_misses":      mc.cacheMisses.Load(),
		"dispatches":        mc.dispatches.Load(),
		"retries":           mc.retries.Load(),
		"rate_limit_stalls": mc.stalls.Load(),
		"provider_errors":   mc.providerErrors.Load(),
		"dedup_hits":        mc.dedupHits.Load(),
	}
}
