// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:   Warn when a check exceeds the threshold
//   - FlagProviderError: Warn on upstream failures
//   - FlagRateLimited:   Warn when an upstream pushes back with 429
//   - FlagDegraded:      Warn when a check falls back or fails over
//   - FlagPanic:         Error on recovered panics
//
// HTTP-side flags are called directly by the server middleware;
// pipeline-side flags are driven by Watch consuming the event stream.
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 15 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds the threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, path string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("path", path).
		Msg("high_latency")
}

// FlagProviderError logs an upstream provider failure.
func (am *AlertManager) FlagProviderError(upstream, detail string) {
	am.logger.Warn().
		Str("upstream", upstream).
		Str("error", detail).
		Msg("provider_error")
}

// FlagRateLimited logs an upstream 429 and the wait it imposed.
func (am *AlertManager) FlagRateLimited(upstream string, wait time.Duration) {
	am.logger.Warn().
		Str("upstream", upstream).
		Dur("wait", wait).
		Msg("upstream_rate_limited")
}

// FlagDegraded logs a check that completed through a fallback path.
func (am *AlertManager) FlagDegraded(fingerprint, category, message string) {
	am.logger.Warn().
		Str("fingerprint", fingerprint).
		Str("category", category).
		Str("message", message).
		Msg("check_degraded")
}

// FlagInvalidRequest logs a request rejected before orchestration.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs a recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}

// Watch flags alarming events from the stream until the channel
// closes. Run it on its own goroutine; cancelling the subscription
// ends it. Local window stalls are routine pacing and stay unflagged.
func (am *AlertManager) Watch(events <-chan Event) {
	for ev := range events {
		switch ev.Kind {
		case EventRateLimitStall:
			if ev.Detail == "upstream" {
				am.FlagRateLimited(ev.Upstream, time.Duration(ev.WaitMS)*time.Millisecond)
			}
		case EventProviderError:
			am.FlagProviderError(ev.Upstream, ev.Detail)
		case EventDegraded:
			am.FlagDegraded(ev.Fingerprint, ev.Category, ev.Detail)
		}
	}
}
