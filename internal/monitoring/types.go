// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the checker, server, and monitoring
// packages. Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Event:        One orchestration event, published on the Stream
//   - Config types: LoggerConfig, AlertConfig, TelemetryConfig
package monitoring

import "time"

// EventKind identifies what happened inside the orchestration pipeline.
type EventKind string

const (
	EventCheckStarted   EventKind = "check_started"
	EventCheckCompleted EventKind = "check_completed"
	EventCacheHit       EventKind = "cache_hit"
	EventRetry          EventKind = "retry"
	EventRateLimitStall EventKind = "rate_limit_stall"
	EventProviderError  EventKind = "provider_error"
	EventDegraded       EventKind = "degraded"
)

// Event is one orchestration event, published on the Stream and
// mirrored to the telemetry log when enabled.
type Event struct {
	Time        time.Time `json:"time"`
	Kind        EventKind `json:"kind"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Upstream    string    `json:"upstream,omitempty"`
	Model       string    `json:"model,omitempty"`
	Rating      *int      `json:"rating,omitempty"`
	Confidence  string    `json:"confidence,omitempty"`
	Category    string    `json:"category,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	WaitMS      int64     `json:"wait_ms,omitempty"`
	ElapsedMS   int64     `json:"elapsed_ms,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr, or a file path
}

// AlertConfig configures anomaly flagging.
type AlertConfig struct {
	HighLatencyThreshold time.Duration
}

// TelemetryConfig configures the JSONL event log.
type TelemetryConfig struct {
	Enabled bool
	Dir     string
}
