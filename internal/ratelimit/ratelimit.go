// Dispatch rate limiting and backoff for upstream services.
//
// DESIGN: Two small pieces shared by the request queue and the retry
// executor:
//   - Window: counts dispatch timestamps in a trailing interval and
//     answers "may I dispatch now?" without consuming anything on deny.
//   - Backoff: turns a consecutive-failure count into a capped
//     exponential delay, with optional multiplicative jitter.
//
// Each upstream queue owns its own Window and Backoff. There is no
// cross-instance or cross-process coordination.
package ratelimit

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Defaults for upstream AI providers. Individual upstreams override
// these through configuration.
const (
	DefaultLimit  = 30
	DefaultWindow = 60 * time.Second
)

// Window tracks dispatch timestamps inside a trailing interval.
// Allow reports whether another dispatch currently fits under the
// limit; it never consumes capacity. Record appends a timestamp.
type Window struct {
	mu    sync.Mutex
	limit int
	span  time.Duration
	sent  []time.Time
	now   func() time.Time
}

// NewWindow creates a limiter that admits at most limit dispatches per
// trailing span. Non-positive arguments fall back to the defaults.
func NewWindow(limit int, span time.Duration) *Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if span <= 0 {
		span = DefaultWindow
	}
	return &Window{limit: limit, span: span, now: time.Now}
}

// Allow reports whether a dispatch may proceed right now.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.sent) < w.limit
}

// Record notes a dispatch at the current time.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)
	w.sent = append(w.sent, now)
}

// Active returns how many dispatches fall inside the current window.
func (w *Window) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.sent)
}

// prune drops timestamps older than the trailing span. Timestamps are
// appended in order, so a single forward scan finds the cut point.
// Caller holds the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.sent) && !w.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.sent = append(w.sent[:0], w.sent[i:]...)
	}
}

// Backoff computes capped exponential delays from a consecutive-failure
// count. Base and Factor are per-upstream configuration; distinct
// providers tolerate different minimum intervals.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff is a reasonable starting point for AI providers.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 60 * time.Second, Factor: 2}
}

// Delay returns min(Base * Factor^n, Max) for n consecutive failures.
// It is non-decreasing in n up to the Max clamp.
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(n))
	if d >= float64(b.Max) || math.IsInf(d, 1) || math.IsNaN(d) {
		return b.Max
	}
	return time.Duration(d)
}

// Jittered returns Delay(n) scaled by a random factor in [0.85, 1.15],
// still clamped to Max. Jitter avoids synchronized retries across
// instances hitting the same upstream.
func (b Backoff) Jittered(n int) time.Duration {
	d := time.Duration(float64(b.Delay(n)) * (0.85 + rand.Float64()*0.3))
	if d > b.Max {
		return b.Max
	}
	return d
}
