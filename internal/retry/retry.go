// Generic retry with jittered exponential backoff.
//
// DESIGN: Do reruns an operation under a Policy: bounded attempts, a
// jittered exponential delay between them, an optional ShouldRetry
// filter, and an OnRetry hook for observability. A server-provided
// Retry-After acts as a floor on the computed delay.
//
// Do is upstream-agnostic and composes around queue dispatch, so a
// call gets two independent resilience layers: the queue absorbs 429
// pacing for everyone behind it, Do absorbs transient failures of the
// one call it wraps.
package retry

import (
	"context"
	"time"

	"github.com/verascope/verascope/external"
	"github.com/verascope/verascope/internal/ratelimit"
)

// Policy controls Do. The zero value gets sensible defaults.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// ShouldRetry filters errors; nil retries everything.
	ShouldRetry func(error) bool

	// OnRetry observes each retry decision before the sleep.
	// attempt counts from 1.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultPolicy matches the pacing most AI providers tolerate.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// Do runs op, retrying per the policy. It returns nil on the first
// success, the last error once attempts are exhausted or filtered out,
// and the context error if ctx dies first.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	backoff := ratelimit.Backoff{Base: p.InitialDelay, Max: p.MaxDelay, Factor: p.Multiplier}

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return err
		}

		delay := backoff.Jittered(attempt)
		if ra, ok := external.RetryAfterOf(err); ok && ra > delay {
			delay = ra
		}
		if p.OnRetry != nil {
			p.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
