// Per-upstream FIFO dispatch queue.
//
// DESIGN: One Queue per upstream service (each AI provider, the search
// backend). Do enqueues the call and blocks until the drain goroutine
// has settled it. The drain loop, while the queue is non-empty:
//  1. Stalls while the local rate window is full (short pause, no
//     backoff step consumed)
//  2. Sleeps the backoff delay before dispatch when the queue carries
//     consecutive failures
//  3. Pops the head, records the dispatch, runs the call
//  4. Success resets the failure counter
//  5. An upstream 429 re-inserts the request at the HEAD, bumps the
//     counter, and sleeps Retry-After (or twice the backoff delay)
//     without failing the request
//  6. Any other failure fails that request and bumps the counter
//
// The draining flag is re-checked under the lock before the goroutine
// exits, so requests arriving during the final iteration restart
// draining instead of stranding.
package queue

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/verascope/verascope/external"
	"github.com/verascope/verascope/internal/monitoring"
	"github.com/verascope/verascope/internal/ratelimit"
)

// defaultStall is how long the drain loop pauses when the local rate
// window is full before rechecking.
const defaultStall = time.Second

// Options configures a Queue.
type Options struct {
	// Limit and Window bound dispatches per trailing window.
	// Zero values use the ratelimit defaults.
	Limit  int
	Window time.Duration

	// Backoff paces redispatch after failures. Zero value uses
	// ratelimit.DefaultBackoff().
	Backoff ratelimit.Backoff

	// Metrics and Events are optional observability sinks.
	Metrics *monitoring.MetricsCollector
	Events  *monitoring.Stream
}

// Queue serializes calls to one upstream service, enforcing its rate
// window and backoff pacing. The zero value is not usable; use New.
type Queue[T any] struct {
	name    string
	window  *ratelimit.Window
	backoff ratelimit.Backoff
	metrics *monitoring.MetricsCollector
	events  *monitoring.Stream
	stall   time.Duration

	mu       sync.Mutex
	items    []*item[T]
	draining bool
	failures int
}

type item[T any] struct {
	id       string
	ctx      context.Context
	call     func(context.Context) (T, error)
	enqueued time.Time
	reply    chan outcome[T]
}

type outcome[T any] struct {
	val T
	err error
}

// New creates a queue for the named upstream.
func New[T any](name string, opts Options) *Queue[T] {
	b := opts.Backoff
	if b == (ratelimit.Backoff{}) {
		b = ratelimit.DefaultBackoff()
	}
	return &Queue[T]{
		name:    name,
		window:  ratelimit.NewWindow(opts.Limit, opts.Window),
		backoff: b,
		metrics: opts.Metrics,
		events:  opts.Events,
		stall:   defaultStall,
	}
}

// Do enqueues call and blocks until it settles or ctx is cancelled.
// Dispatch order is FIFO per queue, except that a 429 puts the
// interrupted request back at the head ahead of later arrivals.
func (q *Queue[T]) Do(ctx context.Context, call func(context.Context) (T, error)) (T, error) {
	it := &item[T]{
		id:       uuid.New().String(),
		ctx:      ctx,
		call:     call,
		enqueued: time.Now(),
		reply:    make(chan outcome[T], 1),
	}

	q.mu.Lock()
	q.items = append(q.items, it)
	depth := len(q.items)
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	log.Debug().
		Str("queue", q.name).
		Str("request_id", it.id).
		Int("depth", depth).
		Msg("enqueued")

	if start {
		go q.drain()
	}

	select {
	case out := <-it.reply:
		return out.val, out.err
	case <-ctx.Done():
		// The item stays queued; the drain loop discards it at the
		// head once it sees the dead context.
		var zero T
		return zero, ctx.Err()
	}
}

// Depth returns the number of queued requests.
func (q *Queue[T]) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Failures returns the consecutive-failure count shared by the queue.
func (q *Queue[T]) Failures() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failures
}

func (q *Queue[T]) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		failures := q.failures
		q.mu.Unlock()

		// Abandoned while queued: discard without dispatching.
		if err := it.ctx.Err(); err != nil {
			q.popHead()
			it.reply <- outcome[T]{err: err}
			continue
		}

		// Step 1: local window full.
		if !q.window.Allow() {
			if q.metrics != nil {
				q.metrics.RecordRateLimitStall()
			}
			q.events.Publish(monitoring.Event{
				Kind:     monitoring.EventRateLimitStall,
				Upstream: q.name,
				WaitMS:   q.stall.Milliseconds(),
				Detail:   "window",
			})
			log.Debug().Str("queue", q.name).Msg("rate window full, stalling")
			time.Sleep(q.stall)
			continue
		}

		// Step 2: pace redispatch after failures.
		if failures > 0 {
			time.Sleep(q.backoff.Delay(failures))
		}

		// Step 3: dispatch.
		q.popHead()
		q.window.Record()
		if q.metrics != nil {
			q.metrics.RecordDispatch()
		}

		val, err := it.call(it.ctx)
		if err == nil {
			q.setFailures(0)
			it.reply <- outcome[T]{val: val}
			continue
		}

		if external.StatusOf(err) == http.StatusTooManyRequests {
			failures = q.reinsertHead(it)
			wait := 2 * q.backoff.Delay(failures)
			if ra, ok := external.RetryAfterOf(err); ok {
				wait = ra
			}
			log.Warn().
				Str("queue", q.name).
				Str("request_id", it.id).
				Int("failures", failures).
				Dur("wait", wait).
				Msg("upstream rate limited, requeued at head")
			q.events.Publish(monitoring.Event{
				Kind:     monitoring.EventRateLimitStall,
				Upstream: q.name,
				WaitMS:   wait.Milliseconds(),
				Detail:   "upstream",
			})
			time.Sleep(wait)
			continue
		}

		q.bumpFailures()
		if q.metrics != nil {
			q.metrics.RecordProviderError()
		}
		log.Warn().
			Str("queue", q.name).
			Str("request_id", it.id).
			Err(err).
			Msg("dispatch failed")
		it.reply <- outcome[T]{err: err}
	}
}

func (q *Queue[T]) popHead() {
	q.mu.Lock()
	q.items = q.items[1:]
	q.mu.Unlock()
}

// reinsertHead puts it back at the front, bumps the failure counter,
// and returns the new count.
func (q *Queue[T]) reinsertHead(it *item[T]) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*item[T]{it}, q.items...)
	q.failures++
	return q.failures
}

func (q *Queue[T]) bumpFailures() {
	q.mu.Lock()
	q.failures++
	q.mu.Unlock()
}

func (q *Queue[T]) setFailures(n int) {
	q.mu.Lock()
	q.failures = n
	q.mu.Unlock()
}
