// Package monitoring - events.go fans orchestration events out to
// subscribers.
//
// DESIGN: Stream is a small in-memory pub/sub feeding the live events
// endpoint and the telemetry tracker. Publish never blocks: a
// subscriber whose buffer is full misses that event. Slow websocket
// readers therefore cannot back-pressure the orchestration pipeline.
package monitoring

import (
	"sync"
	"time"
)

// subscriberBuffer bounds the per-subscriber event backlog.
const subscriberBuffer = 64

// Stream distributes orchestration events to subscribers.
type Stream struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	tracker *Tracker
}

// NewStream creates an event stream. The tracker may be nil.
func NewStream(tracker *Tracker) *Stream {
	return &Stream{subs: make(map[int]chan Event), tracker: tracker}
}

// Publish sends an event to every subscriber and the telemetry log.
// Safe to call on a nil stream.
func (s *Stream) Publish(ev Event) {
	if s == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.tracker.Record(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. Cancel closes the channel and is safe to call twice.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Subscribers returns the current subscriber count.
func (s *Stream) Subscribers() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
