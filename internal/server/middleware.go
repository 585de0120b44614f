// HTTP middleware for recovery, rate limiting, and request logging.
//
// DESIGN: Middleware chain (applied in order):
//  1. panicRecovery:  Catch panics, return 500, log stack trace
//  2. rateLimit:      Per-IP token bucket rate limiting
//  3. logging:        Request IDs, request/response timing, latency alert
package server

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/verascope/verascope/internal/monitoring"
)

// HeaderRequestID carries the request ID on requests and responses.
const HeaderRequestID = "X-Request-ID"

// maxClientBuckets caps limiter state so hostile traffic cannot grow
// the bucket map without bound.
const maxClientBuckets = 10000

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing it.
func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush delegates to the underlying ResponseWriter so streaming
// responses keep working through the wrapper.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// clientLimiter implements a token bucket per client IP. This is the
// inbound guard for this service's own API; pacing toward upstream
// providers lives in the dispatch queues.
type clientLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       int
	burst      int
	maxBuckets int
}

// bucket holds rate limiting state for a single IP.
type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// newClientLimiter creates a limiter refilling rate tokens per second
// up to burst, and starts the stale-bucket cleanup goroutine.
func newClientLimiter(rate, burst int) *clientLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst < rate {
		burst = rate
	}
	cl := &clientLimiter{
		buckets:    make(map[string]*bucket),
		rate:       rate,
		burst:      burst,
		maxBuckets: maxClientBuckets,
	}
	go cl.cleanup()
	return cl
}

// allow checks if the given IP may make a request now.
func (cl *clientLimiter) allow(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	b, exists := cl.buckets[ip]
	if !exists {
		if len(cl.buckets) >= cl.maxBuckets {
			cl.evictOldest()
		}
		cl.buckets[ip] = &bucket{tokens: float64(cl.burst) - 1, lastCheck: now}
		return true
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.tokens += elapsed * float64(cl.rate)
	if b.tokens > float64(cl.burst) {
		b.tokens = float64(cl.burst)
	}
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// evictOldest removes the least recently seen bucket (lock held).
func (cl *clientLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, b := range cl.buckets {
		if first || b.lastCheck.Before(oldestTime) {
			oldestKey = k
			oldestTime = b.lastCheck
			first = false
		}
	}
	if oldestKey != "" {
		delete(cl.buckets, oldestKey)
	}
}

// cleanup periodically removes stale buckets.
func (cl *clientLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for ip, b := range cl.buckets {
			if b.lastCheck.Before(cutoff) {
				delete(cl.buckets, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// logging tags each request with an ID, logs the request/response pair
// with timing, and flags slow responses.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		// Request ID rides the context for downstream logging.
		ctx := monitoring.WithRequestIDContext(r.Context(), requestID)
		r = r.WithContext(ctx)

		bodySize := int(r.ContentLength)
		if bodySize < 0 {
			bodySize = 0
		}
		s.requests.LogIncoming(monitoring.NewRequestInfo(r, requestID, bodySize))

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		latency := time.Since(start)
		s.requests.LogResponse(&monitoring.ResponseInfo{
			RequestID:  requestID,
			StatusCode: wrapped.status,
			Latency:    latency,
		})
		s.alerts.FlagHighLatency(requestID, latency, r.URL.Path)

		log.Info().
			Str("id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", latency).
			Msg("request")
	})
}

// panicRecovery recovers from handler panics and returns a 500.
func (s *Server) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())
				requestID := monitoring.RequestIDFromContext(r.Context())

				log.Error().Interface("panic", err).Str("stack", stack).Msg("panic")
				s.alerts.FlagPanic(requestID, err, stack)

				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit enforces the per-IP token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			log.Warn().Str("ip", ip).Msg("client rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client IP address from the request. Forwarding
// headers are trusted only when the direct peer is localhost (reverse
// proxy deployments).
func clientIP(r *http.Request) string {
	if remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr); remoteIP == "127.0.0.1" || remoteIP == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
