package server

// HTTP API Tests - check endpoint, middleware chain, websocket events
//
// The checker behind the server runs against a scripted adapter, so
// handlers are exercised end to end without real providers.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verascope/verascope/internal/checker"
	"github.com/verascope/verascope/internal/config"
	"github.com/verascope/verascope/internal/model"
	"github.com/verascope/verascope/internal/monitoring"
	"github.com/verascope/verascope/internal/providers"
	"github.com/verascope/verascope/internal/ratelimit"
	"github.com/verascope/verascope/internal/retry"
)

type scriptedAdapter struct {
	mu    sync.Mutex
	calls int
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) ModelFor(tier model.Tier) string {
	return "scripted-" + tier.String()
}

func (a *scriptedAdapter) Call(_ context.Context, req providers.Request) (*providers.Response, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if req.Tier == model.TierExtraction {
		return &providers.Response{Content: "test query", Model: "scripted-extraction", Provider: "scripted"}, nil
	}
	return &providers.Response{
		Content:  "Rating: 72/100\nVerdict: plausible.",
		Model:    a.ModelFor(req.Tier),
		Provider: "scripted",
	}, nil
}

func testServer(t *testing.T, events *monitoring.Stream) *Server {
	t.Helper()

	c, err := checker.New(checker.Options{
		Adapter:     &scriptedAdapter{},
		Events:      events,
		QueueLimit:  100,
		QueueWindow: time.Second,
		Backoff:     ratelimit.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2},
		Retry:       retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)

	s, err := New(Options{
		Config: config.ServerConfig{
			Port:           8080,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			RateLimitRPS:   100,
			RateLimitBurst: 100,
			MaxBodyBytes:   1 << 16,
		},
		Checker: c,
		Events:  events,
		Logger:  monitoring.New(monitoring.LoggerConfig{Level: "error", Output: "stderr"}),
	})
	require.NoError(t, err)
	return s
}

func postCheck(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHandleCheck_ReturnsVerdict verifies the happy path end to end.
func TestHandleCheck_ReturnsVerdict(t *testing.T) {
	s := testServer(t, nil)

	rec := postCheck(t, s.Handler(), `{"text":"The harbor bridge opened in 1932."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	var v checker.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.NotNil(t, v.Rating)
	assert.Equal(t, 72, *v.Rating)
	assert.Equal(t, checker.ConfidenceLow, v.Confidence)
	assert.False(t, v.Degraded)
}

// TestHandleCheck_BadRequests verifies input validation status codes.
func TestHandleCheck_BadRequests(t *testing.T) {
	s := testServer(t, nil)
	h := s.Handler()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"text": `},
		{"missing text", `{}`},
		{"blank urgency value", `{"text":"x","urgency":"yesterday"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postCheck(t, h, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var out map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.NotEmpty(t, out["error"])
		})
	}
}

// TestHandleCheck_BodyTooLarge verifies the MaxBodyBytes guard.
func TestHandleCheck_BodyTooLarge(t *testing.T) {
	s := testServer(t, nil)

	huge := `{"text":"` + strings.Repeat("a", 1<<17) + `"}`
	rec := postCheck(t, s.Handler(), huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// TestHandleCheck_MethodNotAllowed verifies GET on the check path is
// rejected by the mux method pattern.
func TestHandleCheck_MethodNotAllowed(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/check", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestHandleHealthz verifies the liveness probe.
func TestHandleHealthz(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
}

// TestHandleStats verifies the metrics snapshot includes checker
// counters and registry gauges.
func TestHandleStats(t *testing.T) {
	s := testServer(t, nil)
	h := s.Handler()

	rec := postCheck(t, h, `{"text":"A short claim."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	statsRec := httptest.NewRecorder()
	h.ServeHTTP(statsRec, req)
	require.Equal(t, http.StatusOK, statsRec.Code)

	var stats map[string]int64
	require.NoError(t, json.Unmarshal(statsRec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats["checks"])
	assert.Contains(t, stats, "pending_checks")
	assert.Contains(t, stats, "event_subscribers")
}

// TestRateLimit_429AfterBurst verifies the per-IP bucket rejects the
// request after the burst is spent, with a Retry-After hint.
func TestRateLimit_429AfterBurst(t *testing.T) {
	cl := newClientLimiter(1, 2)

	assert.True(t, cl.allow("10.0.0.1"))
	assert.True(t, cl.allow("10.0.0.1"))
	assert.False(t, cl.allow("10.0.0.1"), "third call inside one second must be limited")
	assert.True(t, cl.allow("10.0.0.2"), "buckets are per IP")
}

// TestRateLimit_MiddlewareResponse verifies the 429 wire shape.
func TestRateLimit_MiddlewareResponse(t *testing.T) {
	s := testServer(t, nil)
	s.limiter = newClientLimiter(1, 1)
	h := s.panicRecovery(s.rateLimit(s.logging(s.routes())))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

// TestPanicRecovery verifies a handler panic becomes a 500 with a JSON
// error instead of tearing down the connection.
func TestPanicRecovery(t *testing.T) {
	s := testServer(t, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})
	h := s.panicRecovery(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "internal error", out["error"])
}

// TestRequestID_Propagated verifies a caller-supplied request ID is
// echoed back.
func TestRequestID_Propagated(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "caller-chosen-id")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "caller-chosen-id", rec.Header().Get(HeaderRequestID))
}

// TestHandleEvents_StreamsOverWebsocket verifies a subscriber receives
// published orchestration events as JSON frames.
func TestHandleEvents_StreamsOverWebsocket(t *testing.T) {
	stream := monitoring.NewStream(nil)
	s := testServer(t, stream)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.URL+"/v1/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The subscription is registered before Accept returns, but give
	// the handler goroutine a beat before publishing.
	require.Eventually(t, func() bool { return stream.Subscribers() == 1 },
		time.Second, 5*time.Millisecond)

	stream.Publish(monitoring.Event{
		Kind:     monitoring.EventRetry,
		Upstream: "anthropic",
		Attempt:  2,
	})

	var ev monitoring.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, monitoring.EventRetry, ev.Kind)
	assert.Equal(t, "anthropic", ev.Upstream)
	assert.Equal(t, 2, ev.Attempt)

	conn.Close(websocket.StatusNormalClosure, "")
}

// TestClientIP_ForwardingTrust verifies X-Forwarded-For is honored only
// from localhost peers.
func TestClientIP_ForwardingTrust(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.RemoteAddr = "198.51.100.2:9999"
	assert.Equal(t, "198.51.100.2", clientIP(req), "forwarding headers from non-local peers are ignored")
}
