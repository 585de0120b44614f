// Package server exposes the evaluation pipeline over HTTP.
//
// DESIGN: Thin JSON API in front of the checker:
//   - POST /v1/check   run an evaluation, respond with the verdict
//   - GET  /healthz    liveness probe
//   - GET  /v1/stats   metrics snapshot
//   - GET  /v1/events  live orchestration events over websocket
//
// The checker already degrades every pipeline failure into a verdict,
// so handleCheck maps success and degradation alike to 200; non-200
// answers mean the request itself was bad, not that the check failed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/verascope/verascope/internal/checker"
	"github.com/verascope/verascope/internal/config"
	"github.com/verascope/verascope/internal/model"
	"github.com/verascope/verascope/internal/monitoring"
)

// eventWriteTimeout bounds one websocket event write; a subscriber
// slower than this gets disconnected rather than buffered forever.
const eventWriteTimeout = 5 * time.Second

// Options wires a Server. Checker is required.
type Options struct {
	Config  config.ServerConfig
	Checker *checker.Checker
	Metrics *monitoring.MetricsCollector
	Events  *monitoring.Stream
	Logger  *monitoring.Logger
	Alerts  *monitoring.AlertManager
}

// Server is the HTTP front of the service.
type Server struct {
	cfg      config.ServerConfig
	checker  *checker.Checker
	metrics  *monitoring.MetricsCollector
	events   *monitoring.Stream
	alerts   *monitoring.AlertManager
	requests *monitoring.RequestLogger
	limiter  *clientLimiter
	http     *http.Server
}

// New creates a Server listening on the configured port.
func New(opts Options) (*Server, error) {
	if opts.Checker == nil {
		return nil, errors.New("server: checker required")
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetricsCollector()
	}
	if opts.Logger == nil {
		opts.Logger = monitoring.New(monitoring.LoggerConfig{Level: "info"})
	}
	if opts.Alerts == nil {
		opts.Alerts = monitoring.NewAlertManager(opts.Logger, monitoring.AlertConfig{})
	}

	s := &Server{
		cfg:      opts.Config,
		checker:  opts.Checker,
		metrics:  opts.Metrics,
		events:   opts.Events,
		alerts:   opts.Alerts,
		requests: monitoring.NewRequestLogger(opts.Logger),
		limiter:  newClientLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst),
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Config.Port),
		Handler:      s.panicRecovery(s.rateLimit(s.logging(s.routes()))),
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	return mux
}

// Handler returns the complete middleware-wrapped handler. Exposed for
// tests that drive the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// checkRequest is the POST /v1/check body.
type checkRequest struct {
	Text    string `json:"text"`
	Urgency string `json:"urgency,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	requestID := monitoring.RequestIDFromContext(r.Context())

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.alerts.FlagInvalidRequest(requestID, "body too large")
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.alerts.FlagInvalidRequest(requestID, "invalid JSON body")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		s.alerts.FlagInvalidRequest(requestID, "empty text")
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	urgency, err := model.ParseUrgency(req.Urgency)
	if err != nil {
		s.alerts.FlagInvalidRequest(requestID, err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	verdict, err := s.checker.Check(r.Context(), checker.Request{Text: req.Text, Urgency: urgency})
	if err != nil {
		// Check only errors on empty text or a dead caller context.
		if r.Context().Err() != nil {
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := make(map[string]int64, 12)
	for k, v := range s.metrics.Stats() {
		stats[k] = v
	}
	stats["pending_checks"] = int64(s.checker.Pending())
	stats["event_subscribers"] = int64(s.events.Subscribers())
	writeJSON(w, http.StatusOK, stats)
}

// handleEvents streams orchestration events to a websocket client.
// Write-only: client frames are drained and discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	events, cancel := s.events.Subscribe()
	defer cancel()

	// CloseRead ends the context when the client goes away.
	ctx := conn.CloseRead(r.Context())
	log.Debug().Int("subscribers", s.events.Subscribers()).Msg("event subscriber connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
