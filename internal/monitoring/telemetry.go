// Package monitoring - telemetry.go records events to a JSONL file.
//
// DESIGN: Tracker appends every orchestration Event as one JSON object
// per line, immediately after it happens, so the file tails cleanly
// while the process runs.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to a JSONL file.
type Tracker struct {
	config  TelemetryConfig
	logPath string
	count   int
	mu      sync.Mutex
}

// NewTracker creates a telemetry tracker. When telemetry is disabled
// the tracker exists but records nothing.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	t.logPath = filepath.Join(dir, "events.jsonl")

	// Create an empty file up front so tail -f works from the start.
	if _, err := os.Stat(t.logPath); os.IsNotExist(err) {
		if f, err := os.Create(t.logPath); err == nil {
			f.Close()
		}
	}
	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// Record appends one event to the log file.
func (t *Tracker) Record(ev Event) {
	if t == nil || !t.config.Enabled || t.logPath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.logPath, ev); err != nil {
		log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write event")
	} else {
		t.count++
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.count > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("events", t.count).
			Msg("telemetry: session complete")
	}
	return nil
}
