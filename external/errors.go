// Structured errors for the provider boundary.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// CallError is the structured failure produced for any non-2xx provider
// answer. Status carries the HTTP status code (0 when the failure never
// reached HTTP), Code the provider's machine-readable error type when
// one was present, and RetryAfter any server-requested wait.
type CallError struct {
	Provider   string
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *CallError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s upstream returned status %d: %s", e.Provider, e.Status, msg)
	}
	return fmt.Sprintf("%s upstream: %s", e.Provider, msg)
}

// StatusOf returns the HTTP status carried by err, or 0 when err does
// not wrap a *CallError.
func StatusOf(err error) int {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

// RetryAfterOf returns the server-requested wait carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var ce *CallError
	if errors.As(err, &ce) && ce.RetryAfter > 0 {
		return ce.RetryAfter, true
	}
	return 0, false
}

// ReadError builds a *CallError from a non-2xx response. Provider error
// bodies differ in shape but converge on a nested "error" object; the
// lookup falls through the known field paths and keeps a truncated raw
// body when nothing matches.
func ReadError(provider string, resp *http.Response, body []byte) *CallError {
	ce := &CallError{Provider: provider, Status: resp.StatusCode}

	for _, path := range []string{"error.message", "error.status", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			ce.Message = v.String()
			break
		}
	}
	for _, path := range []string{"error.type", "error.code", "error.status"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			ce.Code = v.String()
			break
		}
	}
	if ce.Message == "" {
		raw := strings.TrimSpace(string(body))
		if len(raw) > maxErrorBodyLen {
			raw = raw[:maxErrorBodyLen] + "... (truncated)"
		}
		ce.Message = raw
	}

	if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
		ce.RetryAfter = ra
	}
	return ce
}

// parseRetryAfter handles both forms of the Retry-After header:
// delta-seconds and an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
