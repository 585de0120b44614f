package monitoring

// Alert Tests - latency threshold gate and event-driven flagging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watchFixture wires an AlertManager logging to a file behind a stream
// subscription. The returned collect stops the watcher and returns
// everything logged.
func watchFixture(t *testing.T) (*Stream, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.log")
	logger := New(LoggerConfig{Level: "debug", Format: "json", Output: path})
	am := NewAlertManager(logger, AlertConfig{})

	stream := NewStream(nil)
	ch, cancel := stream.Subscribe()
	done := make(chan struct{})
	go func() {
		am.Watch(ch)
		close(done)
	}()

	collect := func() string {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("watcher did not stop after cancel")
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}
	return stream, collect
}

// TestAlertWatch_FlagsDegradedChecks verifies degradation events reach
// the alert log with their category.
func TestAlertWatch_FlagsDegradedChecks(t *testing.T) {
	stream, collect := watchFixture(t)

	stream.Publish(Event{
		Kind:        EventDegraded,
		Fingerprint: "fp9",
		Category:    "rate_limit",
		Detail:      "upstream kept answering 429",
	})

	out := collect()
	assert.Contains(t, out, "check_degraded")
	assert.Contains(t, out, "fp9")
	assert.Contains(t, out, "rate_limit")
}

// TestAlertWatch_IgnoresLocalWindowStalls verifies routine local pacing
// stays out of the alert log while upstream 429 pushback is flagged.
func TestAlertWatch_IgnoresLocalWindowStalls(t *testing.T) {
	stream, collect := watchFixture(t)

	stream.Publish(Event{Kind: EventRateLimitStall, Upstream: "anthropic", WaitMS: 1000, Detail: "window"})
	stream.Publish(Event{Kind: EventRateLimitStall, Upstream: "anthropic", WaitMS: 2000, Detail: "upstream"})

	out := collect()
	assert.Equal(t, 1, strings.Count(out, "upstream_rate_limited"))
}

// TestAlertWatch_FlagsProviderErrors verifies collaborator failures are
// flagged with their upstream name.
func TestAlertWatch_FlagsProviderErrors(t *testing.T) {
	stream, collect := watchFixture(t)

	stream.Publish(Event{Kind: EventProviderError, Upstream: "search", Detail: "timeout"})

	out := collect()
	assert.Contains(t, out, "provider_error")
	assert.Contains(t, out, "search")
}

// TestFlagHighLatency_ThresholdGate verifies only requests above the
// threshold are logged.
func TestFlagHighLatency_ThresholdGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	logger := New(LoggerConfig{Level: "debug", Format: "json", Output: path})
	am := NewAlertManager(logger, AlertConfig{HighLatencyThreshold: time.Second})

	am.FlagHighLatency("fast-request", 500*time.Millisecond, "/v1/check")
	am.FlagHighLatency("slow-request", 2*time.Second, "/v1/check")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "fast-request")
	assert.Contains(t, string(data), "slow-request")
}
