package config

// Tests for config loading: defaults layering, ${VAR} expansion, env
// overrides, and validation errors.

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearProviderEnv blanks every env var applyEnvOverrides reads so a
// developer's real keys cannot leak into assertions.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "BRAVE_API_KEY",
		"VERASCOPE_PROVIDER", "VERASCOPE_CACHE_PATH", "VERASCOPE_TELEMETRY_DIR",
	} {
		t.Setenv(v, "")
	}
}

func TestDefault_Validates(t *testing.T) {
	clearProviderEnv(t)

	cfg := Default()
	cfg.Providers.Anthropic = &AnthropicProvider{APIKey: "key"}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Upstream.WindowLimit)
	assert.Equal(t, time.Minute, cfg.Upstream.Window)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadFromBytes_DefaultsSurvivePartialYAML(t *testing.T) {
	clearProviderEnv(t)

	yml := `
server:
  port: 9090
providers:
  default: ollama
  ollama: {}
`
	cfg, err := LoadFromBytes([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	// Fields absent from the YAML keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 200, cfg.Cache.MaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 1024, cfg.Checker.AnswerTokens)
	assert.Equal(t, "info", cfg.Monitoring.LogLevel)

	assert.Equal(t, "ollama", cfg.Providers.Default)
	require.NotNil(t, cfg.Providers.Ollama)
}

func TestLoadFromBytes_ParsesDurationsAndSections(t *testing.T) {
	clearProviderEnv(t)

	yml := `
server:
  port: 8081
  read_timeout: 5s
  write_timeout: 90s
providers:
  default: anthropic
  anthropic:
    api_key: sk-test
    timeout: 45s
    models:
      standard: claude-sonnet-4-5
search:
  enabled: true
  api_key: brave-test
  max_results: 3
upstream:
  window_limit: 10
  window: 30s
cache:
  ttl: 1h
checker:
  multi_model: true
  probe_count: 2
`
	cfg, err := LoadFromBytes([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
	require.NotNil(t, cfg.Providers.Anthropic)
	assert.Equal(t, "sk-test", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Providers.Anthropic.Timeout)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Providers.Anthropic.Models.Standard)
	assert.True(t, cfg.Search.Enabled)
	assert.Equal(t, 3, cfg.Search.MaxResults)
	assert.Equal(t, 10, cfg.Upstream.WindowLimit)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Window)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Checker.MultiModel)
	assert.Equal(t, 2, cfg.Checker.ProbeCount)
}

func TestLoadFromBytes_ExpandsEnvVars(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("TEST_VERASCOPE_KEY", "from-env")

	yml := `
providers:
  default: anthropic
  anthropic:
    api_key: ${TEST_VERASCOPE_KEY}
`
	cfg, err := LoadFromBytes([]byte(yml))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Providers.Anthropic.APIKey)
}

func TestExpandEnvWithDefaults(t *testing.T) {
	t.Setenv("TEST_VERASCOPE_SET", "value")
	t.Setenv("TEST_VERASCOPE_EMPTY", "")

	assert.Equal(t, "value", expandEnvWithDefaults("${TEST_VERASCOPE_SET}"))
	assert.Equal(t, "value", expandEnvWithDefaults("${TEST_VERASCOPE_SET:-fallback}"))
	assert.Equal(t, "fallback", expandEnvWithDefaults("${TEST_VERASCOPE_EMPTY:-fallback}"))
	assert.Equal(t, "", expandEnvWithDefaults("${TEST_VERASCOPE_MISSING}"))
	assert.Equal(t, "plain text", expandEnvWithDefaults("plain text"))
	assert.Equal(t, "a value b", expandEnvWithDefaults("a ${TEST_VERASCOPE_SET} b"))
}

func TestApplyEnvOverrides_FillsProviderSections(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("BRAVE_API_KEY", "brave-key")
	t.Setenv("VERASCOPE_PROVIDER", "anthropic")
	t.Setenv("VERASCOPE_CACHE_PATH", "/tmp/vc.db")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.NotNil(t, cfg.Providers.Anthropic)
	assert.Equal(t, "sk-ant", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, "anthropic", cfg.Providers.Default)
	assert.True(t, cfg.Search.Enabled)
	assert.Equal(t, "brave-key", cfg.Search.APIKey)
	assert.Equal(t, "/tmp/vc.db", cfg.Cache.Path)
}

func TestApplyEnvOverrides_YAMLKeyWins(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	yml := `
providers:
  default: anthropic
  anthropic:
    api_key: yaml-key
`
	cfg, err := LoadFromBytes([]byte(yml))
	require.NoError(t, err)
	assert.Equal(t, "yaml-key", cfg.Providers.Anthropic.APIKey)
}

func TestApplyEnvOverrides_TelemetryDir(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("VERASCOPE_TELEMETRY_DIR", t.TempDir())

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Monitoring.TelemetryEnabled)
	assert.NotEmpty(t, cfg.Monitoring.TelemetryDir)
}

func TestLoad_FromFile(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := []byte("providers:\n  default: ollama\n  ollama: {}\n")
	require.NoError(t, os.WriteFile(path, yml, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Providers.Default)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate_Errors(t *testing.T) {
	clearProviderEnv(t)

	base := func() *Config {
		cfg := Default()
		cfg.Providers.Anthropic = &AnthropicProvider{APIKey: "key"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "invalid server.port",
		},
		{
			name:   "port too large",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			want:   "invalid server.port",
		},
		{
			name:   "default provider missing",
			mutate: func(c *Config) { c.Providers.Default = "" },
			want:   "providers.default is required",
		},
		{
			name:   "default provider unconfigured",
			mutate: func(c *Config) { c.Providers.Default = "openai" },
			want:   `provider "openai" is not configured`,
		},
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Providers.Default = "mystery" },
			want:   `unknown provider "mystery"`,
		},
		{
			name:   "probe provider unconfigured",
			mutate: func(c *Config) { c.Providers.Probes = []string{"gemini"} },
			want:   "providers.probes",
		},
		{
			name:   "search enabled without key",
			mutate: func(c *Config) { c.Search.Enabled = true },
			want:   "search.api_key is required",
		},
		{
			name:   "cache entries",
			mutate: func(c *Config) { c.Cache.MaxEntries = 0 },
			want:   "cache.max_entries",
		},
		{
			name:   "window limit",
			mutate: func(c *Config) { c.Upstream.WindowLimit = 0 },
			want:   "upstream.window_limit",
		},
		{
			name:   "backoff factor below one",
			mutate: func(c *Config) { c.Upstream.BackoffFactor = 0.5 },
			want:   "upstream.backoff_factor",
		},
		{
			name:   "probe count",
			mutate: func(c *Config) { c.Checker.ProbeCount = 0 },
			want:   "checker.probe_count",
		},
		{
			name:   "log level",
			mutate: func(c *Config) { c.Monitoring.LogLevel = "verbose" },
			want:   "invalid monitoring.log_level",
		},
		{
			name:   "log format",
			mutate: func(c *Config) { c.Monitoring.LogFormat = "xml" },
			want:   "invalid monitoring.log_format",
		},
		{
			name:   "telemetry without dir",
			mutate: func(c *Config) { c.Monitoring.TelemetryEnabled = true },
			want:   "monitoring.telemetry_dir is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProvidersConfig_Configured(t *testing.T) {
	p := ProvidersConfig{
		Anthropic: &AnthropicProvider{APIKey: "a"},
		Ollama:    &OllamaProvider{},
	}
	assert.Equal(t, []string{"anthropic", "ollama"}, p.Configured())
}

func TestLoadFromBytes_InvalidYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("server: [not a map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFromBytes_ValidationRuns(t *testing.T) {
	clearProviderEnv(t)

	_, err := LoadFromBytes([]byte("providers:\n  default: openai\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
