// Package config loads and validates the service configuration.
//
// DESIGN: configuration starts from Default() and is overridden by
// YAML, then by a small set of environment variables, then validated.
// YAML values support ${VAR} and ${VAR:-default} expansion so one
// config file serves every deployment.
//
// FILES:
//   - config.go:    root Config, Load(), expansion, env overrides, Validate()
//   - providers.go: per-provider sections and their validation
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verascope/verascope/internal/cache"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Search     SearchConfig     `yaml:"search"`
	Cache      CacheConfig      `yaml:"cache"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Checker    CheckerConfig    `yaml:"checker"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RateLimitRPS   int           `yaml:"rate_limit_rps"`   // per-client token bucket refill
	RateLimitBurst int           `yaml:"rate_limit_burst"` // per-client token bucket size
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// SearchConfig controls the web-evidence collaborator.
type SearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	APIKey     string        `yaml:"api_key"`
	Endpoint   string        `yaml:"endpoint"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig controls the response cache. The embedded cache.Config
// carries size, TTL, debounce and the persistence path.
type CacheConfig struct {
	Enabled      bool `yaml:"enabled"`
	cache.Config `yaml:",inline"`
}

// UpstreamConfig paces dispatch toward every provider: the trailing
// rate window, the failure backoff, and the retry delay shape.
type UpstreamConfig struct {
	WindowLimit   int           `yaml:"window_limit"`
	Window        time.Duration `yaml:"window"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	RetryMax      int           `yaml:"retry_max"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`
}

// CheckerConfig controls the evaluation pipeline.
type CheckerConfig struct {
	MultiModel    bool          `yaml:"multi_model"`
	ProbeCount    int           `yaml:"probe_count"`
	CostSensitive bool          `yaml:"cost_sensitive"`
	AnswerTokens  int           `yaml:"answer_tokens"`
	QueryTokens   int           `yaml:"query_tokens"`
	ShrinkTokens  int           `yaml:"shrink_tokens"`
	Timeout       time.Duration `yaml:"timeout"` // deadline for one shared check run
}

// MonitoringConfig contains logging and telemetry settings. Logging is
// for operators, telemetry is the JSONL event mirror for analysis.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	TelemetryDir     string `yaml:"telemetry_dir"`

	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// Default returns the baseline configuration. YAML and environment
// overrides are applied on top of it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
			// Long write timeout keeps websocket event streams alive.
			WriteTimeout:   10 * time.Minute,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			MaxBodyBytes:   1 << 20,
		},
		Providers: ProvidersConfig{Default: "anthropic"},
		Search: SearchConfig{
			MaxResults: 5,
			Timeout:    10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Config: cache.Config{
				MaxEntries: 200,
				TTL:        24 * time.Hour,
				Debounce:   5 * time.Second,
				Path:       "verascope-cache.db",
			},
		},
		Upstream: UpstreamConfig{
			WindowLimit:   30,
			Window:        time.Minute,
			BackoffBase:   time.Second,
			BackoffMax:    time.Minute,
			BackoffFactor: 2,
			RetryMax:      3,
			RetryDelay:    time.Second,
			RetryMaxDelay: 30 * time.Second,
		},
		Checker: CheckerConfig{
			ProbeCount:   1,
			AnswerTokens: 1024,
			QueryTokens:  64,
			ShrinkTokens: 1500,
			Timeout:      2 * time.Minute,
		},
		Monitoring: MonitoringConfig{
			LogLevel:             "info",
			LogFormat:            "console",
			LogOutput:            "stderr",
			HighLatencyThreshold: 15 * time.Second,
		},
	}
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// ExpandEnvWithDefaults is the exported form for callers that expand
// standalone values (CLI flags, prompt file paths).
func ExpandEnvWithDefaults(s string) string {
	return expandEnvWithDefaults(s)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes on top of the
// defaults, applies env expansion and overrides, and validates.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a config without a file: defaults plus environment
// overrides. This is what the CLI uses when no --config is given.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides maps well-known environment variables onto the
// config, so API keys never need to live in YAML. Provider sections
// appear automatically when their key is present.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if c.Providers.Anthropic == nil {
			c.Providers.Anthropic = &AnthropicProvider{}
		}
		if c.Providers.Anthropic.APIKey == "" {
			c.Providers.Anthropic.APIKey = key
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &OpenAIProvider{}
		}
		if c.Providers.OpenAI.APIKey == "" {
			c.Providers.OpenAI.APIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.Providers.Gemini == nil {
			c.Providers.Gemini = &GeminiProvider{}
		}
		if c.Providers.Gemini.APIKey == "" {
			c.Providers.Gemini.APIKey = key
		}
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		if c.Search.APIKey == "" {
			c.Search.APIKey = key
		}
		c.Search.Enabled = true
	}

	if provider := os.Getenv("VERASCOPE_PROVIDER"); provider != "" {
		c.Providers.Default = provider
	}
	if path := os.Getenv("VERASCOPE_CACHE_PATH"); path != "" {
		c.Cache.Path = path
	}
	// VERASCOPE_TELEMETRY_DIR redirects the JSONL event mirror and
	// enables it, so wrappers can capture events without editing
	// config files.
	if dir := os.Getenv("VERASCOPE_TELEMETRY_DIR"); dir != "" {
		c.Monitoring.TelemetryDir = dir
		c.Monitoring.TelemetryEnabled = true
	}
}

// Validate checks ranges, enums and cross-field requirements.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if err := c.Providers.Validate(); err != nil {
		return err
	}

	if c.Search.Enabled && c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required when search is enabled")
	}

	if c.Cache.Enabled {
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache.max_entries must be positive")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive")
		}
		if c.Cache.Debounce <= 0 {
			return fmt.Errorf("cache.debounce must be positive")
		}
	}

	if c.Upstream.WindowLimit <= 0 {
		return fmt.Errorf("upstream.window_limit must be positive")
	}
	if c.Upstream.Window <= 0 {
		return fmt.Errorf("upstream.window must be positive")
	}
	if c.Upstream.BackoffFactor < 1 {
		return fmt.Errorf("upstream.backoff_factor must be >= 1")
	}

	if c.Checker.ProbeCount < 1 {
		return fmt.Errorf("checker.probe_count must be >= 1")
	}
	if c.Checker.AnswerTokens <= 0 {
		return fmt.Errorf("checker.answer_tokens must be positive")
	}

	switch c.Monitoring.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid monitoring.log_level: %q", c.Monitoring.LogLevel)
	}
	switch c.Monitoring.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q", c.Monitoring.LogFormat)
	}
	if c.Monitoring.TelemetryEnabled && c.Monitoring.TelemetryDir == "" {
		return fmt.Errorf("monitoring.telemetry_dir is required when telemetry is enabled")
	}

	return nil
}
