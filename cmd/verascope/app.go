package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verascope/verascope/internal/cache"
	"github.com/verascope/verascope/internal/checker"
	"github.com/verascope/verascope/internal/config"
	"github.com/verascope/verascope/internal/monitoring"
	"github.com/verascope/verascope/internal/providers"
	"github.com/verascope/verascope/internal/ratelimit"
	"github.com/verascope/verascope/internal/retry"
	"github.com/verascope/verascope/internal/search"
	"github.com/verascope/verascope/internal/store"
)

// runtime bundles everything a command needs to evaluate text: the
// checker pipeline plus the monitoring surfaces it reports into.
type runtime struct {
	Checker *checker.Checker
	Metrics *monitoring.MetricsCollector
	Events  *monitoring.Stream
	Logger  *monitoring.Logger
	Alerts  *monitoring.AlertManager

	cache     *cache.Cache
	store     store.Store
	tracker   *monitoring.Tracker
	stopWatch func()
}

// buildRuntime wires the configuration into live components. The
// returned runtime must be Closed to flush the cache and telemetry.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	logger := monitoring.New(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled: cfg.Monitoring.TelemetryEnabled,
		Dir:     cfg.Monitoring.TelemetryDir,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{
		HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold,
	})

	rt := &runtime{
		Metrics: monitoring.NewMetricsCollector(),
		Events:  monitoring.NewStream(tracker),
		Logger:  logger,
		Alerts:  alerts,
		tracker: tracker,
	}

	// Alerting rides the same event stream the websocket feed uses.
	watchCh, stopWatch := rt.Events.Subscribe()
	go rt.Alerts.Watch(watchCh)
	rt.stopWatch = stopWatch

	registry, err := buildRegistry(&cfg.Providers)
	if err != nil {
		rt.Close()
		return nil, err
	}
	primary, err := registry.Resolve(cfg.Providers.Default)
	if err != nil {
		rt.Close()
		return nil, err
	}
	var probes []providers.Adapter
	for _, name := range cfg.Providers.Probes {
		a, err := registry.Resolve(name)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("probe provider: %w", err)
		}
		probes = append(probes, a)
	}

	var searchClient search.Client
	if cfg.Search.Enabled {
		searchClient = search.NewBrave(search.Config{
			APIKey:     cfg.Search.APIKey,
			Endpoint:   cfg.Search.Endpoint,
			MaxResults: cfg.Search.MaxResults,
			Timeout:    cfg.Search.Timeout,
		})
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Path != "" {
			st, err := store.OpenSQLite(cfg.Cache.Path, "responses")
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("cache store: %w", err)
			}
			rt.store = st
		}
		rt.cache = cache.New(cfg.Cache.Config, rt.store)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.cache.Load(ctx); err != nil {
			// A cold cache is not fatal.
			log.Warn().Err(err).Msg("cache restore failed, starting empty")
		}
	}

	chk, err := checker.New(checker.Options{
		Adapter: primary,
		Probes:  probes,
		Search:  searchClient,
		Cache:   rt.cache,
		Metrics: rt.Metrics,
		Events:  rt.Events,

		MultiModel:    cfg.Checker.MultiModel,
		ProbeCount:    cfg.Checker.ProbeCount,
		CostSensitive: cfg.Checker.CostSensitive,

		QueueLimit:  cfg.Upstream.WindowLimit,
		QueueWindow: cfg.Upstream.Window,
		Backoff: ratelimit.Backoff{
			Base:   cfg.Upstream.BackoffBase,
			Max:    cfg.Upstream.BackoffMax,
			Factor: cfg.Upstream.BackoffFactor,
		},
		Retry: retry.Policy{
			MaxRetries:   cfg.Upstream.RetryMax,
			InitialDelay: cfg.Upstream.RetryDelay,
			MaxDelay:     cfg.Upstream.RetryMaxDelay,
			Multiplier:   cfg.Upstream.BackoffFactor,
		},

		AnswerTokens: cfg.Checker.AnswerTokens,
		QueryTokens:  cfg.Checker.QueryTokens,
		ShrinkTokens: cfg.Checker.ShrinkTokens,
		CheckTimeout: cfg.Checker.Timeout,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("checker: %w", err)
	}
	rt.Checker = chk

	log.Debug().
		Strs("providers", registry.Names()).
		Str("default", primary.Name()).
		Msg("runtime ready")
	return rt, nil
}

// buildRegistry constructs an adapter for every configured provider
// section.
func buildRegistry(pc *config.ProvidersConfig) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if p := pc.Anthropic; p != nil {
		registry.Register(providers.NewAnthropic(providers.AnthropicOptions{
			APIKey:   p.APIKey,
			Endpoint: p.Endpoint,
			Models:   p.Models,
			Timeout:  p.Timeout,
		}))
	}
	if p := pc.OpenAI; p != nil {
		registry.Register(providers.NewOpenAI(providers.OpenAIOptions{
			APIKey:   p.APIKey,
			Endpoint: p.Endpoint,
			Models:   p.Models,
			Timeout:  p.Timeout,
		}))
	}
	if p := pc.Gemini; p != nil {
		registry.Register(providers.NewGemini(providers.GeminiOptions{
			APIKey:  p.APIKey,
			BaseURL: p.Endpoint,
			Models:  p.Models,
			Timeout: p.Timeout,
		}))
	}
	if p := pc.Bedrock; p != nil {
		a, err := providers.NewBedrock(providers.BedrockOptions{
			Region:  p.Region,
			BaseURL: p.BaseURL,
			Models:  p.Models,
			Timeout: p.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock: %w", err)
		}
		registry.Register(a)
	}
	if p := pc.Ollama; p != nil {
		registry.Register(providers.NewOllama(providers.OllamaOptions{
			Endpoint: p.Endpoint,
			Models:   p.Models,
			Timeout:  p.Timeout,
		}))
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no providers configured (set an API key such as ANTHROPIC_API_KEY, or add a providers section)")
	}
	return registry, nil
}

// Close flushes the cache and telemetry and releases the store.
func (rt *runtime) Close() {
	if rt.stopWatch != nil {
		rt.stopWatch()
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("cache close failed")
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}
	if rt.tracker != nil {
		if err := rt.tracker.Close(); err != nil {
			log.Warn().Err(err).Msg("telemetry close failed")
		}
	}
}
