package providers

import (
	"net/http"
	"time"

	"github.com/verascope/verascope/external"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

var anthropicDefaults = ModelMap{
	Extraction: "claude-3-5-haiku-latest",
	Fast:       "claude-3-5-haiku-latest",
	Standard:   "claude-sonnet-4-5",
	Premium:    "claude-opus-4-1",
}

// AnthropicOptions configures the Anthropic adapter. Zero fields get
// defaults.
type AnthropicOptions struct {
	APIKey     string
	Endpoint   string
	Models     ModelMap
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewAnthropic builds an adapter for the Anthropic Messages API.
func NewAnthropic(opts AnthropicOptions) Adapter {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = anthropicEndpoint
	}
	return &httpAdapter{
		name:     external.ProviderAnthropic,
		provider: external.ProviderAnthropic,
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		models:   opts.Models.withDefaults(anthropicDefaults),
		timeout:  opts.Timeout,
		client:   opts.HTTPClient,
	}
}
