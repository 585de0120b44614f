package providers

import (
	"net/http"
	"time"

	"github.com/verascope/verascope/external"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

var openAIDefaults = ModelMap{
	Extraction: "gpt-4o-mini",
	Fast:       "gpt-4o-mini",
	Standard:   "gpt-4o",
	Premium:    "o1",
}

// OpenAIOptions configures the OpenAI adapter. Zero fields get
// defaults.
type OpenAIOptions struct {
	APIKey     string
	Endpoint   string
	Models     ModelMap
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewOpenAI builds an adapter for the OpenAI Chat Completions API.
// It also covers OpenAI-compatible proxies when Endpoint points at
// one.
func NewOpenAI(opts OpenAIOptions) Adapter {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = openAIEndpoint
	}
	return &httpAdapter{
		name:     external.ProviderOpenAI,
		provider: external.ProviderOpenAI,
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		models:   opts.Models.withDefaults(openAIDefaults),
		timeout:  opts.Timeout,
		client:   opts.HTTPClient,
	}
}
