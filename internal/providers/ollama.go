package providers

import (
	"net/http"
	"time"

	"github.com/verascope/verascope/external"
)

const ollamaEndpoint = "http://localhost:11434/v1/chat/completions"

var ollamaDefaults = ModelMap{
	Extraction: "llama3.2",
	Fast:       "llama3.2",
	Standard:   "llama3.1:8b",
	Premium:    "llama3.1:70b",
}

// OllamaOptions configures the Ollama adapter, which speaks the
// OpenAI-compatible endpoint of a local Ollama daemon.
type OllamaOptions struct {
	Endpoint   string
	Models     ModelMap
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewOllama builds an adapter for a local Ollama instance. Ollama
// ignores the bearer token but the OpenAI dialect requires one, so a
// placeholder is sent.
func NewOllama(opts OllamaOptions) Adapter {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = ollamaEndpoint
	}
	return &httpAdapter{
		name:     "ollama",
		provider: external.ProviderOpenAI,
		endpoint: endpoint,
		apiKey:   "ollama",
		models:   opts.Models.withDefaults(ollamaDefaults),
		timeout:  opts.Timeout,
		client:   opts.HTTPClient,
	}
}
