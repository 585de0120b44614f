package providers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/verascope/verascope/external"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

var geminiDefaults = ModelMap{
	Extraction: "gemini-2.0-flash-lite",
	Fast:       "gemini-2.0-flash",
	Standard:   "gemini-2.5-flash",
	Premium:    "gemini-2.5-pro",
}

// GeminiOptions configures the Gemini adapter. BaseURL is the host
// prefix; the model id lands in the URL path per call.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	Models     ModelMap
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewGemini builds an adapter for the Gemini generateContent API.
func NewGemini(opts GeminiOptions) Adapter {
	base := opts.BaseURL
	if base == "" {
		base = geminiBaseURL
	}
	return &httpAdapter{
		name:     external.ProviderGemini,
		provider: external.ProviderGemini,
		endpointFor: func(modelID string) string {
			return fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, modelID)
		},
		apiKey:  opts.APIKey,
		models:  opts.Models.withDefaults(geminiDefaults),
		timeout: opts.Timeout,
		client:  opts.HTTPClient,
	}
}
