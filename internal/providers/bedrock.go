package providers

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/verascope/verascope/external"
)

var bedrockDefaults = ModelMap{
	Extraction: "anthropic.claude-3-5-haiku-20241022-v1:0",
	Fast:       "anthropic.claude-3-5-haiku-20241022-v1:0",
	Standard:   "anthropic.claude-3-5-sonnet-20241022-v2:0",
	Premium:    "anthropic.claude-opus-4-20250514-v1:0",
}

// BedrockOptions configures the Bedrock adapter. Region selects both
// the runtime endpoint and the SigV4 signing region; credentials come
// from the ambient AWS chain.
type BedrockOptions struct {
	Region     string
	BaseURL    string
	Models     ModelMap
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewBedrock builds an adapter for the Bedrock invoke API using the
// Anthropic Messages dialect. It fails when no AWS credentials are
// resolvable.
func NewBedrock(opts BedrockOptions) (Adapter, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	base := opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}

	client := opts.HTTPClient
	if client == nil {
		transport, err := external.NewBedrockSigningTransport(region, nil)
		if err != nil {
			return nil, fmt.Errorf("bedrock adapter: %w", err)
		}
		client = &http.Client{Transport: transport}
	}

	return &httpAdapter{
		name:     external.ProviderBedrock,
		provider: external.ProviderBedrock,
		endpointFor: func(modelID string) string {
			// Model ids carry a ":0" version suffix that must be
			// path-escaped.
			return fmt.Sprintf("%s/model/%s/invoke", base, url.PathEscape(modelID))
		},
		models:  opts.Models.withDefaults(bedrockDefaults),
		timeout: opts.Timeout,
		client:  client,
	}, nil
}
