// HTTP dispatch for upstream AI providers.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"
)

// Call dispatches a prompt to an AI provider and returns the parsed
// result. Non-2xx answers come back as a *CallError; transport-level
// failures are returned wrapped, without a status.
//
// Provider detection (when params.Provider is empty):
//   - "bedrock" in URL → Bedrock invoke API (Anthropic Messages dialect)
//   - "anthropic" in URL → Anthropic Messages API
//   - "generativelanguage.googleapis.com" in URL → Gemini generateContent API
//   - otherwise → OpenAI Chat Completions API
//
// For proxy or custom endpoints where the URL does not identify the
// provider, set params.Provider explicitly.
func Call(ctx context.Context, params CallParams) (*CallResult, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid call params: %w", err)
	}

	provider := params.Provider
	if provider == "" {
		provider = DetectProvider(params.Endpoint)
	}

	body, err := buildRequestBody(provider, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", provider, err)
	}

	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, provider, params.APIKey, params.BearerToken)
	for k, v := range params.ExtraHeaders {
		req.Header.Set(k, v)
	}

	client := params.HTTPClient
	if client == nil {
		client = &http.Client{} // timeout via context, not client
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ReadError(provider, resp, respBody)
	}

	return parseResponse(provider, respBody)
}

// validate checks that required fields are present and sets defaults.
func (p *CallParams) validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("endpoint required")
	}
	// Bedrock signs via the HTTP transport rather than an API key.
	if p.APIKey == "" && p.BearerToken == "" && p.Provider != ProviderBedrock {
		return fmt.Errorf("api key or bearer token required")
	}
	if p.Model == "" {
		return fmt.Errorf("model required")
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return nil
}

// DetectProvider infers the provider from an endpoint URL.
func DetectProvider(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "bedrock"):
		return ProviderBedrock
	case strings.Contains(endpoint, "anthropic"):
		return ProviderAnthropic
	case strings.Contains(endpoint, "generativelanguage.googleapis.com"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

func setAuthHeaders(req *http.Request, provider, apiKey, bearerToken string) {
	switch provider {
	case ProviderAnthropic:
		if apiKey != "" {
			req.Header.Set("x-api-key", apiKey)
		} else if bearerToken != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearerToken))
		}
		req.Header.Set("anthropic-version", anthropicVersion)
	case ProviderBedrock:
		// SigV4 signing happens in the HTTP transport; no key headers.
	case ProviderGemini:
		req.Header.Set("x-goog-api-key", apiKey)
	default: // openai
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
}

// Temperature strategy: 0.0 everywhere so repeated evaluations of the
// same claim stay comparable. Exception: OpenAI o-series models reject
// the temperature field, so it is omitted for OpenAI.
func buildRequestBody(provider string, params CallParams) ([]byte, error) {
	switch provider {
	case ProviderAnthropic, ProviderBedrock:
		body, err := json.Marshal(&anthropicRequest{
			Model:       params.Model,
			MaxTokens:   params.MaxTokens,
			System:      params.SystemPrompt,
			Messages:    []anthropicMessage{{Role: "user", Content: params.UserPrompt}},
			Temperature: 0.0,
		})
		if err != nil || provider != ProviderBedrock {
			return body, err
		}
		// Bedrock names the model in the URL path and versions the
		// payload instead.
		body, err = sjson.DeleteBytes(body, "model")
		if err != nil {
			return nil, err
		}
		return sjson.SetBytes(body, "anthropic_version", bedrockAnthropicVersion)
	case ProviderGemini:
		req := &geminiRequest{
			Contents: []geminiContent{
				{Role: "user", Parts: []geminiPart{{Text: params.UserPrompt}}},
			},
			GenerationConfig: &geminiGenerationConfig{
				MaxOutputTokens: params.MaxTokens,
				Temperature:     0.0,
			},
		}
		if params.SystemPrompt != "" {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: params.SystemPrompt}}}
		}
		return json.Marshal(req)
	default: // openai
		return json.Marshal(&openAIRequest{
			Model: params.Model,
			Messages: []openAIMessage{
				{Role: "system", Content: params.SystemPrompt},
				{Role: "user", Content: params.UserPrompt},
			},
			MaxCompletionTokens: params.MaxTokens,
		})
	}
}
