// Raw wire layer for upstream AI providers.
//
// DESIGN: Call is the single entry point for dispatching a prompt to
// any supported provider (Anthropic, OpenAI, Gemini, Bedrock). Request
// bodies are built per provider dialect, responses are parsed with
// gjson, and every non-2xx answer is normalized into a *CallError so
// callers never deal with provider-specific error shapes.
//
// ADDING A NEW PROVIDER:
//  1. Add a provider constant and a case to DetectProvider()
//  2. Add cases to setAuthHeaders(), buildRequestBody(), parseResponse()
//  3. Add an adapter in internal/providers
package external

import (
	"net/http"
	"time"
)

// Supported provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderBedrock   = "bedrock"
)

const (
	// DefaultTimeout for provider API calls.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits raw error bodies carried in messages.
	maxErrorBodyLen = 500

	// anthropicVersion is the Anthropic API version header value.
	anthropicVersion = "2023-06-01"

	// bedrockAnthropicVersion replaces the model field for Bedrock payloads.
	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// CallParams contains parameters for a single provider call.
type CallParams struct {
	// Provider overrides auto-detection. One of the Provider* constants.
	// If empty, the provider is detected from the Endpoint URL.
	Provider string

	Endpoint     string
	APIKey       string // x-api-key for Anthropic, x-goog-api-key for Gemini
	BearerToken  string // Authorization: Bearer; takes precedence for Anthropic
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Timeout      time.Duration

	// ExtraHeaders are added to the request verbatim.
	ExtraHeaders map[string]string

	// HTTPClient overrides the default client. For Bedrock a client with
	// a SigV4 signing transport must be provided.
	HTTPClient *http.Client
}

// CallResult contains the parsed response from a provider call.
type CallResult struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Provider     string
}

// anthropicRequest is the Messages API request body. Bedrock reuses the
// same dialect with the model moved into the URL path.
type anthropicRequest struct {
	Model       string             `json:"model,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the Chat Completions request body. Temperature is
// omitted because o-series models reject the field.
type openAIRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}
