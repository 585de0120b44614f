package providers

// Adapter tests. Every provider call runs against an httptest server
// shaped like the real upstream; nothing leaves the process.

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/verascope/verascope/external"
	"github.com/verascope/verascope/internal/model"
)

const anthropicReply = `{
  "content": [{"type": "text", "text": "Rating: 80/100"}],
  "model": "claude-sonnet-4-5",
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestModelMap_For(t *testing.T) {
	m := ModelMap{Extraction: "e", Fast: "f", Standard: "s", Premium: "p"}

	assert.Equal(t, "e", m.For(model.TierExtraction))
	assert.Equal(t, "f", m.For(model.TierFast))
	assert.Equal(t, "s", m.For(model.TierStandard))
	assert.Equal(t, "p", m.For(model.TierPremium))
}

func TestAnthropic_ModelDefaultsMerge(t *testing.T) {
	a := NewAnthropic(AnthropicOptions{
		APIKey: "k",
		Models: ModelMap{Premium: "claude-custom"},
	})

	assert.Equal(t, "claude-custom", a.ModelFor(model.TierPremium))
	assert.Equal(t, anthropicDefaults.Fast, a.ModelFor(model.TierFast))
}

func TestAnthropic_CallShape(t *testing.T) {
	var gotKey, gotVersion string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(anthropicReply))
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicOptions{APIKey: "secret", Endpoint: srv.URL})
	res, err := a.Call(context.Background(), Request{
		System:    "be careful",
		User:      "rate this",
		Tier:      model.TierStandard,
		MaxTokens: 256,
	})

	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.NotEmpty(t, gotVersion)
	assert.Equal(t, anthropicDefaults.Standard, gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "be careful", gjson.GetBytes(gotBody, "system").String())
	assert.Equal(t, "rate this", gjson.GetBytes(gotBody, "messages.0.content").String())
	assert.Equal(t, int64(256), gjson.GetBytes(gotBody, "max_tokens").Int())

	assert.Equal(t, "Rating: 80/100", res.Content)
	assert.Equal(t, "claude-sonnet-4-5", res.Model)
	assert.Equal(t, external.ProviderAnthropic, res.Provider)
	assert.Equal(t, 10, res.InputTokens)
	assert.Equal(t, 5, res.OutputTokens)
}

func TestGemini_ModelLandsInPath(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Write([]byte(`{
  "candidates": [{"content": {"parts": [{"text": "fine"}]}}],
  "usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2}
}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiOptions{APIKey: "gk", BaseURL: srv.URL})
	res, err := g.Call(context.Background(), Request{User: "q", Tier: model.TierStandard})

	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/"+geminiDefaults.Standard+":generateContent", gotPath)
	assert.Equal(t, "gk", gotKey)
	assert.Equal(t, "fine", res.Content)
	// Gemini does not echo a model id; the requested one is kept.
	assert.Equal(t, geminiDefaults.Standard, res.Model)
}

func TestOllama_SpeaksOpenAIDialect(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{
  "choices": [{"message": {"content": "ok"}}],
  "model": "llama3.2",
  "usage": {"prompt_tokens": 3, "completion_tokens": 2}
}`))
	}))
	defer srv.Close()

	o := NewOllama(OllamaOptions{Endpoint: srv.URL})
	res, err := o.Call(context.Background(), Request{System: "s", User: "u", Tier: model.TierFast})

	require.NoError(t, err)
	assert.Equal(t, "Bearer ollama", gotAuth)
	assert.Equal(t, "llama3.2", gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, "ollama", res.Provider)
}

func TestBedrock_InvokePath(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(anthropicReply))
	}))
	defer srv.Close()

	// Injecting the HTTP client skips SigV4 setup, so no AWS
	// credentials are needed here.
	b, err := NewBedrock(BedrockOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	res, err := b.Call(context.Background(), Request{User: "u", Tier: model.TierStandard})
	require.NoError(t, err)

	assert.Equal(t, "/model/"+bedrockDefaults.Standard+"/invoke", gotPath)
	assert.False(t, gjson.GetBytes(gotBody, "model").Exists(), "bedrock body must not carry a model field")
	assert.NotEmpty(t, gjson.GetBytes(gotBody, "anthropic_version").String())
	assert.Equal(t, "Rating: 80/100", res.Content)
}

func TestAdapter_UpstreamErrorKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit_error"}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicOptions{APIKey: "k", Endpoint: srv.URL})
	_, err := a.Call(context.Background(), Request{User: "u", Tier: model.TierFast})

	require.Error(t, err)
	assert.Equal(t, 429, external.StatusOf(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Names())

	r.Register(NewAnthropic(AnthropicOptions{APIKey: "k"}))
	r.Register(NewOllama(OllamaOptions{}))

	assert.Equal(t, []string{"anthropic", "ollama"}, r.Names())
	assert.NotNil(t, r.Get("anthropic"))
	assert.Nil(t, r.Get("mistral"))

	_, err := r.Resolve("mistral")
	assert.Error(t, err)

	got, err := r.Resolve("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", got.Name())
}
