// Package providers maps model tiers onto concrete upstream models.
//
// DESIGN: the checker thinks in tiers, never in provider model ids.
// Each Adapter owns one upstream account: it resolves a tier to that
// provider's model id, dispatches through the shared external call
// layer, and hands back a normalized Response. Adapters are stateless
// and safe for concurrent use.
//
// To add a provider: implement Adapter (usually by configuring
// httpAdapter) and register it in the Registry.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/verascope/verascope/external"
	"github.com/verascope/verascope/internal/model"
)

const defaultMaxTokens = 1024

// Request is one tiered model call.
type Request struct {
	System    string
	User      string
	Tier      model.Tier
	MaxTokens int
}

// Response is the normalized answer of any provider.
type Response struct {
	Content      string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
}

// Adapter is the unified interface for one upstream provider.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "anthropic", "openai").
	Name() string

	// ModelFor resolves a tier to this provider's model id.
	ModelFor(tier model.Tier) string

	// Call dispatches a request at the given tier.
	Call(ctx context.Context, req Request) (*Response, error)
}

// ModelMap assigns a model id to every tier.
type ModelMap struct {
	Extraction string `yaml:"extraction"`
	Fast       string `yaml:"fast"`
	Standard   string `yaml:"standard"`
	Premium    string `yaml:"premium"`
}

// For resolves a tier. Unknown tiers resolve to Fast.
func (m ModelMap) For(tier model.Tier) string {
	switch tier {
	case model.TierExtraction:
		return m.Extraction
	case model.TierStandard:
		return m.Standard
	case model.TierPremium:
		return m.Premium
	default:
		return m.Fast
	}
}

// withDefaults fills empty tiers from the provider's default map.
func (m ModelMap) withDefaults(d ModelMap) ModelMap {
	if m.Extraction == "" {
		m.Extraction = d.Extraction
	}
	if m.Fast == "" {
		m.Fast = d.Fast
	}
	if m.Standard == "" {
		m.Standard = d.Standard
	}
	if m.Premium == "" {
		m.Premium = d.Premium
	}
	return m
}

// httpAdapter implements Adapter over the external call layer. The
// optional endpointFor hook covers providers that put the model id in
// the URL path (Gemini, Bedrock).
type httpAdapter struct {
	name        string
	provider    string
	endpoint    string
	endpointFor func(modelID string) string
	apiKey      string
	models      ModelMap
	timeout     time.Duration
	client      *http.Client
}

var _ Adapter = (*httpAdapter)(nil)

func (a *httpAdapter) Name() string { return a.name }

func (a *httpAdapter) ModelFor(tier model.Tier) string { return a.models.For(tier) }

func (a *httpAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	modelID := a.models.For(req.Tier)
	endpoint := a.endpoint
	if a.endpointFor != nil {
		endpoint = a.endpointFor(modelID)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	res, err := external.Call(ctx, external.CallParams{
		Provider:     a.provider,
		Endpoint:     endpoint,
		APIKey:       a.apiKey,
		Model:        modelID,
		SystemPrompt: req.System,
		UserPrompt:   req.User,
		MaxTokens:    maxTokens,
		Timeout:      a.timeout,
		HTTPClient:   a.client,
	})
	if err != nil {
		return nil, err
	}

	usedModel := res.Model
	if usedModel == "" {
		usedModel = modelID
	}
	return &Response{
		Content:      res.Content,
		Model:        usedModel,
		Provider:     a.name,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	}, nil
}
