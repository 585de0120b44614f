package config

import (
	"fmt"
	"time"

	"github.com/verascope/verascope/internal/providers"
)

// ProvidersConfig selects and configures the model providers. Default
// names the provider used for every check; Probes optionally names
// alternate providers for consistency probes in multi-model mode.
// A section is active when it is present (or its API key arrives via
// the environment).
type ProvidersConfig struct {
	Default string   `yaml:"default"`
	Probes  []string `yaml:"probes"`

	Anthropic *AnthropicProvider `yaml:"anthropic"`
	OpenAI    *OpenAIProvider    `yaml:"openai"`
	Gemini    *GeminiProvider    `yaml:"gemini"`
	Bedrock   *BedrockProvider   `yaml:"bedrock"`
	Ollama    *OllamaProvider    `yaml:"ollama"`
}

// AnthropicProvider configures the Anthropic Messages API adapter.
type AnthropicProvider struct {
	APIKey   string             `yaml:"api_key"`
	Endpoint string             `yaml:"endpoint"`
	Models   providers.ModelMap `yaml:"models"`
	Timeout  time.Duration      `yaml:"timeout"`
}

// OpenAIProvider configures the OpenAI chat completions adapter. It
// also covers OpenAI-compatible proxies via Endpoint.
type OpenAIProvider struct {
	APIKey   string             `yaml:"api_key"`
	Endpoint string             `yaml:"endpoint"`
	Models   providers.ModelMap `yaml:"models"`
	Timeout  time.Duration      `yaml:"timeout"`
}

// GeminiProvider configures the Gemini generateContent adapter.
type GeminiProvider struct {
	APIKey   string             `yaml:"api_key"`
	Endpoint string             `yaml:"endpoint"`
	Models   providers.ModelMap `yaml:"models"`
	Timeout  time.Duration      `yaml:"timeout"`
}

// BedrockProvider configures the AWS Bedrock adapter. Credentials come
// from the ambient AWS chain, so there is no api_key here.
type BedrockProvider struct {
	Region  string             `yaml:"region"`
	BaseURL string             `yaml:"base_url"`
	Models  providers.ModelMap `yaml:"models"`
	Timeout time.Duration      `yaml:"timeout"`
}

// OllamaProvider configures a local Ollama instance.
type OllamaProvider struct {
	Endpoint string             `yaml:"endpoint"`
	Models   providers.ModelMap `yaml:"models"`
	Timeout  time.Duration      `yaml:"timeout"`
}

// Configured returns the names of all active provider sections, in
// registry order.
func (p *ProvidersConfig) Configured() []string {
	var names []string
	if p.Anthropic != nil {
		names = append(names, "anthropic")
	}
	if p.Bedrock != nil {
		names = append(names, "bedrock")
	}
	if p.Gemini != nil {
		names = append(names, "gemini")
	}
	if p.Ollama != nil {
		names = append(names, "ollama")
	}
	if p.OpenAI != nil {
		names = append(names, "openai")
	}
	return names
}

// Validate checks that the default provider and every probe provider
// is known and ready to serve calls.
func (p *ProvidersConfig) Validate() error {
	if p.Default == "" {
		return fmt.Errorf("providers.default is required")
	}
	if err := p.check(p.Default); err != nil {
		return err
	}
	for _, name := range p.Probes {
		if err := p.check(name); err != nil {
			return fmt.Errorf("providers.probes: %w", err)
		}
	}
	return nil
}

func (p *ProvidersConfig) check(name string) error {
	switch name {
	case "anthropic":
		if p.Anthropic == nil || p.Anthropic.APIKey == "" {
			return fmt.Errorf("provider %q is not configured (set providers.anthropic.api_key or ANTHROPIC_API_KEY)", name)
		}
	case "openai":
		if p.OpenAI == nil || p.OpenAI.APIKey == "" {
			return fmt.Errorf("provider %q is not configured (set providers.openai.api_key or OPENAI_API_KEY)", name)
		}
	case "gemini":
		if p.Gemini == nil || p.Gemini.APIKey == "" {
			return fmt.Errorf("provider %q is not configured (set providers.gemini.api_key or GEMINI_API_KEY)", name)
		}
	case "bedrock":
		if p.Bedrock == nil {
			return fmt.Errorf("provider %q is not configured (add a providers.bedrock section)", name)
		}
	case "ollama":
		if p.Ollama == nil {
			return fmt.Errorf("provider %q is not configured (add a providers.ollama section)", name)
		}
	default:
		return fmt.Errorf("unknown provider %q (valid: anthropic, openai, gemini, bedrock, ollama)", name)
	}
	return nil
}
