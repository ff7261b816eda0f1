// Package mistral wraps openaicompat for api.mistral.ai, which speaks
// the same chat/completions shape as OpenAI. Grounded on the teacher's
// llm/providers/config.go MistralConfig (BaseProviderConfig embedding,
// no provider-specific fields) — there is nothing to override beyond
// base URL and default model.
package mistral

import (
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/adapter/openaicompat"
	"github.com/BaSui01/agentflow/internal/core"
)

const defaultBaseURL = "https://api.mistral.ai/v1"

// Config is the Mistral adapter configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Mistral adapter.
type Provider struct {
	*openaicompat.Provider
}

// New builds a Mistral adapter.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderID:   "mistral",
		ProviderName: "Mistral",
		BaseURL:      baseURL,
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.DefaultModel,
		Pricing:      cfg.Pricing,
		Timeout:      cfg.Timeout,
	})
	return &Provider{Provider: base}
}

var _ adapter.Provider = (*Provider)(nil)
