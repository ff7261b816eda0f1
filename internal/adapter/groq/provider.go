// Package groq wraps openaicompat for api.groq.com's OpenAI-compatible
// inference endpoint.
package groq

import (
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/adapter/openaicompat"
	"github.com/BaSui01/agentflow/internal/core"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Config is the Groq adapter configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Groq adapter.
type Provider struct {
	*openaicompat.Provider
}

// New builds a Groq adapter.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderID:   "groq",
		ProviderName: "Groq",
		BaseURL:      baseURL,
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.DefaultModel,
		Pricing:      cfg.Pricing,
		Timeout:      cfg.Timeout,
	})
	return &Provider{Provider: base}
}

var _ adapter.Provider = (*Provider)(nil)
