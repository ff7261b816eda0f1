// Package together wraps openaicompat for api.together.xyz's
// OpenAI-compatible inference endpoint.
package together

import (
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/adapter/openaicompat"
	"github.com/BaSui01/agentflow/internal/core"
)

const defaultBaseURL = "https://api.together.xyz/v1"

// Config is the Together adapter configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Together adapter.
type Provider struct {
	*openaicompat.Provider
}

// New builds a Together adapter.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderID:   "together",
		ProviderName: "Together",
		BaseURL:      baseURL,
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.DefaultModel,
		Pricing:      cfg.Pricing,
		Timeout:      cfg.Timeout,
	})
	return &Provider{Provider: base}
}

var _ adapter.Provider = (*Provider)(nil)
