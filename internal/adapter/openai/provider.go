// Package openai wraps openaicompat for api.openai.com, the reference
// wire protocol every other compat adapter is measured against.
// Grounded on the teacher's llm/providers/openai/provider.go, which
// layers organization-header support over the same base shape.
package openai

import (
	"net/http"
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/adapter/openaicompat"
	"github.com/BaSui01/agentflow/internal/core"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config is the OpenAI-specific subset of fields layered over the
// shared compat base.
type Config struct {
	APIKey       string
	BaseURL      string // override for Azure-less self-hosted proxies
	Organization string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the OpenAI adapter.
type Provider struct {
	*openaicompat.Provider
}

// New builds an OpenAI adapter.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	org := cfg.Organization
	base := openaicompat.New(openaicompat.Config{
		ProviderID:   "openai",
		ProviderName: "OpenAI",
		BaseURL:      baseURL,
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.DefaultModel,
		Pricing:      cfg.Pricing,
		Timeout:      cfg.Timeout,
		BuildHeaders: func(req *http.Request, apiKey string) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("Content-Type", "application/json")
			if org != "" {
				req.Header.Set("OpenAI-Organization", org)
			}
		},
	})
	return &Provider{Provider: base}
}

var _ adapter.Provider = (*Provider)(nil)
