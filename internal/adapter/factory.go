package adapter

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/internal/adapter/anthropic"
	"github.com/BaSui01/agentflow/internal/adapter/azureopenai"
	"github.com/BaSui01/agentflow/internal/adapter/bedrock"
	"github.com/BaSui01/agentflow/internal/adapter/cohere"
	"github.com/BaSui01/agentflow/internal/adapter/gemini"
	"github.com/BaSui01/agentflow/internal/adapter/groq"
	"github.com/BaSui01/agentflow/internal/adapter/local"
	"github.com/BaSui01/agentflow/internal/adapter/mistral"
	"github.com/BaSui01/agentflow/internal/adapter/openai"
	"github.com/BaSui01/agentflow/internal/adapter/together"
	"github.com/BaSui01/agentflow/internal/core"
)

// Build constructs a Provider for one ProviderAccount, dispatching on its
// ProviderID the way llm/factory/factory.go dispatches on provider name —
// generalized here to take its connection details from a tagged-union
// core.AccountConfig instead of a flat extras map.
func Build(ctx context.Context, providerID string, account *core.ProviderAccount, def core.ProviderDefinition, pricing core.Pricing) (Provider, error) {
	cfg := account.Config
	model := defaultModel(def)

	switch providerID {
	case "openai":
		return openai.New(openai.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "groq":
		return groq.New(groq.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "together":
		return together.New(together.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "mistral":
		return mistral.New(mistral.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "local":
		return local.New(local.Config{
			ProviderID:   account.ProviderID,
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "anthropic", "claude":
		return anthropic.New(anthropic.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "gemini":
		return gemini.New(gemini.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "cohere":
		return cohere.New(cohere.Config{
			APIKey:       apiKey(cfg),
			BaseURL:      customEndpoint(cfg),
			DefaultModel: model,
			Pricing:      pricing,
		}), nil

	case "azure_openai", "azure":
		if cfg.Azure == nil {
			return nil, fmt.Errorf("account %q: azure_openai requires an Azure account config", account.ID)
		}
		return azureopenai.New(azureopenai.Config{
			APIKey:     cfg.Azure.Key,
			BaseURL:    cfg.Azure.Endpoint,
			APIVersion: cfg.Azure.APIVersion,
			Pricing:    pricing,
		}), nil

	case "bedrock":
		region := "us-east-1"
		if cfg.Aws != nil && cfg.Aws.Region != "" {
			region = cfg.Aws.Region
		}
		return bedrock.New(ctx, bedrock.Config{
			Region:       region,
			DefaultModel: model,
			Pricing:      pricing,
		})

	default:
		return nil, fmt.Errorf("unknown provider id %q", providerID)
	}
}

func apiKey(cfg core.AccountConfig) string {
	if cfg.APIKey != nil {
		return cfg.APIKey.Key
	}
	return ""
}

func customEndpoint(cfg core.AccountConfig) string {
	if cfg.APIKey != nil {
		return cfg.APIKey.CustomEndpoint
	}
	return ""
}

func defaultModel(def core.ProviderDefinition) string {
	if len(def.DefaultModels) > 0 {
		return def.DefaultModels[0].ID
	}
	return ""
}
