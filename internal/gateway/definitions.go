package gateway

import "github.com/BaSui01/agentflow/internal/core"

// DefaultDefinitions returns the static provider-capability table
// created at boot and never mutated thereafter (spec.md §3). Grounded
// on the provider id set llm/factory/factory.go dispatches over plus
// bedrock/azure_openai added per spec.md §1's provider list, and on
// llm/observability/cost.go's default price table (divisor corrected
// from per-1K to per-1e6 tokens — see DESIGN.md).
func DefaultDefinitions() map[string]core.ProviderDefinition {
	defs := []core.ProviderDefinition{
		{
			ID: "openai", Name: "OpenAI", Category: core.CategoryLLMEmbedding, Kind: core.KindBoth,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "gpt-4o", Name: "GPT-4o"},
				{ID: "gpt-4o-mini", Name: "GPT-4o mini"},
				{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo"},
			},
		},
		{
			ID: "anthropic", Name: "Anthropic", Category: core.CategoryLLMEmbedding, Kind: core.KindLLM,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
				{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
			},
		},
		{
			ID: "mistral", Name: "Mistral", Category: core.CategoryLLMEmbedding, Kind: core.KindBoth,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "mistral-large-latest", Name: "Mistral Large"},
				{ID: "mistral-small-latest", Name: "Mistral Small"},
			},
		},
		{
			ID: "gemini", Name: "Gemini", Category: core.CategoryLLMEmbedding, Kind: core.KindBoth,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
				{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
			},
		},
		{
			ID: "cohere", Name: "Cohere", Category: core.CategoryLLMEmbedding, Kind: core.KindBoth,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "command-r-plus", Name: "Command R+"},
			},
		},
		{
			ID: "groq", Name: "Groq", Category: core.CategoryLLMEmbedding, Kind: core.KindLLM,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "llama-3.1-70b-versatile", Name: "Llama 3.1 70B"},
			},
		},
		{
			ID: "together", Name: "Together AI", Category: core.CategoryLLMEmbedding, Kind: core.KindLLM,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "meta-llama/Llama-3-70b-chat-hf", Name: "Llama 3 70B"},
			},
		},
		{
			ID: "azure_openai", Name: "Azure OpenAI", Category: core.CategoryLLMEmbedding, Kind: core.KindBoth,
			RequiresAzureConfig:   true,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "gpt-4o", Name: "GPT-4o (Azure deployment)"},
			},
		},
		{
			ID: "bedrock", Name: "AWS Bedrock", Category: core.CategoryLLMEmbedding, Kind: core.KindBoth,
			RequiresAwsConfig:     true,
			SupportedQuotaPeriods: core.AllQuotaPeriods(),
			DefaultModels: []core.ModelDescriptor{
				{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)"},
				{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)"},
				{ID: "mistral.mistral-large-2402-v1:0", Name: "Mistral Large (Bedrock)"},
				{ID: "amazon.titan-text-express-v1", Name: "Titan Text Express"},
			},
		},
		{
			ID: "local", Name: "Local / Ollama", Category: core.CategoryLLMEmbedding, Kind: core.KindLLM,
			SupportedQuotaPeriods: []core.QuotaPeriod{core.QuotaMinute, core.QuotaHour},
			DefaultModels: []core.ModelDescriptor{
				{ID: "llama3", Name: "Llama 3 (local)"},
			},
		},
	}
	out := make(map[string]core.ProviderDefinition, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

// DefaultPricing is the per-1e6-token USD pricing used when an account
// has no model-level override, keyed by provider id. Grounded on
// llm/observability/cost.go's loadDefaultPrices table (per-1K rates
// multiplied by 1000 to match spec.md's per-1e6 unit).
func DefaultPricing() map[string]core.Pricing {
	return map[string]core.Pricing{
		"openai":       {InputTokenCost: 5.00, OutputTokenCost: 15.00},
		"anthropic":    {InputTokenCost: 15.00, OutputTokenCost: 75.00},
		"mistral":      {InputTokenCost: 2.00, OutputTokenCost: 6.00},
		"gemini":       {InputTokenCost: 1.25, OutputTokenCost: 5.00},
		"cohere":       {InputTokenCost: 3.00, OutputTokenCost: 15.00},
		"groq":         {InputTokenCost: 0.59, OutputTokenCost: 0.79},
		"together":     {InputTokenCost: 0.90, OutputTokenCost: 0.90},
		"azure_openai": {InputTokenCost: 5.00, OutputTokenCost: 15.00},
		"bedrock":      {InputTokenCost: 3.00, OutputTokenCost: 15.00},
		"local":        {InputTokenCost: 0, OutputTokenCost: 0},
	}
}
