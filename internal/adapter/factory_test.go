package adapter

import (
	"context"
	"testing"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiKeyAccount(id, providerID string) *core.ProviderAccount {
	return &core.ProviderAccount{
		ID:         id,
		ProviderID: providerID,
		Config: core.AccountConfig{
			Type:   core.ConfigAPIKey,
			APIKey: &core.APIKeyConfig{Key: "test-key"},
		},
	}
}

func TestBuild_DispatchesKnownAPIKeyProviders(t *testing.T) {
	def := core.ProviderDefinition{DefaultModels: []core.ModelDescriptor{{ID: "default-model"}}}
	for _, id := range []string{"openai", "groq", "together", "mistral", "local", "anthropic", "claude", "gemini", "cohere"} {
		p, err := Build(context.Background(), id, apiKeyAccount("acct-"+id, id), def, core.Pricing{})
		require.NoError(t, err, "provider %s", id)
		assert.NotNil(t, p, "provider %s", id)
	}
}

func TestBuild_UnknownProviderErrors(t *testing.T) {
	_, err := Build(context.Background(), "does-not-exist", apiKeyAccount("acct-x", "does-not-exist"), core.ProviderDefinition{}, core.Pricing{})
	assert.Error(t, err)
}

func TestBuild_AzureRequiresAzureConfig(t *testing.T) {
	account := apiKeyAccount("acct-azure", "azure_openai")
	_, err := Build(context.Background(), "azure_openai", account, core.ProviderDefinition{}, core.Pricing{})
	assert.Error(t, err)
}

func TestBuild_AzureWithConfigSucceeds(t *testing.T) {
	account := &core.ProviderAccount{
		ID:         "acct-azure",
		ProviderID: "azure_openai",
		Config: core.AccountConfig{
			Type:  core.ConfigAzure,
			Azure: &core.AzureConfig{Endpoint: "https://example.openai.azure.com", Key: "k"},
		},
	}
	p, err := Build(context.Background(), "azure_openai", account, core.ProviderDefinition{}, core.Pricing{})
	require.NoError(t, err)
	assert.NotNil(t, p)
}
