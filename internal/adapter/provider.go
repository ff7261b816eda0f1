// Package adapter implements the Provider Adapter Layer (C3): one
// uniform Chat/ListModels/HealthCheck/Definition contract realized over
// each upstream wire protocol. Grounded on the teacher's llm.Provider
// interface shape (llm/provider.go) and llm/factory/factory.go's
// switch-by-name construction, generalized to build from a
// core.ProviderAccount's tagged-union config instead of a static
// registry config file.
package adapter

import (
	"context"

	"github.com/BaSui01/agentflow/internal/core"
)

// Provider is the capability set spec.md §4.3 names:
// chat / list_models / health_check / provider(). It is structurally
// identical to internal/gateway.Adapter — the two packages share no
// import edge, matching the teacher's own llm vs llm/factory split.
type Provider interface {
	Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)
	ListModels(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) bool
	Definition() core.ProviderConfig
}
