package gateway

import (
	"context"
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/ledger"
	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/types"
	"go.uber.org/zap"
)

// Service is the top-level orchestrator wiring the Provider-Account
// Manager (C1), Smart Router (C2), adapter factory (C3), and Cost &
// Budget Ledger (C4) into the single request-dispatch path spec.md §2
// diagrams: admission, provider resolution (explicit or routed),
// dispatch, usage/cost recording.
//
// Grounded on spec.md §9's design note to collapse the source's
// three-places-duplicated explicit-provider adapter construction
// (handlers.rs, grpc/chat_service.rs) into one helper — resolveAdapter
// below is that helper.
type Service struct {
	Accounts *AccountManager
	Router   *Router
	Ledger   *ledger.Ledger

	defs    map[string]core.ProviderDefinition
	pricing map[string]core.Pricing

	// staticAccount[provider_id] -> account_id backing the router's
	// immutable adapter list, set at BuildRouter time. Needed to debit
	// the correct account's quota after a routed (non-explicit) call,
	// since core.ChatResponse only carries the provider id.
	staticAccount map[string]string

	logger  *zap.Logger
	metrics *metrics.Collector
}

// WithMetrics attaches a Prometheus collector (internal/metrics); every
// Dispatch call then records llm_requests_total/llm_request_duration_
// seconds/llm_tokens_used_total/llm_cost_total, per SPEC_FULL.md's
// ambient-stack metrics section. Optional — a nil collector here leaves
// Dispatch's behavior unchanged.
func (s *Service) WithMetrics(m *metrics.Collector) *Service {
	s.metrics = m
	return s
}

// NewService wires a Service from its four components plus the static
// provider-definition/pricing tables.
func NewService(accounts *AccountManager, ldg *ledger.Ledger, defs map[string]core.ProviderDefinition, pricing map[string]core.Pricing, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Accounts:      accounts,
		Ledger:        ldg,
		defs:          defs,
		pricing:       pricing,
		staticAccount: make(map[string]string),
		logger:        logger,
	}
}

// pricingFor resolves the effective pricing for an account/model: a
// per-model override on the account wins, else the provider default.
func (s *Service) pricingFor(providerID, model string, account *core.ProviderAccount) core.Pricing {
	if account != nil {
		for _, m := range account.Models {
			if m.ID == model && m.InputTokenCost != nil && m.OutputTokenCost != nil {
				return core.Pricing{InputTokenCost: *m.InputTokenCost, OutputTokenCost: *m.OutputTokenCost}
			}
		}
	}
	return s.pricing[providerID]
}

// resolveAdapter builds a Provider for providerID from whichever
// account AccountManager.Pick currently judges best, per spec.md §4.2's
// explicit-provider contract. Returns the built adapter and the
// account id it was built from (needed to debit usage afterward).
func (s *Service) resolveAdapter(ctx context.Context, providerID, model string) (adapter.Provider, string, error) {
	account := s.Accounts.Pick(providerID)
	if account == nil {
		return nil, "", types.NewError(types.ErrNoProviders, "no account with available quota for provider "+providerID).
			WithHTTPStatus(503).WithProvider(providerID)
	}
	def, ok := s.defs[providerID]
	if !ok {
		return nil, "", types.NewError(types.ErrProviderNotFound, "unknown provider "+providerID).
			WithHTTPStatus(404).WithProvider(providerID)
	}
	pricing := s.pricingFor(providerID, model, account)
	p, err := adapter.Build(ctx, providerID, account, def, pricing)
	if err != nil {
		return nil, "", types.NewError(types.ErrConfig, err.Error()).WithProvider(providerID)
	}
	return p, account.ID, nil
}

// BuildRouter (re)builds the Router's immutable adapter list: one
// adapter per provider id that currently has at least one account with
// available quota, built from AccountManager.Pick's current winner.
// Call once at boot, and again after account-admin mutations that
// should take effect for routed (non-explicit) dispatch.
func (s *Service) BuildRouter(ctx context.Context) error {
	adapters := make(map[string]Adapter)
	staticAccount := make(map[string]string)

	for providerID := range s.defs {
		if len(s.Accounts.List(providerID)) == 0 {
			continue
		}
		p, accountID, err := s.resolveAdapter(ctx, providerID, "")
		if err != nil {
			s.logger.Warn("skipping provider with no usable account", zap.String("provider", providerID), zap.Error(err))
			continue
		}
		adapters[providerID] = p
		staticAccount[providerID] = accountID
	}

	s.Router = NewRouter(adapters, s.logger)
	s.staticAccount = staticAccount
	return nil
}

// Dispatch is the full inbound ChatRequest flow spec.md §2 diagrams:
// admission against budget, provider resolution (explicit short-circuit
// or routed fallback walk), dispatch, then best-effort usage/cost
// recording that never fails the caller's response.
func (s *Service) Dispatch(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	estimate := ledger.DefaultEstimatedCost
	if req.Provider != "" {
		if pricing, ok := s.pricing[req.Provider]; ok {
			estimate = ledger.EstimateCost(req.Messages, pricing)
		}
	}
	if err := s.Ledger.CanRequest(req.UserID, estimate); err != nil {
		return nil, err
	}

	if req.Provider != "" {
		return s.dispatchExplicit(ctx, req)
	}
	return s.dispatchRouted(ctx, req)
}

// dispatchExplicit consults the Account Manager for a usable account,
// builds an ephemeral adapter, and calls chat exactly once — failures
// are surfaced immediately, never hidden behind fallback (spec.md §4.2,
// §8 S4), because the caller named the provider.
func (s *Service) dispatchExplicit(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	p, accountID, err := s.resolveAdapter(ctx, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Chat(ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.recordMetrics(req.Provider, req.Model, "error", duration, 0, 0, 0)
		return nil, err
	}
	resp.LatencyMS = duration.Milliseconds()
	s.recordSuccess(accountID, req.UserID, resp)
	s.recordMetrics(resp.Provider, resp.Model, "ok", duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Cost)
	return resp, nil
}

// dispatchRouted delegates to the Router's preference-based selection
// and health-ordered fallback walk, then debits whichever static
// account backs the provider that actually succeeded.
func (s *Service) dispatchRouted(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if s.Router == nil {
		return nil, types.NewError(types.ErrNoProviders, "router not initialized").WithHTTPStatus(503)
	}

	start := time.Now()
	resp, err := s.Router.RouteWithFallback(ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.recordMetrics(req.Provider, req.Model, "error", duration, 0, 0, 0)
		return nil, err
	}
	resp.LatencyMS = duration.Milliseconds()

	accountID := s.staticAccount[resp.Provider]
	s.recordSuccess(accountID, req.UserID, resp)
	s.recordMetrics(resp.Provider, resp.Model, "ok", duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Cost)
	return resp, nil
}

// recordMetrics forwards one Dispatch attempt to the attached collector.
// A nil collector (the default when WithMetrics was never called) makes
// this a no-op.
func (s *Service) recordMetrics(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLLMRequest(provider, model, status, duration, promptTokens, completionTokens, cost)
}

// recordSuccess debits the serving account's quota tiers and appends a
// ledger entry. Ledger failures here are impossible by construction
// (Ledger.RecordCost cannot error; a repository-backed ledger logs
// persistence failures and continues, per spec.md §7's propagation
// policy), which is why this is a void-returning best-effort step, not
// one that can fail Dispatch's response.
func (s *Service) recordSuccess(accountID, userID string, resp *core.ChatResponse) {
	totalTokens := uint64(resp.Usage.PromptTokens + resp.Usage.CompletionTokens)
	if accountID != "" {
		s.Accounts.RecordUsage(accountID, totalTokens, 1)
	}
	s.Ledger.RecordCost(resp.Provider, resp.Model, resp.Usage, resp.Cost, userID, resp.ID)
}
