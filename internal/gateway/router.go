package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
	"go.uber.org/zap"
)

// Adapter is the capability set the router dispatches onto, matching
// spec.md §4.3's {chat, list_models, health_check, provider} contract.
// internal/adapter.Provider satisfies this; the interface is declared
// here (not imported) to keep gateway free of a dependency on the
// concrete adapter package, mirroring the teacher's own avoidance of
// import cycles between llm and llm/factory.
type Adapter interface {
	Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)
	ListModels(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) bool
	Definition() core.ProviderConfig
}

// qualityOrder is the fixed substring ranking used by PreferenceQualityTier,
// per spec.md §4.2.
var qualityOrder = []string{"gpt-4", "claude-3-opus", "mistral-large", "gpt-3.5"}

// namedAdapter pairs a provider id with its adapter. NewRouter keeps
// them in ascending id order so tie-breaks are deterministic.
type namedAdapter struct {
	id      string
	adapter Adapter
}

// Router chooses an adapter for a ChatRequest with no explicit provider
// and orchestrates fallback across providers. Grounded on
// llm/router.go's struct/strategy-dispatch shape and on
// original_source/backend/router.rs for exact selection, fallback, and
// EMA semantics.
type Router struct {
	adapters []namedAdapter // immutable after construction

	mu              sync.Mutex
	roundRobin      uint64
	healthScores    map[string]float64

	logger *zap.Logger
}

// NewRouter builds a router over the given, already-filtered-to-enabled
// adapters. The adapter list is immutable post-construction, so it is
// safe for lock-free reads; only the round-robin counter and health
// table need synchronization.
func NewRouter(adapters map[string]Adapter, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		healthScores: make(map[string]float64),
		logger:       logger,
	}
	for id, a := range adapters {
		r.adapters = append(r.adapters, namedAdapter{id: id, adapter: a})
	}
	sort.Slice(r.adapters, func(i, j int) bool { return r.adapters[i].id < r.adapters[j].id })
	return r
}

// ListProviders returns the ids of every adapter known to the router.
func (r *Router) ListProviders() []string {
	ids := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		ids = append(ids, a.id)
	}
	return ids
}

func noProviders() error {
	return types.NewError(types.ErrNoProviders, "no providers available").WithHTTPStatus(503)
}

// SelectProvider applies one of the closed Preference rules and returns
// the chosen adapter. No fallback is attempted here — RouteWithFallback
// is the orchestration entry point; SelectProvider is its single-shot
// building block, also usable directly (spec.md's non-fallback `route`).
func (r *Router) SelectProvider(pref core.Preference, specificIdx int) (string, Adapter, error) {
	if len(r.adapters) == 0 {
		return "", nil, noProviders()
	}
	switch pref {
	case core.PreferenceLatencyOptimal:
		return r.selectFastest()
	case core.PreferenceQualityTier:
		return r.selectHighestQuality()
	case core.PreferenceLoadBalanced:
		return r.selectRoundRobin()
	case core.PreferenceSpecific:
		return r.selectByIndex(specificIdx)
	case core.PreferenceCostOptimal, "":
		fallthrough
	default:
		return r.selectCheapest()
	}
}

func (r *Router) selectCheapest() (string, Adapter, error) {
	var best namedAdapter
	bestCost := 0.0
	found := false
	for _, a := range r.adapters {
		p := a.adapter.Definition().Pricing
		cost := p.InputTokenCost + p.OutputTokenCost
		if !found || cost < bestCost {
			best, bestCost, found = a, cost, true
		}
	}
	if !found {
		return "", nil, noProviders()
	}
	return best.id, best.adapter, nil
}

func (r *Router) selectFastest() (string, Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best namedAdapter
	bestScore := -1.0
	found := false
	for _, a := range r.adapters {
		score, ok := r.healthScores[a.id]
		if !ok {
			score = 0.5
		}
		if !found || score > bestScore {
			best, bestScore, found = a, score, true
		}
	}
	if !found {
		return "", nil, noProviders()
	}
	return best.id, best.adapter, nil
}

func (r *Router) selectHighestQuality() (string, Adapter, error) {
	for _, quality := range qualityOrder {
		for _, a := range r.adapters {
			if strings.Contains(strings.ToLower(a.adapter.Definition().Name), quality) {
				return a.id, a.adapter, nil
			}
		}
	}
	if len(r.adapters) == 0 {
		return "", nil, noProviders()
	}
	return r.adapters[0].id, r.adapters[0].adapter, nil
}

func (r *Router) selectRoundRobin() (string, Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.adapters) == 0 {
		return "", nil, noProviders()
	}
	idx := int(r.roundRobin % uint64(len(r.adapters)))
	r.roundRobin++
	a := r.adapters[idx]
	return a.id, a.adapter, nil
}

func (r *Router) selectByIndex(idx int) (string, Adapter, error) {
	if idx < 0 || idx >= len(r.adapters) {
		return "", nil, types.NewError(types.ErrInvalidProviderIdx, "provider index out of bounds").WithHTTPStatus(400)
	}
	a := r.adapters[idx]
	return a.id, a.adapter, nil
}

// fallbackOrder returns adapters stable-sorted by descending health
// score (unknown = 0.5), a fresh copy each time so callers may range
// over it without holding the lock.
func (r *Router) fallbackOrder() []namedAdapter {
	r.mu.Lock()
	scores := make(map[string]float64, len(r.healthScores))
	for k, v := range r.healthScores {
		scores[k] = v
	}
	r.mu.Unlock()

	ordered := make([]namedAdapter, len(r.adapters))
	copy(ordered, r.adapters)

	score := func(id string) float64 {
		if s, ok := scores[id]; ok {
			return s
		}
		return 0.5
	}
	// stable insertion sort keeps ties at construction order, matching
	// the sort_by semantics in original_source/backend/router.rs.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && score(ordered[j].id) > score(ordered[j-1].id); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// updateHealth applies the EMA: new = 0.9*old + 0.1*(1 if success else 0).
func (r *Router) updateHealth(providerID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.healthScores[providerID]
	if !ok {
		current = 0.5
	}
	delta := 0.0
	if success {
		delta = 1.0
	}
	r.healthScores[providerID] = current*0.9 + 0.1*delta
}

// HealthScore returns the current EMA for a provider, 0.5 if unknown.
func (r *Router) HealthScore(providerID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.healthScores[providerID]; ok {
		return s
	}
	return 0.5
}

// RouteWithFallback is the router's main entry point.
//
// If the request carries an explicit provider, fallback is skipped
// entirely: the router calls exactly that adapter once and surfaces its
// error untouched (spec.md §4.2, §8 S4). Otherwise it first applies
// select() — the closed Preference rule (spec.md §2's "SmartRouter
// select()" diagram step) — to choose the primary attempt, then walks
// the remaining adapters in descending-health order on failure,
// updating the EMA on every attempt, and returns the first success or,
// when every attempt fails, the last attempt's error.
func (r *Router) RouteWithFallback(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if req.Provider != "" {
		return r.routeToProvider(ctx, req.Provider, req)
	}

	primaryID, primary, err := r.SelectProvider(req.Preference, req.PreferenceIdx)
	if err != nil {
		return nil, err
	}

	tried := map[string]bool{primaryID: true}
	attempt := func(id string, a Adapter) (*core.ChatResponse, error) {
		resp, err := a.Chat(ctx, req)
		if err == nil {
			r.updateHealth(id, true)
			return resp, nil
		}
		r.updateHealth(id, false)
		r.logger.Warn("provider failed, trying next",
			zap.String("provider", id), zap.Error(err))
		return nil, err
	}

	resp, lastErr := attempt(primaryID, primary)
	if lastErr == nil {
		return resp, nil
	}

	for _, a := range r.fallbackOrder() {
		if tried[a.id] {
			continue
		}
		tried[a.id] = true
		resp, err := attempt(a.id, a.adapter)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, types.NewError(types.ErrAllProvidersFailed, "all providers failed").WithHTTPStatus(503)
}

// routeToProvider dispatches to exactly one named adapter, no fallback.
func (r *Router) routeToProvider(ctx context.Context, providerID string, req *core.ChatRequest) (*core.ChatResponse, error) {
	var found *namedAdapter
	for i := range r.adapters {
		if strings.EqualFold(r.adapters[i].id, providerID) {
			found = &r.adapters[i]
			break
		}
	}
	if found == nil {
		return nil, types.NewError(types.ErrProviderNotFound, "provider not found: "+providerID).WithHTTPStatus(404)
	}

	resp, err := found.adapter.Chat(ctx, req)
	if err != nil {
		r.updateHealth(providerID, false)
		return nil, err
	}
	r.updateHealth(providerID, true)
	return resp, nil
}

// HealthCheckAll probes every adapter and folds the result into the
// health table, mirroring llm/router.go's periodic probe loop but
// invoked on demand (no background timer — see DESIGN.md).
func (r *Router) HealthCheckAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(r.adapters))
	for _, a := range r.adapters {
		healthy := a.adapter.HealthCheck(ctx)
		results[a.id] = healthy
		r.updateHealth(a.id, healthy)
	}
	return results
}
