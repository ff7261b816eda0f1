package gateway

import (
	"context"
	"testing"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is a scripted Adapter used to exercise Router in isolation
// from any real wire protocol.
type fakeAdapter struct {
	def     core.ProviderConfig
	err     error
	healthy bool
	calls   int
}

func (f *fakeAdapter) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &core.ChatResponse{ID: "r1", Provider: f.def.ID, Model: req.Model}, nil
}

func (f *fakeAdapter) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) bool             { return f.healthy }
func (f *fakeAdapter) Definition() core.ProviderConfig                  { return f.def }

func TestRouter_SelectCheapest(t *testing.T) {
	cheap := &fakeAdapter{def: core.ProviderConfig{ID: "cheap", Pricing: core.Pricing{InputTokenCost: 1, OutputTokenCost: 1}}}
	pricey := &fakeAdapter{def: core.ProviderConfig{ID: "pricey", Pricing: core.Pricing{InputTokenCost: 10, OutputTokenCost: 10}}}
	r := NewRouter(map[string]Adapter{"cheap": cheap, "pricey": pricey}, nil)

	id, _, err := r.SelectProvider(core.PreferenceCostOptimal, 0)
	require.NoError(t, err)
	assert.Equal(t, "cheap", id)
}

func TestRouter_SelectHighestQuality(t *testing.T) {
	a := &fakeAdapter{def: core.ProviderConfig{ID: "a", Name: "gpt-3.5-turbo"}}
	b := &fakeAdapter{def: core.ProviderConfig{ID: "b", Name: "claude-3-opus-20240229"}}
	r := NewRouter(map[string]Adapter{"a": a, "b": b}, nil)

	id, _, err := r.SelectProvider(core.PreferenceQualityTier, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestRouter_SelectByIndexOutOfBounds(t *testing.T) {
	r := NewRouter(map[string]Adapter{"a": &fakeAdapter{def: core.ProviderConfig{ID: "a"}}}, nil)
	_, _, err := r.SelectProvider(core.PreferenceSpecific, 5)
	assert.Error(t, err)
}

func TestRouter_SelectRoundRobinCycles(t *testing.T) {
	r := NewRouter(map[string]Adapter{
		"a": &fakeAdapter{def: core.ProviderConfig{ID: "a"}},
	}, nil)
	id1, _, err := r.SelectProvider(core.PreferenceLoadBalanced, 0)
	require.NoError(t, err)
	id2, _, err := r.SelectProvider(core.PreferenceLoadBalanced, 0)
	require.NoError(t, err)
	assert.Equal(t, id1, id2) // single adapter always wins
}

func TestRouter_NoProvidersError(t *testing.T) {
	r := NewRouter(nil, nil)
	_, _, err := r.SelectProvider(core.PreferenceCostOptimal, 0)
	assert.Error(t, err)
}

func TestRouter_RouteWithFallback_FallsBackOnFailure(t *testing.T) {
	// bad is strictly cheaper so CostOptimal (the default preference)
	// always picks it first; its failure must fall through to good.
	bad := &fakeAdapter{def: core.ProviderConfig{ID: "bad", Pricing: core.Pricing{InputTokenCost: 1, OutputTokenCost: 1}}, err: types.NewError(types.ErrProviderTimeout, "timeout").WithRetryable(true)}
	good := &fakeAdapter{def: core.ProviderConfig{ID: "good", Pricing: core.Pricing{InputTokenCost: 10, OutputTokenCost: 10}}}
	r := NewRouter(map[string]Adapter{"bad": bad, "good": good}, nil)

	resp, err := r.RouteWithFallback(context.Background(), &core.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "good", resp.Provider)
	assert.Equal(t, 1, bad.calls)
}

func TestRouter_RouteWithFallback_AllFail(t *testing.T) {
	bad1 := &fakeAdapter{def: core.ProviderConfig{ID: "bad1"}, err: types.NewError(types.ErrProviderTimeout, "timeout").WithRetryable(true)}
	bad2 := &fakeAdapter{def: core.ProviderConfig{ID: "bad2"}, err: types.NewError(types.ErrProviderTimeout, "timeout").WithRetryable(true)}
	r := NewRouter(map[string]Adapter{"bad1": bad1, "bad2": bad2}, nil)

	_, err := r.RouteWithFallback(context.Background(), &core.ChatRequest{Model: "m"})
	assert.Error(t, err)
	assert.Equal(t, 1, bad1.calls)
	assert.Equal(t, 1, bad2.calls)
}

// TestRouter_RouteWithFallback_HonorsPreference confirms the request's
// Preference field actually drives the primary attempt (spec.md §8 S3),
// not just the standalone SelectProvider call.
func TestRouter_RouteWithFallback_HonorsPreference(t *testing.T) {
	cheap := &fakeAdapter{def: core.ProviderConfig{ID: "cheap", Pricing: core.Pricing{InputTokenCost: 1, OutputTokenCost: 2}}}
	expensive := &fakeAdapter{def: core.ProviderConfig{ID: "expensive", Name: "gpt-4-turbo", Pricing: core.Pricing{InputTokenCost: 30, OutputTokenCost: 60}}}
	r := NewRouter(map[string]Adapter{"cheap": cheap, "expensive": expensive}, nil)

	resp, err := r.RouteWithFallback(context.Background(), &core.ChatRequest{Model: "m", Preference: core.PreferenceCostOptimal})
	require.NoError(t, err)
	assert.Equal(t, "cheap", resp.Provider)
	assert.Equal(t, 0, expensive.calls)

	resp, err = r.RouteWithFallback(context.Background(), &core.ChatRequest{Model: "m", Preference: core.PreferenceQualityTier})
	require.NoError(t, err)
	assert.Equal(t, "expensive", resp.Provider)
}

func TestRouter_RouteWithFallback_ExplicitProviderSkipsFallback(t *testing.T) {
	named := &fakeAdapter{def: core.ProviderConfig{ID: "named"}, err: types.NewError(types.ErrAuthFailed, "bad key")}
	other := &fakeAdapter{def: core.ProviderConfig{ID: "other"}}
	r := NewRouter(map[string]Adapter{"named": named, "other": other}, nil)

	_, err := r.RouteWithFallback(context.Background(), &core.ChatRequest{Model: "m", Provider: "named"})
	assert.Error(t, err)
	assert.Equal(t, 0, other.calls)
}

func TestRouter_UpdateHealthEMA(t *testing.T) {
	r := NewRouter(map[string]Adapter{"a": &fakeAdapter{def: core.ProviderConfig{ID: "a"}}}, nil)
	assert.Equal(t, 0.5, r.HealthScore("a"))
	r.updateHealth("a", true)
	assert.InDelta(t, 0.55, r.HealthScore("a"), 0.0001)
	r.updateHealth("a", false)
	assert.InDelta(t, 0.495, r.HealthScore("a"), 0.0001)
}

func TestRouter_HealthCheckAll(t *testing.T) {
	healthy := &fakeAdapter{def: core.ProviderConfig{ID: "a"}, healthy: true}
	unhealthy := &fakeAdapter{def: core.ProviderConfig{ID: "b"}, healthy: false}
	r := NewRouter(map[string]Adapter{"a": healthy, "b": unhealthy}, nil)

	results := r.HealthCheckAll(context.Background())
	assert.True(t, results["a"])
	assert.False(t, results["b"])
}

func TestRouter_ListProviders(t *testing.T) {
	r := NewRouter(map[string]Adapter{"a": &fakeAdapter{def: core.ProviderConfig{ID: "a"}}}, nil)
	assert.Equal(t, []string{"a"}, r.ListProviders())
}
