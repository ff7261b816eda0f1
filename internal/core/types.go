// Package core holds the shared data model for the LLM gateway dispatch
// path: provider definitions, accounts, quotas, and the chat request/
// response contract exchanged between the router and the adapter layer.
//
// It has no dependency on internal/gateway, internal/adapter, or
// internal/ledger so that all three can import it without creating a
// cycle — the same discipline the top-level types package uses for
// Message/Error.
package core

import (
	"time"

	"github.com/BaSui01/agentflow/types"
)

// QuotaPeriod is one of the fixed time windows a quota tier tracks.
type QuotaPeriod string

const (
	QuotaMinute QuotaPeriod = "minute"
	QuotaHour   QuotaPeriod = "hour"
	QuotaDay    QuotaPeriod = "day"
	QuotaMonth  QuotaPeriod = "month"
)

// Duration returns the fixed window length for the period.
func (p QuotaPeriod) Duration() time.Duration {
	switch p {
	case QuotaMinute:
		return time.Minute
	case QuotaHour:
		return time.Hour
	case QuotaDay:
		return 24 * time.Hour
	case QuotaMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// AllQuotaPeriods lists every supported period, in ascending duration.
func AllQuotaPeriods() []QuotaPeriod {
	return []QuotaPeriod{QuotaMinute, QuotaHour, QuotaDay, QuotaMonth}
}

// QuotaTier is one time-windowed usage budget for an account.
//
// Reset is lazy: any read that observes expiry (now >= period_start +
// period.Duration()) zeroes tokens_used/requests_used and restarts
// period_start at that read. tokens_used may transiently exceed
// token_limit after a high-count record; HasQuota then returns false
// until the window rolls over.
type QuotaTier struct {
	Period        QuotaPeriod `json:"period"`
	TokenLimit    uint64      `json:"token_limit"`
	RequestLimit  *uint64     `json:"request_limit,omitempty"`
	TokensUsed    uint64      `json:"tokens_used"`
	RequestsUsed  uint64      `json:"requests_used"`
	PeriodStart   time.Time   `json:"period_start"`
}

// NewQuotaTier creates a fresh tier starting its window now.
func NewQuotaTier(period QuotaPeriod, tokenLimit uint64, requestLimit *uint64) *QuotaTier {
	return &QuotaTier{
		Period:       period,
		TokenLimit:   tokenLimit,
		RequestLimit: requestLimit,
		PeriodStart:  time.Now(),
	}
}

// IsExpired reports whether the tier's window has rolled over.
func (t *QuotaTier) IsExpired(now time.Time) bool {
	return !now.Before(t.PeriodStart.Add(t.Period.Duration()))
}

// ResetIfExpired lazily resets the tier if its window has elapsed.
// Returns true if a reset occurred.
func (t *QuotaTier) ResetIfExpired(now time.Time) bool {
	if !t.IsExpired(now) {
		return false
	}
	t.TokensUsed = 0
	t.RequestsUsed = 0
	t.PeriodStart = now
	return true
}

// HasQuotaAvailable is the non-mutating check: the window already
// expired (so it would reset on the next read), or both counters are
// still under their limits.
func (t *QuotaTier) HasQuotaAvailable(now time.Time) bool {
	if t.IsExpired(now) {
		return true
	}
	if t.TokensUsed >= t.TokenLimit {
		return false
	}
	if t.RequestLimit != nil && t.RequestsUsed >= *t.RequestLimit {
		return false
	}
	return true
}

// HasQuota resets the tier if expired, then checks availability.
func (t *QuotaTier) HasQuota(now time.Time) bool {
	t.ResetIfExpired(now)
	return t.HasQuotaAvailable(now)
}

// RecordUsage lazily resets then debits tokens/requests.
func (t *QuotaTier) RecordUsage(now time.Time, tokens, requests uint64) {
	t.ResetIfExpired(now)
	t.TokensUsed += tokens
	t.RequestsUsed += requests
}

// RemainingTokens returns token_limit - tokens_used, floored at zero.
func (t *QuotaTier) RemainingTokens() uint64 {
	if t.TokensUsed >= t.TokenLimit {
		return 0
	}
	return t.TokenLimit - t.TokensUsed
}

// TimeUntilReset returns how long until the window rolls over.
func (t *QuotaTier) TimeUntilReset(now time.Time) time.Duration {
	resetAt := t.PeriodStart.Add(t.Period.Duration())
	if !now.Before(resetAt) {
		return 0
	}
	return resetAt.Sub(now)
}

// UsagePercentage is tokens_used / token_limit * 100, 0 if unlimited.
func (t *QuotaTier) UsagePercentage() float64 {
	if t.TokenLimit == 0 {
		return 0
	}
	return float64(t.TokensUsed) / float64(t.TokenLimit) * 100
}

// AccountConfigType discriminates the AccountConfig tagged union on the
// wire ("type" field, snake_case per the external interface contract).
type AccountConfigType string

const (
	ConfigAPIKey   AccountConfigType = "api_key"
	ConfigAzure    AccountConfigType = "azure"
	ConfigAws      AccountConfigType = "aws"
	ConfigVectorDb AccountConfigType = "vector_db"
)

// AccountConfig is the tagged union of credential shapes a
// ProviderAccount may carry. Exactly one of the embedded pointers is
// non-nil, matching Type.
type AccountConfig struct {
	Type AccountConfigType `json:"type"`

	APIKey   *APIKeyConfig   `json:"api_key,omitempty"`
	Azure    *AzureConfig    `json:"azure,omitempty"`
	Aws      *AwsConfig      `json:"aws,omitempty"`
	VectorDb *VectorDbConfig `json:"vector_db,omitempty"`
}

// APIKeyConfig is the credential shape for bearer/header-key providers
// (OpenAI, Anthropic, Mistral, Gemini, Cohere, Groq, Together, local).
type APIKeyConfig struct {
	Key            string `json:"key"`
	Org            string `json:"org,omitempty"`
	CustomEndpoint string `json:"custom_endpoint,omitempty"`
}

// AzureConfig is the credential shape for Azure OpenAI deployments.
type AzureConfig struct {
	Endpoint   string `json:"endpoint"`
	Deployment string `json:"deployment"`
	APIVersion string `json:"api_version"`
	Key        string `json:"key"`
}

// AwsConfig is the credential shape for AWS Bedrock.
type AwsConfig struct {
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// VectorDbConfig is the credential shape for vector-store providers.
// Kept on the tagged union for wire compatibility even though vector
// stores are out of the dispatch core's scope.
type VectorDbConfig struct {
	URL        string `json:"url"`
	Key        string `json:"key,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// ModelDescriptor names one model an account can serve, with optional
// per-model pricing overriding the provider definition's default.
type ModelDescriptor struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	InputTokenCost   *float64 `json:"input_token_cost,omitempty"`  // USD per 1e6 tokens
	OutputTokenCost  *float64 `json:"output_token_cost,omitempty"` // USD per 1e6 tokens
}

// ProviderAccount is one credential bundle for one provider.
type ProviderAccount struct {
	ID         string                        `json:"id"`
	Name       string                        `json:"name"`
	ProviderID string                        `json:"provider_id"`
	Config     AccountConfig                 `json:"config"`
	Enabled    bool                          `json:"enabled"`
	IsDefault  bool                          `json:"is_default"`
	Priority   int                           `json:"priority"`
	Models     []ModelDescriptor             `json:"models"`
	Quotas     map[QuotaPeriod]*QuotaTier    `json:"quotas"`
	CreatedAt  time.Time                     `json:"created_at"`
	UpdatedAt  time.Time                     `json:"updated_at"`
}

// HasQuotaAvailable reports whether every tier on the account still has
// room (non-mutating). An account with no tiers is unlimited.
func (a *ProviderAccount) HasQuotaAvailable(now time.Time) bool {
	for _, tier := range a.Quotas {
		if !tier.HasQuotaAvailable(now) {
			return false
		}
	}
	return true
}

// HasQuota lazily resets every tier, then checks availability.
func (a *ProviderAccount) HasQuota(now time.Time) bool {
	for _, tier := range a.Quotas {
		if !tier.HasQuota(now) {
			return false
		}
	}
	return true
}

// RecordUsage debits tokens/requests across every tier independently.
func (a *ProviderAccount) RecordUsage(now time.Time, tokens, requests uint64) {
	for _, tier := range a.Quotas {
		tier.RecordUsage(now, tokens, requests)
	}
	a.UpdatedAt = now
}

// MinRemainingTokens is the most restrictive remaining-token count
// across tiers; math.MaxUint64 if the account carries no tiers.
func (a *ProviderAccount) MinRemainingTokens() uint64 {
	var min uint64 = ^uint64(0)
	found := false
	for _, tier := range a.Quotas {
		r := tier.RemainingTokens()
		if !found || r < min {
			min = r
			found = true
		}
	}
	return min
}

// BlockingTier returns the first tier (in lazily-reset order) that is
// currently out of quota, or ("", false) if none is blocking.
func (a *ProviderAccount) BlockingTier(now time.Time) (QuotaPeriod, bool) {
	for _, period := range AllQuotaPeriods() {
		tier, ok := a.Quotas[period]
		if !ok {
			continue
		}
		if !tier.HasQuota(now) {
			return period, true
		}
	}
	return "", false
}

// ProviderCategory distinguishes LLM/embedding providers from vector
// stores, which are out of the dispatch core's scope but still named on
// the static definition table for admin-surface completeness.
type ProviderCategory string

const (
	CategoryLLMEmbedding ProviderCategory = "llm_embedding"
	CategoryVectorDB     ProviderCategory = "vector_db"
)

// ProviderKind is the capability a provider definition exposes.
type ProviderKind string

const (
	KindLLM       ProviderKind = "llm"
	KindEmbedding ProviderKind = "embedding"
	KindBoth      ProviderKind = "both"
	KindVectorDB  ProviderKind = "vector_db"
)

// ProviderDefinition is a static capability record, created at boot and
// never mutated thereafter.
type ProviderDefinition struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Category             ProviderCategory  `json:"category"`
	Kind                 ProviderKind      `json:"kind"`
	RequiresAzureConfig  bool              `json:"requires_azure_config"`
	RequiresAwsConfig    bool              `json:"requires_aws_config"`
	DefaultModels        []ModelDescriptor `json:"default_models"`
	SupportedQuotaPeriods []QuotaPeriod    `json:"supported_quota_periods"`
}

// Preference is the closed set of router ranking rules a request may
// request explicitly; it defaults to CostOptimal.
type Preference string

const (
	PreferenceCostOptimal    Preference = "cost_optimal"
	PreferenceLatencyOptimal Preference = "latency_optimal"
	PreferenceQualityTier    Preference = "quality_tier"
	PreferenceLoadBalanced   Preference = "load_balanced"
	PreferenceSpecific       Preference = "specific_provider"
)

// ChatRequest is the uniform inbound request shape. Role is reused from
// the framework-wide types package so every adapter speaks the same
// message model the rest of agentflow does.
type ChatRequest struct {
	Model          string            `json:"model"`
	Provider       string            `json:"provider,omitempty"`
	Messages       []types.Message   `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	TopP           float64           `json:"top_p,omitempty"`
	Stop           []string          `json:"stop,omitempty"`
	Preference     Preference        `json:"preference,omitempty"`
	PreferenceIdx  int               `json:"-"` // index for PreferenceSpecific, not wire-visible
	UserID         string            `json:"user_id,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// ChatChoice is one completion candidate.
type ChatChoice struct {
	Index        int           `json:"index"`
	Message      types.Message `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// Usage is the upstream-reported token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the uniform outbound response shape.
type ChatResponse struct {
	ID        string       `json:"id"`
	Provider  string       `json:"provider"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     Usage        `json:"usage"`
	Created   time.Time    `json:"created"`
	LatencyMS int64        `json:"latency_ms"`
	Cost      float64      `json:"cost"`
}

// Pricing is the per-token cost a provider config carries, expressed in
// USD per one million tokens (spec unit, distinct from the teacher's
// original per-1K-token pricing tables).
type Pricing struct {
	InputTokenCost  float64 `json:"input_token_cost"`
	OutputTokenCost float64 `json:"output_token_cost"`
}

// Cost computes prompt/completion cost under this pricing.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1e6*p.InputTokenCost + float64(completionTokens)/1e6*p.OutputTokenCost
}

// ProviderConfig is what an adapter exposes about itself to the router:
// identity, pricing, and transport basics — the capability set spec.md
// names as provider().
type ProviderConfig struct {
	ID       string
	Name     string
	Pricing  Pricing
	Headers  map[string]string
	BaseURL  string
}
