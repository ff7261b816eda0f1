package core

import "time"

// CostEntry is one append-only Cost & Budget Ledger record (spec.md §3).
// Defined in core, not internal/ledger, so internal/repository can
// depend on the wire shape without ledger needing to import the
// repository port back (which would cycle, since repository already
// needs these types to persist them) — the same "shared model, no
// upward dependency" discipline this package uses for ProviderAccount.
type CostEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	UserID       string    `json:"user_id"`
	RequestID    string    `json:"request_id"`
}

// Budget is a per-entity monthly spend cap (spec.md §3). LastResetDay is
// exported (unlike an earlier revision's unexported field) specifically
// so internal/repository can round-trip it through a SQL row without
// internal/ledger needing to expose a setter.
type Budget struct {
	EntityID        string    `json:"entity_id"`
	MonthlyLimit    float64   `json:"monthly_limit"`
	SpentThisMonth  float64   `json:"spent_this_month"`
	Enforce         bool      `json:"enforce"`
	AlertThresholds []float64 `json:"alert_thresholds"`
	ResetDayOfMonth int       `json:"reset_day_of_month"`
	LastResetDay    time.Time `json:"last_reset_day,omitempty"`
}
