// Package ledger implements the Cost & Budget Ledger (C4): per-request
// cost computation bookkeeping, an append-only cost ledger, and
// pre-request admission against monthly budgets.
//
// Grounded on llm/observability/cost.go's CostCalculator/CostTracker
// (price table + running summary shape, generalized from per-1K to
// per-1e6 token pricing to match core.Pricing) and
// llm/budget/token_budget.go's lazy-window counter style, simplified to
// the single monthly window spec.md names instead of the teacher's
// minute/hour/day ladder.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/repository"
	"github.com/BaSui01/agentflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEstimatedCost is the fixed small pre-dispatch estimate spec.md
// §4.4 names, used by admission when the caller has no sharper figure.
const DefaultEstimatedCost = 0.01

// CostEntry and Budget are the wire/persistence shapes, defined in
// internal/core so internal/repository can depend on them without a
// cycle back through internal/ledger (see core/ledger.go).
type CostEntry = core.CostEntry
type Budget = core.Budget

// Clock is overridable for deterministic tests.
type Clock func() time.Time

// Ledger holds the append-only cost entries and per-entity budgets
// behind a single critical section, per spec.md §5's "append-only
// vector under one lock, plus a per-user-budget map under the same (or
// a finer) lock" shared-resource policy.
type Ledger struct {
	mu       sync.Mutex
	entries  []CostEntry
	budgets  map[string]*Budget
	clock    Clock

	costRepo   repository.CostRepository
	budgetRepo repository.BudgetRepository
	logger     *zap.Logger
}

// New creates an empty ledger with no backing repository (pure
// in-memory, the default per spec.md §6's repository port being
// optional enrichment).
func New() *Ledger {
	return &Ledger{
		budgets: make(map[string]*Budget),
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
}

// WithClock overrides the ledger's clock (tests only).
func (l *Ledger) WithClock(c Clock) *Ledger {
	l.clock = c
	return l
}

// WithRepository attaches the cost/budget persistence port spec.md §6
// names. Every subsequent RecordCost/SetBudget best-effort persists to
// it; persistence failures are logged and never roll back in-memory
// state or fail the caller, per spec.md §4.1's propagation policy
// generalized from accounts to the ledger.
func (l *Ledger) WithRepository(costRepo repository.CostRepository, budgetRepo repository.BudgetRepository, logger *zap.Logger) *Ledger {
	l.costRepo = costRepo
	l.budgetRepo = budgetRepo
	if logger != nil {
		l.logger = logger
	}
	return l
}

// LoadFromRepository seeds the ledger's in-memory entries and budgets
// from the attached repository, per spec.md §6's "load at startup"
// contract. A no-op if WithRepository was never called.
func (l *Ledger) LoadFromRepository(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.costRepo != nil {
		entries, err := l.costRepo.LoadAll(ctx)
		if err != nil {
			return err
		}
		l.entries = entries
	}
	if l.budgetRepo != nil {
		budgets, err := l.budgetRepo.LoadAll(ctx)
		if err != nil {
			return err
		}
		for i := range budgets {
			b := budgets[i]
			l.budgets[b.EntityID] = &b
		}
	}
	return nil
}

func (l *Ledger) persistBudgetLocked(ctx context.Context, b *Budget) {
	if l.budgetRepo == nil {
		return
	}
	if err := l.budgetRepo.Upsert(ctx, *b); err != nil {
		l.logger.Warn("failed to persist budget", zap.String("entity_id", b.EntityID), zap.Error(err))
	}
}

// SetBudget upserts a budget record for entityID. Existing spend is
// preserved unless the caller is defining the budget for the first time.
func (l *Ledger) SetBudget(entityID string, monthlyLimit float64, enforce bool, alertThresholds []float64, resetDayOfMonth int) *Budget {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[entityID]
	if !ok {
		b = &Budget{EntityID: entityID}
		l.budgets[entityID] = b
	}
	b.MonthlyLimit = monthlyLimit
	b.Enforce = enforce
	if alertThresholds != nil {
		b.AlertThresholds = alertThresholds
	}
	if resetDayOfMonth > 0 {
		b.ResetDayOfMonth = resetDayOfMonth
	}
	l.persistBudgetLocked(context.Background(), b)
	return b
}

// GetBudget returns the budget for entityID, if one exists.
func (l *Ledger) GetBudget(entityID string) (Budget, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[entityID]
	if !ok {
		return Budget{}, false
	}
	return *b, true
}

// CanRequest is the pre-dispatch admission check (spec.md §4.4).
// Absent budget, or enforce=false, always allows. Returns
// BudgetExceeded when spent_this_month + estimatedCost would exceed
// monthly_limit.
func (l *Ledger) CanRequest(userID string, estimatedCost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[userID]
	if !ok || !b.Enforce {
		return nil
	}
	l.lazyResetLocked(b, l.clock())
	if b.SpentThisMonth+estimatedCost > b.MonthlyLimit {
		return types.NewError(types.ErrBudgetExceeded, "monthly budget exceeded for "+userID).
			WithHTTPStatus(402)
	}
	return nil
}

// lazyResetLocked zeroes spent_this_month the first time a read/record
// observes a timestamp on or after reset_day_of_month in a new calendar
// month, per spec.md §4.4. Caller must hold l.mu.
func (l *Ledger) lazyResetLocked(b *Budget, now time.Time) {
	if b.ResetDayOfMonth <= 0 {
		return
	}
	if now.Day() < b.ResetDayOfMonth {
		return
	}
	if !b.LastResetDay.IsZero() &&
		b.LastResetDay.Year() == now.Year() &&
		b.LastResetDay.Month() == now.Month() {
		return
	}
	b.SpentThisMonth = 0
	b.LastResetDay = now
}

// RecordCost appends a CostEntry and debits the user's budget, both
// under one critical section. Cost-record failures after a successful
// upstream call must never fail the caller's response (spec.md §7) —
// this method itself cannot fail; persistence to an attached repository
// is best-effort, with failures logged.
func (l *Ledger) RecordCost(provider, model string, usage core.Usage, cost float64, userID, requestID string) CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	entry := CostEntry{
		ID:           uuid.NewString(),
		Timestamp:    now,
		Provider:     provider,
		Model:        model,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		CostUSD:      cost,
		UserID:       userID,
		RequestID:    requestID,
	}
	l.entries = append(l.entries, entry)
	if l.costRepo != nil {
		if err := l.costRepo.Append(context.Background(), entry); err != nil {
			l.logger.Warn("failed to persist cost entry", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	if userID != "" {
		b, ok := l.budgets[userID]
		if !ok {
			b = &Budget{EntityID: userID, ResetDayOfMonth: 1}
			l.budgets[userID] = b
		}
		l.lazyResetLocked(b, now)
		b.SpentThisMonth += cost
		l.persistBudgetLocked(context.Background(), b)
	}
	return entry
}

// Summary is the aggregate + breakdown view summary(start, end) returns.
type Summary struct {
	TotalCost      float64            `json:"total_cost"`
	TotalRequests  int                `json:"total_requests"`
	TotalTokens    int                `json:"total_tokens"`
	ByProvider     map[string]float64 `json:"by_provider"`
	ByModel        map[string]float64 `json:"by_model"`
	ByUser         map[string]float64 `json:"by_user"`
}

// Summary filters ledger entries to [start, end] and totals them plus
// breakdowns by provider, model, and user.
func (l *Ledger) Summary(start, end time.Time) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{
		ByProvider: make(map[string]float64),
		ByModel:    make(map[string]float64),
		ByUser:     make(map[string]float64),
	}
	for _, e := range l.entries {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		s.TotalCost += e.CostUSD
		s.TotalRequests++
		s.TotalTokens += e.InputTokens + e.OutputTokens
		s.ByProvider[e.Provider] += e.CostUSD
		s.ByModel[e.Model] += e.CostUSD
		if e.UserID != "" {
			s.ByUser[e.UserID] += e.CostUSD
		}
	}
	return s
}

// Recent returns the last N entries in reverse-chronological order.
func (l *Ledger) Recent(limit int) []CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lastN(l.entries, limit, func(CostEntry) bool { return true })
}

// ByUser returns the last N entries for a given user, in
// reverse-chronological order.
func (l *Ledger) ByUser(userID string, limit int) []CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lastN(l.entries, limit, func(e CostEntry) bool { return e.UserID == userID })
}

func lastN(entries []CostEntry, limit int, match func(CostEntry) bool) []CostEntry {
	var matched []CostEntry
	for _, e := range entries {
		if match(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// CheckAlerts returns one message per alert_thresholds fraction crossed
// by spent_this_month / monthly_limit, stateless (spec.md §4.4) — the
// caller is responsible for suppressing repeats across calls.
func (l *Ledger) CheckAlerts(entityID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[entityID]
	if !ok || b.MonthlyLimit <= 0 {
		return nil
	}
	ratio := b.SpentThisMonth / b.MonthlyLimit
	var alerts []string
	for _, threshold := range b.AlertThresholds {
		if ratio >= threshold {
			alerts = append(alerts, alertMessage(entityID, threshold, ratio))
		}
	}
	return alerts
}

func alertMessage(entityID string, threshold, ratio float64) string {
	return fmt.Sprintf("%s crossed %.0f%% of monthly budget (currently %.0f%%)", entityID, threshold*100, ratio*100)
}
