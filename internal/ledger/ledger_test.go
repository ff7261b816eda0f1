package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/repository"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanRequest_NoBudgetAllows(t *testing.T) {
	l := New()
	err := l.CanRequest("u1", 100.0)
	assert.NoError(t, err)
}

func TestCanRequest_AdvisoryBudgetAllows(t *testing.T) {
	l := New()
	l.SetBudget("u1", 10.0, false, nil, 1)
	err := l.CanRequest("u1", 100.0)
	assert.NoError(t, err)
}

// S5 — budget block.
func TestCanRequest_EnforcedBudgetBlocks(t *testing.T) {
	l := New()
	l.SetBudget("u1", 10.0, true, nil, 1)
	l.RecordCost("openai", "gpt-4", core.Usage{PromptTokens: 100, CompletionTokens: 100}, 8.0, "u1", "req-1")

	err := l.CanRequest("u1", 3.0)
	require.Error(t, err)
	tErr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrBudgetExceeded, tErr.Code)

	assert.NoError(t, l.CanRequest("u1", 1.0))
}

func TestRecordCost_AppendsAndDebits(t *testing.T) {
	l := New()
	l.SetBudget("u1", 100.0, true, nil, 1)

	l.RecordCost("openai", "gpt-4", core.Usage{PromptTokens: 1000, CompletionTokens: 500}, 5.0, "u1", "req-1")
	l.RecordCost("anthropic", "claude-3-opus", core.Usage{PromptTokens: 2000, CompletionTokens: 1000}, 10.0, "u1", "req-2")

	b, ok := l.GetBudget("u1")
	require.True(t, ok)
	assert.InDelta(t, 15.0, b.SpentThisMonth, 0.0001)

	recent := l.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "req-2", recent[0].RequestID) // reverse chronological
}

func TestSummary_TotalsMatchFilteredEntries(t *testing.T) {
	l := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.WithClock(func() time.Time { return base })
	l.RecordCost("openai", "gpt-4", core.Usage{PromptTokens: 100, CompletionTokens: 50}, 1.0, "u1", "req-1")

	l.WithClock(func() time.Time { return base.Add(48 * time.Hour) })
	l.RecordCost("anthropic", "claude-3-opus", core.Usage{PromptTokens: 200, CompletionTokens: 100}, 2.0, "u2", "req-2")

	// Outside the window entirely.
	l.WithClock(func() time.Time { return base.Add(30 * 24 * time.Hour) })
	l.RecordCost("openai", "gpt-4", core.Usage{PromptTokens: 100, CompletionTokens: 50}, 1.0, "u1", "req-3")

	summary := l.Summary(base, base.Add(72*time.Hour))
	assert.InDelta(t, 3.0, summary.TotalCost, 0.0001)
	assert.Equal(t, 2, summary.TotalRequests)
	assert.InDelta(t, 1.0, summary.ByProvider["openai"], 0.0001)
	assert.InDelta(t, 2.0, summary.ByProvider["anthropic"], 0.0001)
}

func TestByUser_FiltersAndLimits(t *testing.T) {
	l := New()
	l.RecordCost("openai", "gpt-4", core.Usage{}, 1.0, "u1", "req-1")
	l.RecordCost("openai", "gpt-4", core.Usage{}, 1.0, "u2", "req-2")
	l.RecordCost("openai", "gpt-4", core.Usage{}, 1.0, "u1", "req-3")

	entries := l.ByUser("u1", 1)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-3", entries[0].RequestID)
}

func TestCheckAlerts_CrossedThresholds(t *testing.T) {
	l := New()
	l.SetBudget("u1", 10.0, true, []float64{0.5, 0.8, 0.9, 1.0}, 1)
	l.RecordCost("openai", "gpt-4", core.Usage{}, 8.5, "u1", "req-1")

	alerts := l.CheckAlerts("u1")
	assert.Len(t, alerts, 2) // 0.5 and 0.8 crossed, not 0.9/1.0
}

func TestLazyMonthlyReset(t *testing.T) {
	l := New()
	day := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	l.WithClock(func() time.Time { return day })
	l.SetBudget("u1", 10.0, true, nil, 1)
	l.RecordCost("openai", "gpt-4", core.Usage{}, 9.0, "u1", "req-1")

	b, _ := l.GetBudget("u1")
	assert.InDelta(t, 9.0, b.SpentThisMonth, 0.0001)

	nextMonth := time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC)
	l.WithClock(func() time.Time { return nextMonth })
	l.RecordCost("openai", "gpt-4", core.Usage{}, 1.0, "u1", "req-2")

	b, _ = l.GetBudget("u1")
	assert.InDelta(t, 1.0, b.SpentThisMonth, 0.0001) // reset, then debited
}

// TestLedger_PersistsToRepository confirms RecordCost/SetBudget reach
// the attached repository (spec.md §3's "persisted on mutation"), and
// that LoadFromRepository seeds a fresh ledger from it.
func TestLedger_PersistsToRepository(t *testing.T) {
	costRepo := repository.NewMemoryCostRepository()
	budgetRepo := repository.NewMemoryBudgetRepository()
	l := New().WithRepository(costRepo, budgetRepo, nil)

	l.SetBudget("u1", 10.0, true, nil, 1)
	l.RecordCost("openai", "gpt-4", core.Usage{PromptTokens: 10, CompletionTokens: 5}, 1.0, "u1", "req-1")

	entries, err := costRepo.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].RequestID)

	budgets, err := budgetRepo.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.InDelta(t, 1.0, budgets[0].SpentThisMonth, 0.0001)

	fresh := New().WithRepository(costRepo, budgetRepo, nil)
	require.NoError(t, fresh.LoadFromRepository(context.Background()))
	recent := fresh.Recent(10)
	require.Len(t, recent, 1)
	b, ok := fresh.GetBudget("u1")
	require.True(t, ok)
	assert.InDelta(t, 1.0, b.SpentThisMonth, 0.0001)
}
