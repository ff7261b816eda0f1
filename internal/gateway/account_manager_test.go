package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(id, providerID string, tokenLimit uint64) *core.ProviderAccount {
	return &core.ProviderAccount{
		ID:         id,
		ProviderID: providerID,
		Enabled:    true,
		Quotas: map[core.QuotaPeriod]*core.QuotaTier{
			core.QuotaMonth: core.NewQuotaTier(core.QuotaMonth, tokenLimit, nil),
		},
	}
}

func TestAccountManager_AddFirstAccountBecomesDefault(t *testing.T) {
	m := NewAccountManager(nil)
	acc, err := m.Add(newAccount("a1", "openai", 1000))
	require.NoError(t, err)
	assert.True(t, acc.IsDefault)

	acc2, err := m.Add(newAccount("a2", "openai", 1000))
	require.NoError(t, err)
	assert.False(t, acc2.IsDefault)
}

func TestAccountManager_AddDuplicateIDFails(t *testing.T) {
	m := NewAccountManager(nil)
	_, err := m.Add(newAccount("a1", "openai", 1000))
	require.NoError(t, err)
	_, err = m.Add(newAccount("a1", "openai", 1000))
	assert.Error(t, err)
}

func TestAccountManager_PickReturnsDefaultWhenAvailable(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 1000))
	m.Add(newAccount("a2", "openai", 1000))

	picked := m.Pick("openai")
	require.NotNil(t, picked)
	assert.Equal(t, "a1", picked.ID)
}

func TestAccountManager_PickFallsBackAndShelvesWhenDefaultExhausted(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	m.Add(newAccount("a2", "openai", 1000))

	m.RecordUsage("a1", 10, 1)

	picked := m.Pick("openai")
	require.NotNil(t, picked)
	assert.Equal(t, "a2", picked.ID)
	assert.Equal(t, "a1", m.originalDefault["openai"])
}

func TestAccountManager_PickReturnsToPrimaryOnceQuotaRefills(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewAccountManager(nil).WithClock(clock)

	acc1 := newAccount("a1", "openai", 10)
	acc2 := newAccount("a2", "openai", 1000)
	m.Add(acc1)
	m.Add(acc2)
	m.RecordUsage("a1", 10, 1)

	picked := m.Pick("openai")
	require.NotNil(t, picked)
	assert.Equal(t, "a2", picked.ID)

	// Roll the clock past a1's monthly window so its tier lazily resets.
	now = now.Add(core.QuotaMonth.Duration() + time.Hour)
	picked = m.Pick("openai")
	require.NotNil(t, picked)
	assert.Equal(t, "a1", picked.ID)
	_, stillShelved := m.originalDefault["openai"]
	assert.False(t, stillShelved)
}

func TestAccountManager_PickReturnsNilWhenNoAccountHasQuota(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	m.RecordUsage("a1", 10, 1)
	assert.Nil(t, m.Pick("openai"))
}

func TestAccountManager_SetDefaultClearsShelvedEntry(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	m.Add(newAccount("a2", "openai", 1000))
	m.RecordUsage("a1", 10, 1)
	m.Pick("openai")
	require.Contains(t, m.originalDefault, "openai")

	require.NoError(t, m.SetDefault("openai", "a2"))
	_, shelved := m.originalDefault["openai"]
	assert.False(t, shelved)

	acc1, _ := m.Get("a1")
	acc2, _ := m.Get("a2")
	assert.False(t, acc1.IsDefault)
	assert.True(t, acc2.IsDefault)
}

func TestAccountManager_SetDefaultUnknownAccountFails(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	assert.Error(t, m.SetDefault("openai", "missing"))
}

func TestAccountManager_UpdatePatchesQuotas(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))

	newName := "renamed"
	acc, err := m.Update("a1", AccountPatch{
		Name:      &newName,
		SetQuotas: []*core.QuotaTier{core.NewQuotaTier(core.QuotaDay, 500, nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", acc.Name)
	assert.Contains(t, acc.Quotas, core.QuotaDay)

	_, err = m.Update("a1", AccountPatch{RemoveQuotas: []core.QuotaPeriod{core.QuotaDay}})
	require.NoError(t, err)
	acc, _ = m.Get("a1")
	assert.NotContains(t, acc.Quotas, core.QuotaDay)
}

func TestAccountManager_UpdateUnknownAccountFails(t *testing.T) {
	m := NewAccountManager(nil)
	_, err := m.Update("missing", AccountPatch{})
	assert.Error(t, err)
}

func TestAccountManager_DeleteRemovesAccount(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	assert.True(t, m.Delete("a1"))
	assert.False(t, m.Delete("a1"))
	assert.Nil(t, m.Pick("openai"))
}

func TestAccountManager_RecordUsageUnknownAccountIsNoop(t *testing.T) {
	m := NewAccountManager(nil)
	assert.NotPanics(t, func() { m.RecordUsage("missing", 10, 1) })
}

func TestAccountManager_StatusesReportsBlockingTier(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	m.RecordUsage("a1", 10, 1)

	statuses := m.Statuses("openai")
	require.Len(t, statuses, 1)
	assert.Equal(t, core.QuotaMonth, statuses[0].BlockingTier)
	assert.False(t, statuses[0].HasQuota)
}

func TestAccountManager_ListOnlyReturnsEnabled(t *testing.T) {
	m := NewAccountManager(nil)
	m.Add(newAccount("a1", "openai", 10))
	disabled := false
	m.Update("a1", AccountPatch{Enabled: &disabled})
	assert.Empty(t, m.List("openai"))
}

// TestAccountManager_PersistsToRepository confirms every mutation
// (spec.md §3's "persisted on mutation" lifecycle) reaches the attached
// repository, and that LoadFromRepository seeds a fresh manager from it
// (spec.md §6's "load_accounts() at startup" contract).
func TestAccountManager_PersistsToRepository(t *testing.T) {
	repo := repository.NewMemoryAccountRepository()
	m := NewAccountManager(nil).WithRepository(repo)

	_, err := m.Add(newAccount("a1", "openai", 1000))
	require.NoError(t, err)
	m.RecordUsage("a1", 10, 1)

	stored, err := repo.LoadAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, uint64(10), stored[0].Quotas[core.QuotaMonth].TokensUsed)

	fresh := NewAccountManager(nil).WithRepository(repo)
	require.NoError(t, fresh.LoadFromRepository(context.Background()))
	assert.Len(t, fresh.List("openai"), 1)

	require.True(t, fresh.Delete("a1"))
	stored, err = repo.LoadAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}
