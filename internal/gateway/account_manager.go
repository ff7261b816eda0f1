// Package gateway implements the request-dispatch core of the AgentFlow
// LLM gateway: the provider-account manager (C1) and the smart router
// (C2). Both are grounded on the teacher's llm/apikey_pool.go and
// llm/router.go mutex-guarded registry style, generalized from
// API-key rotation to full multi-tier account rotation per the gateway
// specification.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/repository"
	"github.com/BaSui01/agentflow/types"
	"go.uber.org/zap"
)

// AccountStatus is the operator-facing read model for one account,
// returned by Statuses. It mirrors the teacher's AccountDetailedStatus
// shape from the original account manager.
type AccountStatus struct {
	ID           string             `json:"id"`
	Enabled      bool               `json:"enabled"`
	IsDefault    bool               `json:"is_default"`
	Priority     int                `json:"priority"`
	HasQuota     bool               `json:"has_quota"`
	BlockingTier core.QuotaPeriod   `json:"blocking_tier,omitempty"`
	NextResetSec *int64             `json:"next_reset_seconds,omitempty"`
	Tiers        []TierStatus       `json:"tiers"`
}

// TierStatus is the per-tier slice of AccountStatus.
type TierStatus struct {
	Period           core.QuotaPeriod `json:"period"`
	TokenLimit       uint64           `json:"token_limit"`
	TokensUsed       uint64           `json:"tokens_used"`
	RequestLimit     *uint64          `json:"request_limit,omitempty"`
	RequestsUsed     uint64           `json:"requests_used"`
	RemainingTokens  uint64           `json:"remaining_tokens"`
	UsagePercentage  float64          `json:"usage_percentage"`
	SecondsUntilReset int64           `json:"seconds_until_reset"`
	HasQuota         bool             `json:"has_quota"`
}

// AccountPatch carries the mutable fields of update(account_id, patch).
type AccountPatch struct {
	Name         *string
	Enabled      *bool
	Priority     *int
	Models       []core.ModelDescriptor
	SetQuotas    []*core.QuotaTier
	RemoveQuotas []core.QuotaPeriod
}

// Clock is the manager's time source, overridable for deterministic
// tests (spec.md §9's "inject a clock" design note).
type Clock func() time.Time

// AccountManager holds the mutable set of provider accounts and answers
// "give me an account for provider P that can serve this request now."
//
// Grounded on llm/apikey_pool.go's APIKeyPool (mutex-guarded map,
// strategy-dispatched selection) and on
// original_source/backend/providers/account_manager.rs for the exact
// pick/return-to-primary algorithm.
type AccountManager struct {
	mu       sync.RWMutex
	accounts map[string]*core.ProviderAccount

	// originalDefault[provider_id] -> account_id shelved when it first
	// ran out of quota. A router-side concern per spec.md §9, not a
	// per-account flag.
	originalDefault map[string]string

	clock  Clock
	logger *zap.Logger

	repo repository.AccountRepository
}

// NewAccountManager creates an empty manager with no backing
// repository (pure in-memory, per spec.md §6's repository port being
// optional enrichment rather than a hard dependency).
func NewAccountManager(logger *zap.Logger) *AccountManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountManager{
		accounts:        make(map[string]*core.ProviderAccount),
		originalDefault: make(map[string]string),
		clock:           time.Now,
		logger:          logger,
	}
}

// WithClock overrides the manager's clock (tests only).
func (m *AccountManager) WithClock(c Clock) *AccountManager {
	m.clock = c
	return m
}

// WithRepository attaches the account persistence port spec.md §6
// names. Every subsequent Add/Update/SetDefault/Delete best-effort
// persists the mutation; failures are logged and never roll back the
// in-memory state (spec.md §4.1's "persistence failures ... are logged
// and do not roll back in-memory state" policy).
func (m *AccountManager) WithRepository(repo repository.AccountRepository) *AccountManager {
	m.repo = repo
	return m
}

// LoadFromRepository seeds the manager's in-memory account set from the
// attached repository, per spec.md §6's "load_accounts() at startup"
// contract. A no-op if WithRepository was never called.
func (m *AccountManager) LoadFromRepository(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	accounts, err := m.repo.LoadAccounts(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return nil
}

func (m *AccountManager) persistUpsertLocked(account *core.ProviderAccount) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Upsert(context.Background(), account); err != nil {
		m.logger.Warn("failed to persist account", zap.String("account_id", account.ID), zap.Error(err))
	}
}

// Add stores a new account. The first account added for a provider_id
// becomes that provider's default automatically. Fails only on
// duplicate id.
func (m *AccountManager) Add(account *core.ProviderAccount) (*core.ProviderAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return nil, types.NewError(types.ErrDuplicateAccount, fmt.Sprintf("account %q already exists", account.ID))
	}

	isFirst := true
	for _, a := range m.accounts {
		if a.ProviderID == account.ProviderID {
			isFirst = false
			break
		}
	}
	if isFirst {
		account.IsDefault = true
	}

	now := m.clock()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	m.accounts[account.ID] = account
	m.persistUpsertLocked(account)
	return account, nil
}

// List returns enabled accounts for a provider_id.
func (m *AccountManager) List(providerID string) []*core.ProviderAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.ProviderAccount
	for _, a := range m.accounts {
		if a.ProviderID == providerID && a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

type candidate struct {
	id                  string
	isDefault           bool
	priority            int
	minRemainingTokens  uint64
	hasQuotaAvailable   bool
}

// Pick selects the best account for provider_id, applying the
// default-first / priority / remaining-quota sort, then the
// return-to-primary table, then a walk over the sorted candidates.
// May mutate quota tiers (lazy reset) and the return-to-primary table.
func (m *AccountManager) Pick(providerID string) *core.ProviderAccount {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()

	var candidates []candidate
	for _, a := range m.accounts {
		if a.ProviderID != providerID || !a.Enabled {
			continue
		}
		candidates = append(candidates, candidate{
			id:                 a.ID,
			isDefault:          a.IsDefault,
			priority:           a.Priority,
			minRemainingTokens: a.MinRemainingTokens(),
			hasQuotaAvailable:  a.HasQuotaAvailable(now),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.isDefault != b.isDefault {
			return a.isDefault
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.minRemainingTokens > b.minRemainingTokens
	})

	// Return-to-primary: if the shelved original default has quota
	// again, resurrect it and clear the shelving entry.
	if originalID, shelved := m.originalDefault[providerID]; shelved {
		if acc, ok := m.accounts[originalID]; ok {
			if acc.HasQuota(now) {
				delete(m.originalDefault, providerID)
				return acc
			}
		}
	}

	var resultID string
	var needShelve bool
	for _, c := range candidates {
		if c.hasQuotaAvailable {
			resultID = c.id
			needShelve = !c.isDefault
			break
		}
	}
	if resultID == "" {
		return nil
	}

	if needShelve {
		if _, already := m.originalDefault[providerID]; !already {
			for _, c := range candidates {
				if c.isDefault {
					m.originalDefault[providerID] = c.id
					break
				}
			}
		}
	}

	acc := m.accounts[resultID]
	acc.HasQuota(now) // apply lazy reset to the winning account's tiers
	return acc
}

// RecordUsage debits every quota tier on the account. Idempotent with
// respect to period reset; unknown account ids are a no-op (the upstream
// call already happened, we must not fail the response for a bookkeeping
// miss — see spec.md §7 propagation policy).
func (m *AccountManager) RecordUsage(accountID string, tokens, requests uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return
	}
	acc.RecordUsage(m.clock(), tokens, requests)
	m.persistUpsertLocked(acc)
}

// Update applies a partial patch, including quota tier adds/removes.
func (m *AccountManager) Update(accountID string, patch AccountPatch) (*core.ProviderAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, types.NewError(types.ErrAccountNotFound, fmt.Sprintf("account %q not found", accountID))
	}

	if patch.Name != nil {
		acc.Name = *patch.Name
	}
	if patch.Enabled != nil {
		acc.Enabled = *patch.Enabled
	}
	if patch.Priority != nil {
		acc.Priority = *patch.Priority
	}
	if patch.Models != nil {
		acc.Models = patch.Models
	}
	if acc.Quotas == nil {
		acc.Quotas = make(map[core.QuotaPeriod]*core.QuotaTier)
	}
	for _, tier := range patch.SetQuotas {
		acc.Quotas[tier.Period] = tier
	}
	for _, period := range patch.RemoveQuotas {
		delete(acc.Quotas, period)
	}
	acc.UpdatedAt = m.clock()
	m.persistUpsertLocked(acc)

	return acc, nil
}

// SetDefault unsets is_default on every other account for provider_id
// and sets it on the target, atomically. It also clears any shelved
// return-to-primary entry for the provider — per spec.md §9/§10's open
// question resolution, a fresh admin-chosen default must never be
// silently overridden by a stale shelving record.
func (m *AccountManager) SetDefault(providerID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, a := range m.accounts {
		if a.ProviderID != providerID {
			continue
		}
		if a.ID == accountID {
			found = true
		}
	}
	if !found {
		return types.NewError(types.ErrAccountNotFound, fmt.Sprintf("account %q not found for provider %q", accountID, providerID))
	}

	for _, a := range m.accounts {
		if a.ProviderID == providerID {
			a.IsDefault = a.ID == accountID
		}
	}
	delete(m.originalDefault, providerID)

	if m.repo != nil {
		if err := m.repo.SetDefault(context.Background(), providerID, accountID); err != nil {
			m.logger.Warn("failed to persist default account", zap.String("provider_id", providerID), zap.Error(err))
		}
	}
	return nil
}

// Delete removes an account. Removing the default promotes no-one to
// is_default; Pick keeps serving the provider from its remaining
// enabled accounts that have quota.
func (m *AccountManager) Delete(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return false
	}
	delete(m.accounts, accountID)

	if m.repo != nil {
		if err := m.repo.Delete(context.Background(), accountID); err != nil {
			m.logger.Warn("failed to persist account deletion", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return true
}

// Statuses returns the operator-facing detail view for every account of
// a provider, including which tier (if any) is currently blocking.
func (m *AccountManager) Statuses(providerID string) []AccountStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var out []AccountStatus
	for _, a := range m.accounts {
		if a.ProviderID != providerID {
			continue
		}
		blockingTier, blocked := a.BlockingTier(now)
		status := AccountStatus{
			ID:        a.ID,
			Enabled:   a.Enabled,
			IsDefault: a.IsDefault,
			Priority:  a.Priority,
			HasQuota:  a.HasQuota(now),
		}
		if blocked {
			status.BlockingTier = blockingTier
		}

		var soonest *int64
		for _, period := range core.AllQuotaPeriods() {
			tier, ok := a.Quotas[period]
			if !ok {
				continue
			}
			secs := int64(tier.TimeUntilReset(now).Seconds())
			status.Tiers = append(status.Tiers, TierStatus{
				Period:            tier.Period,
				TokenLimit:        tier.TokenLimit,
				TokensUsed:        tier.TokensUsed,
				RequestLimit:      tier.RequestLimit,
				RequestsUsed:      tier.RequestsUsed,
				RemainingTokens:   tier.RemainingTokens(),
				UsagePercentage:   tier.UsagePercentage(),
				SecondsUntilReset: secs,
				HasQuota:          tier.TokensUsed < tier.TokenLimit,
			})
			if !tier.HasQuotaAvailable(now) || tier.UsagePercentage() > 80 {
				if soonest == nil || secs < *soonest {
					s := secs
					soonest = &s
				}
			}
		}
		status.NextResetSec = soonest

		out = append(out, status)
	}
	return out
}

// Get returns a single account regardless of enabled/disabled state, for
// explicit-provider dispatch that needs the underlying config.
func (m *AccountManager) Get(accountID string) (*core.ProviderAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	return a, ok
}
