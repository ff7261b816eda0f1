// Package repository defines the abstract key-value repository port
// spec.md §6 names — the only persistence contract the gateway core
// depends on — plus an in-memory implementation used by default and by
// tests. A GORM-backed SQL implementation lives alongside it in sql.go
// as an enrichment; neither the core dispatch path (internal/gateway,
// internal/ledger) imports either concrete implementation, only the
// interfaces declared here.
package repository

import (
	"context"
	"sync"

	"github.com/BaSui01/agentflow/internal/core"
)

// AccountRepository persists ProviderAccount records. Grounded on
// spec.md §6's repository port: load_accounts at startup, upsert/
// set_default/delete after each mutation.
type AccountRepository interface {
	LoadAccounts(ctx context.Context) ([]*core.ProviderAccount, error)
	Upsert(ctx context.Context, account *core.ProviderAccount) error
	SetDefault(ctx context.Context, providerID, accountID string) error
	Delete(ctx context.Context, accountID string) error
}

// CostRepository persists append-only CostEntry records.
type CostRepository interface {
	Append(ctx context.Context, entry core.CostEntry) error
	LoadAll(ctx context.Context) ([]core.CostEntry, error)
}

// BudgetRepository persists per-entity Budget records.
type BudgetRepository interface {
	Upsert(ctx context.Context, budget core.Budget) error
	LoadAll(ctx context.Context) ([]core.Budget, error)
}

// MemoryAccountRepository is the default, process-local
// AccountRepository. Persistence failures are impossible by
// construction — matching spec.md §4.1's "persistence failures ... are
// logged and do not roll back in-memory state" policy for the common
// case where the repository itself IS the in-memory state.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*core.ProviderAccount
}

// NewMemoryAccountRepository creates an empty repository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]*core.ProviderAccount)}
}

func (r *MemoryAccountRepository) LoadAccounts(ctx context.Context) ([]*core.ProviderAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.ProviderAccount, 0, len(r.accounts))
	for _, a := range r.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryAccountRepository) Upsert(ctx context.Context, account *core.ProviderAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *MemoryAccountRepository) SetDefault(ctx context.Context, providerID, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ProviderID == providerID {
			a.IsDefault = a.ID == accountID
		}
	}
	return nil
}

func (r *MemoryAccountRepository) Delete(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, accountID)
	return nil
}

// MemoryCostRepository is the default, process-local CostRepository.
type MemoryCostRepository struct {
	mu      sync.Mutex
	entries []core.CostEntry
}

// NewMemoryCostRepository creates an empty repository.
func NewMemoryCostRepository() *MemoryCostRepository {
	return &MemoryCostRepository{}
}

func (r *MemoryCostRepository) Append(ctx context.Context, entry core.CostEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryCostRepository) LoadAll(ctx context.Context) ([]core.CostEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.CostEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

// MemoryBudgetRepository is the default, process-local BudgetRepository.
type MemoryBudgetRepository struct {
	mu      sync.Mutex
	budgets map[string]core.Budget
}

// NewMemoryBudgetRepository creates an empty repository.
func NewMemoryBudgetRepository() *MemoryBudgetRepository {
	return &MemoryBudgetRepository{budgets: make(map[string]core.Budget)}
}

func (r *MemoryBudgetRepository) Upsert(ctx context.Context, budget core.Budget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budgets[budget.EntityID] = budget
	return nil
}

func (r *MemoryBudgetRepository) LoadAll(ctx context.Context) ([]core.Budget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Budget, 0, len(r.budgets))
	for _, b := range r.budgets {
		out = append(out, b)
	}
	return out, nil
}
