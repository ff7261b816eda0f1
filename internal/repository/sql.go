package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/agentflow/internal/core"
	"gorm.io/gorm"
)

// SQL-backed repository rows. The gateway core only ever sees
// core.ProviderAccount / core.CostEntry / core.Budget — these row
// types are a private GORM mapping, not part of the repository
// contract, matching the teacher's own model/row split
// (internal/database wraps *gorm.DB, never leaks it past the pool).

type accountRow struct {
	ID         string `gorm:"primaryKey"`
	ProviderID string `gorm:"index"`
	Name       string
	Enabled    bool
	IsDefault  bool
	Priority   int
	ConfigJSON string `gorm:"type:text"`
	ModelsJSON string `gorm:"type:text"`
	QuotasJSON string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (accountRow) TableName() string { return "gateway_provider_accounts" }

type costEntryRow struct {
	ID           string `gorm:"primaryKey"`
	Timestamp    time.Time `gorm:"index"`
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	UserID       string `gorm:"index"`
	RequestID    string
}

func (costEntryRow) TableName() string { return "gateway_cost_entries" }

type budgetRow struct {
	EntityID        string `gorm:"primaryKey"`
	MonthlyLimit    float64
	SpentThisMonth  float64
	Enforce         bool
	AlertThresholds string `gorm:"type:text"`
	ResetDayOfMonth int
}

func (budgetRow) TableName() string { return "gateway_budgets" }

// SQLAccountRepository persists accounts through GORM, reusing
// whichever dialect internal/database.PoolManager opened (postgres,
// mysql, or sqlite) — this is the "SQL-backed repository" spec.md §6
// calls out as existing but outside the core contract; the core only
// ever talks to the AccountRepository/CostRepository/BudgetRepository
// interfaces.
type SQLAccountRepository struct {
	db *gorm.DB
}

// NewSQLAccountRepository auto-migrates the gateway tables and returns
// a repository bound to db.
func NewSQLAccountRepository(db *gorm.DB) (*SQLAccountRepository, error) {
	if err := db.AutoMigrate(&accountRow{}); err != nil {
		return nil, err
	}
	return &SQLAccountRepository{db: db}, nil
}

func (r *SQLAccountRepository) LoadAccounts(ctx context.Context) ([]*core.ProviderAccount, error) {
	var rows []accountRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*core.ProviderAccount, 0, len(rows))
	for _, row := range rows {
		acc, err := rowToAccount(row)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func (r *SQLAccountRepository) Upsert(ctx context.Context, account *core.ProviderAccount) error {
	row, err := accountToRow(account)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *SQLAccountRepository) SetDefault(ctx context.Context, providerID, accountID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&accountRow{}).
			Where("provider_id = ?", providerID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&accountRow{}).
			Where("id = ?", accountID).
			Update("is_default", true).Error
	})
}

func (r *SQLAccountRepository) Delete(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Delete(&accountRow{}, "id = ?", accountID).Error
}

func accountToRow(a *core.ProviderAccount) (accountRow, error) {
	cfgJSON, err := json.Marshal(a.Config)
	if err != nil {
		return accountRow{}, err
	}
	modelsJSON, err := json.Marshal(a.Models)
	if err != nil {
		return accountRow{}, err
	}
	quotasJSON, err := json.Marshal(a.Quotas)
	if err != nil {
		return accountRow{}, err
	}
	return accountRow{
		ID:         a.ID,
		ProviderID: a.ProviderID,
		Name:       a.Name,
		Enabled:    a.Enabled,
		IsDefault:  a.IsDefault,
		Priority:   a.Priority,
		ConfigJSON: string(cfgJSON),
		ModelsJSON: string(modelsJSON),
		QuotasJSON: string(quotasJSON),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}, nil
}

func rowToAccount(row accountRow) (*core.ProviderAccount, error) {
	acc := &core.ProviderAccount{
		ID:         row.ID,
		ProviderID: row.ProviderID,
		Name:       row.Name,
		Enabled:    row.Enabled,
		IsDefault:  row.IsDefault,
		Priority:   row.Priority,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.ConfigJSON), &acc.Config); err != nil {
		return nil, err
	}
	if row.ModelsJSON != "" {
		if err := json.Unmarshal([]byte(row.ModelsJSON), &acc.Models); err != nil {
			return nil, err
		}
	}
	if row.QuotasJSON != "" {
		if err := json.Unmarshal([]byte(row.QuotasJSON), &acc.Quotas); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// SQLCostRepository persists cost entries through GORM.
type SQLCostRepository struct {
	db *gorm.DB
}

// NewSQLCostRepository auto-migrates the table and returns a repository
// bound to db.
func NewSQLCostRepository(db *gorm.DB) (*SQLCostRepository, error) {
	if err := db.AutoMigrate(&costEntryRow{}); err != nil {
		return nil, err
	}
	return &SQLCostRepository{db: db}, nil
}

func (r *SQLCostRepository) Append(ctx context.Context, entry core.CostEntry) error {
	row := costEntryRow{
		ID:           entry.ID,
		Timestamp:    entry.Timestamp,
		Provider:     entry.Provider,
		Model:        entry.Model,
		InputTokens:  entry.InputTokens,
		OutputTokens: entry.OutputTokens,
		CostUSD:      entry.CostUSD,
		UserID:       entry.UserID,
		RequestID:    entry.RequestID,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *SQLCostRepository) LoadAll(ctx context.Context) ([]core.CostEntry, error) {
	var rows []costEntryRow
	if err := r.db.WithContext(ctx).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.CostEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CostEntry{
			ID:           row.ID,
			Timestamp:    row.Timestamp,
			Provider:     row.Provider,
			Model:        row.Model,
			InputTokens:  row.InputTokens,
			OutputTokens: row.OutputTokens,
			CostUSD:      row.CostUSD,
			UserID:       row.UserID,
			RequestID:    row.RequestID,
		})
	}
	return out, nil
}

// SQLBudgetRepository persists budgets through GORM.
type SQLBudgetRepository struct {
	db *gorm.DB
}

// NewSQLBudgetRepository auto-migrates the table and returns a
// repository bound to db.
func NewSQLBudgetRepository(db *gorm.DB) (*SQLBudgetRepository, error) {
	if err := db.AutoMigrate(&budgetRow{}); err != nil {
		return nil, err
	}
	return &SQLBudgetRepository{db: db}, nil
}

func (r *SQLBudgetRepository) Upsert(ctx context.Context, budget core.Budget) error {
	thresholdsJSON, err := json.Marshal(budget.AlertThresholds)
	if err != nil {
		return err
	}
	row := budgetRow{
		EntityID:        budget.EntityID,
		MonthlyLimit:    budget.MonthlyLimit,
		SpentThisMonth:  budget.SpentThisMonth,
		Enforce:         budget.Enforce,
		AlertThresholds: string(thresholdsJSON),
		ResetDayOfMonth: budget.ResetDayOfMonth,
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *SQLBudgetRepository) LoadAll(ctx context.Context) ([]core.Budget, error) {
	var rows []budgetRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Budget, 0, len(rows))
	for _, row := range rows {
		var thresholds []float64
		if row.AlertThresholds != "" {
			if err := json.Unmarshal([]byte(row.AlertThresholds), &thresholds); err != nil {
				return nil, err
			}
		}
		out = append(out, core.Budget{
			EntityID:        row.EntityID,
			MonthlyLimit:    row.MonthlyLimit,
			SpentThisMonth:  row.SpentThisMonth,
			Enforce:         row.Enforce,
			AlertThresholds: thresholds,
			ResetDayOfMonth: row.ResetDayOfMonth,
		})
	}
	return out, nil
}
