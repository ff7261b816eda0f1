// Package ledger implements the cost & budget ledger: admission checks
// against monthly budgets, an append-only cost ledger, and aggregate
// summaries/alerts over it. See ledger.go for the full contract.
package ledger
