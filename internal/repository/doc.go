// Package repository is the external persistence port spec.md §6
// names: load_accounts/upsert/set_default/delete for accounts,
// append/load for cost entries, upsert/load for budgets. The gateway
// core (internal/gateway, internal/ledger) depends only on these
// interfaces; memory.go (in repository.go) is the default in-process
// implementation, sql.go is a GORM-backed enrichment reusing
// internal/database's connection pool.
package repository
