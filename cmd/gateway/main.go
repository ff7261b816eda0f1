// Command gateway boots the LLM gateway's request-dispatch core: the
// provider-account manager, smart router, adapter factory, and cost &
// budget ledger, behind the HTTP surface spec.md §6 names.
//
// Grounded on cmd/agentflow/server.go's Server/initX boot-sequence
// shape (config → components → HTTP server with graceful shutdown),
// simplified to the gateway's own scope: no hot-reload manager, no
// gRPC surface, no agent/workflow/RAG wiring — those are the teacher's
// other subsystems, out of spec.md's core.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/gateway"
	"github.com/BaSui01/agentflow/internal/httpapi"
	"github.com/BaSui01/agentflow/internal/ledger"
	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/internal/repository"
	"github.com/BaSui01/agentflow/internal/server"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// envKeyByProvider maps a provider id to the environment variable whose
// value seeds a default account for it at boot. Only these seven
// providers are seeded; no Azure, Voyage, Jina or database settings are
// read from the environment.
var envKeyByProvider = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
	"together":  "TOGETHER_API_KEY",
	"cohere":    "COHERE_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func main() {
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// The repository port (spec.md §6) defaults to the in-memory
	// implementation — a SQL-backed deployment swaps these three
	// constructors for repository.NewSQL{Account,Cost,Budget}Repository
	// against a *gorm.DB from internal/database.PoolManager without
	// touching AccountManager/Ledger/Service at all.
	accountRepo := repository.NewMemoryAccountRepository()
	costRepo := repository.NewMemoryCostRepository()
	budgetRepo := repository.NewMemoryBudgetRepository()

	accounts := gateway.NewAccountManager(logger).WithRepository(accountRepo)
	ldg := ledger.New().WithRepository(costRepo, budgetRepo, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := accounts.LoadFromRepository(ctx); err != nil {
		logger.Fatal("failed to load accounts from repository", zap.Error(err))
	}
	if err := ldg.LoadFromRepository(ctx); err != nil {
		logger.Fatal("failed to load ledger state from repository", zap.Error(err))
	}
	cancel()

	seedAccountsFromEnv(accounts, logger)

	// Prometheus metrics (SPEC_FULL.md §2's ambient-stack observability
	// wiring) — one process-wide Collector covering both the HTTP
	// surface and the per-dispatch LLM metrics.
	collector := metrics.NewCollector("gateway", logger)

	svc := gateway.NewService(accounts, ldg, gateway.DefaultDefinitions(), gateway.DefaultPricing(), logger).
		WithMetrics(collector)

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.BuildRouter(ctx); err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}
	cancel()

	mux := http.NewServeMux()
	httpapi.New(svc, logger).WithMetrics(collector).Routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := ":8090"
	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		addr = v
	}
	srvCfg := server.DefaultConfig()
	srvCfg.Addr = addr
	mgr := server.NewManager(mux, srvCfg, logger)

	if err := mgr.Start(); err != nil {
		logger.Fatal("failed to start gateway HTTP server", zap.Error(err))
	}
	logger.Info("gateway listening", zap.String("addr", mgr.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GATEWAY_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// seedAccountsFromEnv registers one default account per provider whose
// API-key environment variable is set, each carrying a generous
// unlimited-in-practice monthly tier so a fresh boot can serve traffic
// before any admin account has been configured.
func seedAccountsFromEnv(accounts *gateway.AccountManager, logger *zap.Logger) {
	for providerID, envKey := range envKeyByProvider {
		key := os.Getenv(envKey)
		if key == "" {
			continue
		}
		acc := &core.ProviderAccount{
			ID:         uuid.NewString(),
			Name:       providerID + "-env-default",
			ProviderID: providerID,
			Enabled:    true,
			Config: core.AccountConfig{
				Type:   core.ConfigAPIKey,
				APIKey: &core.APIKeyConfig{Key: key},
			},
			Quotas: map[core.QuotaPeriod]*core.QuotaTier{
				core.QuotaMonth: core.NewQuotaTier(core.QuotaMonth, 100_000_000, nil),
			},
		}
		if _, err := accounts.Add(acc); err != nil {
			logger.Warn("failed to seed account from env", zap.String("provider", providerID), zap.Error(err))
			continue
		}
		logger.Info("seeded provider account from environment", zap.String("provider", providerID))
	}
}
