// Package httpapi implements the gateway's HTTP surface (spec.md §6):
// chat completions, cost queries, budgets, and provider-account admin.
// Grounded on api/handlers/common.go's WriteJSON/WriteSuccess/WriteError
// envelope idiom and api/handlers/chat.go's Content-Type/decode/validate
// handler shape, generalized from the teacher's llm.Provider-backed
// single-provider ChatHandler onto the multi-provider gateway.Service.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/agentflow/api/handlers"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/gateway"
	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API wraps a gateway.Service with its HTTP handlers. One instance is
// constructed at boot (cmd/gateway/main.go) and its Routes() mounted on
// the process's http.ServeMux, the same pattern
// cmd/agentflow/server.go uses for handlers.HealthHandler.
type API struct {
	svc     *gateway.Service
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates an API bound to svc.
func New(svc *gateway.Service, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{svc: svc, logger: logger}
}

// WithMetrics attaches a Prometheus collector; every routed request then
// records http_requests_total/http_request_duration_seconds alongside
// the gateway.Service-level LLM metrics. Optional.
func (a *API) WithMetrics(m *metrics.Collector) *API {
	a.metrics = m
	return a
}

// instrument wraps h to record HTTP-level metrics (method, path pattern,
// status, duration) when a collector is attached, matching the teacher's
// internal/metrics.Collector.RecordHTTPRequest contract.
func (a *API) instrument(pattern string, h http.HandlerFunc) http.HandlerFunc {
	if a.metrics == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		a.metrics.RecordHTTPRequest(r.Method, pattern, sw.status, time.Since(start), r.ContentLength, sw.bytes)
	}
}

// statusWriter captures the status code and byte count a handler wrote,
// since net/http.ResponseWriter exposes neither after the fact.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Routes registers every handler spec.md §6 names onto mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat/completions", a.instrument("/v1/chat/completions", a.handleChatCompletions))

	mux.HandleFunc("GET /v1/costs", a.instrument("/v1/costs", a.handleCostsSummary))
	mux.HandleFunc("GET /v1/costs/recent", a.instrument("/v1/costs/recent", a.handleCostsRecent))
	mux.HandleFunc("GET /v1/costs/user/{user_id}", a.instrument("/v1/costs/user", a.handleCostsByUser))

	mux.HandleFunc("POST /v1/budgets", a.instrument("/v1/budgets", a.handleCreateBudget))
	mux.HandleFunc("GET /v1/budgets/{entity_id}", a.instrument("/v1/budgets", a.handleGetBudget))

	mux.HandleFunc("GET /v1/provider-accounts/providers", a.instrument("/v1/provider-accounts/providers", a.handleListProviders))
	mux.HandleFunc("GET /v1/provider-accounts/{pid}/accounts", a.instrument("/v1/provider-accounts/accounts", a.handleListAccounts))
	mux.HandleFunc("GET /v1/provider-accounts/{pid}/available", a.instrument("/v1/provider-accounts/available", a.handleAvailableAccount))
	mux.HandleFunc("GET /v1/provider-accounts/{pid}/statuses", a.instrument("/v1/provider-accounts/statuses", a.handleAccountStatuses))
	mux.HandleFunc("POST /v1/provider-accounts/accounts", a.instrument("/v1/provider-accounts/accounts", a.handleCreateAccount))
	mux.HandleFunc("PUT /v1/provider-accounts/accounts/{id}", a.instrument("/v1/provider-accounts/accounts", a.handleUpdateAccount))
	mux.HandleFunc("DELETE /v1/provider-accounts/accounts/{id}", a.instrument("/v1/provider-accounts/accounts", a.handleDeleteAccount))
	mux.HandleFunc("PUT /v1/provider-accounts/{pid}/{aid}/default", a.instrument("/v1/provider-accounts/default", a.handleSetDefaultAccount))
	mux.HandleFunc("POST /v1/provider-accounts/accounts/{id}/usage", a.instrument("/v1/provider-accounts/accounts/usage", a.handleRecordUsage))
}

// =============================================================================
// Chat completions
// =============================================================================

func (a *API) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !handlers.ValidateContentType(w, r, a.logger) {
		return
	}
	var req core.ChatRequest
	if err := handlers.DecodeJSONBody(w, r, &req, a.logger); err != nil {
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		handlers.WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "model and messages are required", a.logger)
		return
	}

	resp, err := a.svc.Dispatch(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, a.logger)
		return
	}
	handlers.WriteSuccess(w, resp)
}

// =============================================================================
// Costs
// =============================================================================

func (a *API) handleCostsSummary(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	handlers.WriteSuccess(w, a.svc.Ledger.Summary(start, end))
}

func (a *API) handleCostsRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	handlers.WriteSuccess(w, a.svc.Ledger.Recent(limit))
}

func (a *API) handleCostsByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	limit := queryInt(r, "limit", 50)
	handlers.WriteSuccess(w, a.svc.Ledger.ByUser(userID, limit))
}

// =============================================================================
// Budgets
// =============================================================================

type createBudgetRequest struct {
	EntityID        string    `json:"entity_id"`
	MonthlyLimit    float64   `json:"monthly_limit"`
	Enforce         bool      `json:"enforce"`
	AlertThresholds []float64 `json:"alert_thresholds"`
	ResetDayOfMonth int       `json:"reset_day_of_month"`
}

func (a *API) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	if !handlers.ValidateContentType(w, r, a.logger) {
		return
	}
	var req createBudgetRequest
	if err := handlers.DecodeJSONBody(w, r, &req, a.logger); err != nil {
		return
	}
	if req.EntityID == "" {
		handlers.WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "entity_id is required", a.logger)
		return
	}
	resetDay := req.ResetDayOfMonth
	if resetDay == 0 {
		resetDay = 1
	}
	alertThresholds := req.AlertThresholds
	if alertThresholds == nil {
		alertThresholds = []float64{0.5, 0.8, 0.9, 1.0}
	}
	b := a.svc.Ledger.SetBudget(req.EntityID, req.MonthlyLimit, req.Enforce, alertThresholds, resetDay)
	handlers.WriteSuccess(w, b)
}

func (a *API) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entity_id")
	b, ok := a.svc.Ledger.GetBudget(entityID)
	if !ok {
		handlers.WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "no budget for "+entityID, a.logger)
		return
	}
	handlers.WriteSuccess(w, b)
}

// =============================================================================
// Provider-account admin
// =============================================================================

func (a *API) handleListProviders(w http.ResponseWriter, r *http.Request) {
	handlers.WriteSuccess(w, a.svc.Router.ListProviders())
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	handlers.WriteSuccess(w, a.svc.Accounts.List(pid))
}

func (a *API) handleAvailableAccount(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	acc := a.svc.Accounts.Pick(pid)
	if acc == nil {
		handlers.WriteJSON(w, http.StatusOK, handlers.Response{Success: true, Data: nil})
		return
	}
	handlers.WriteSuccess(w, acc)
}

func (a *API) handleAccountStatuses(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	handlers.WriteSuccess(w, a.svc.Accounts.Statuses(pid))
}

type createAccountRequest struct {
	Name       string               `json:"name"`
	ProviderID string               `json:"provider_id"`
	Enabled    bool                 `json:"enabled"`
	Priority   int                  `json:"priority"`
	Models     []core.ModelDescriptor `json:"models"`
	Config     core.AccountConfig   `json:"config"`
	Quotas     []*core.QuotaTier    `json:"quotas"`
}

func (a *API) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if !handlers.ValidateContentType(w, r, a.logger) {
		return
	}
	var req createAccountRequest
	if err := handlers.DecodeJSONBody(w, r, &req, a.logger); err != nil {
		return
	}
	if req.ProviderID == "" {
		handlers.WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "provider_id is required", a.logger)
		return
	}

	quotas := make(map[core.QuotaPeriod]*core.QuotaTier, len(req.Quotas))
	for _, q := range req.Quotas {
		quotas[q.Period] = q
	}

	acc := &core.ProviderAccount{
		ID:         uuid.NewString(),
		Name:       req.Name,
		ProviderID: req.ProviderID,
		Enabled:    req.Enabled,
		Priority:   req.Priority,
		Models:     req.Models,
		Config:     req.Config,
		Quotas:     quotas,
	}
	stored, err := a.svc.Accounts.Add(acc)
	if err != nil {
		writeServiceError(w, err, a.logger)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, handlers.Response{Success: true, Data: stored, Timestamp: time.Now()})
}

type updateAccountRequest struct {
	Name         *string                `json:"name"`
	Enabled      *bool                  `json:"enabled"`
	Priority     *int                   `json:"priority"`
	Models       []core.ModelDescriptor `json:"models"`
	SetQuotas    []*core.QuotaTier      `json:"set_quotas"`
	RemoveQuotas []core.QuotaPeriod     `json:"remove_quotas"`
}

func (a *API) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !handlers.ValidateContentType(w, r, a.logger) {
		return
	}
	var req updateAccountRequest
	if err := handlers.DecodeJSONBody(w, r, &req, a.logger); err != nil {
		return
	}
	patch := gateway.AccountPatch{
		Name:         req.Name,
		Enabled:      req.Enabled,
		Priority:     req.Priority,
		Models:       req.Models,
		SetQuotas:    req.SetQuotas,
		RemoveQuotas: req.RemoveQuotas,
	}
	acc, err := a.svc.Accounts.Update(id, patch)
	if err != nil {
		writeServiceError(w, err, a.logger)
		return
	}
	handlers.WriteSuccess(w, acc)
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.svc.Accounts.Delete(id) {
		handlers.WriteErrorMessage(w, http.StatusNotFound, types.ErrAccountNotFound, "account not found", a.logger)
		return
	}
	handlers.WriteSuccess(w, map[string]bool{"deleted": true})
}

func (a *API) handleSetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	aid := r.PathValue("aid")
	if err := a.svc.Accounts.SetDefault(pid, aid); err != nil {
		writeServiceError(w, err, a.logger)
		return
	}
	handlers.WriteSuccess(w, map[string]bool{"ok": true})
}

type recordUsageRequest struct {
	Tokens   uint64 `json:"tokens"`
	Requests uint64 `json:"requests"`
}

func (a *API) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !handlers.ValidateContentType(w, r, a.logger) {
		return
	}
	var req recordUsageRequest
	if err := handlers.DecodeJSONBody(w, r, &req, a.logger); err != nil {
		return
	}
	a.svc.Accounts.RecordUsage(id, req.Tokens, req.Requests)
	handlers.WriteSuccess(w, map[string]bool{"ok": true})
}

// =============================================================================
// helpers
// =============================================================================

func writeServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if tErr, ok := err.(*types.Error); ok {
		handlers.WriteError(w, tErr, logger)
		return
	}
	handlers.WriteError(w, types.NewError(types.ErrInternalError, err.Error()), logger)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
