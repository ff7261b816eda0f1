package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/internal/gateway"
	"github.com/BaSui01/agentflow/internal/ledger"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI() *API {
	accounts := gateway.NewAccountManager(nil)
	ldg := ledger.New()
	svc := gateway.NewService(accounts, ldg, gateway.DefaultDefinitions(), gateway.DefaultPricing(), nil)
	svc.Router = gateway.NewRouter(nil, nil)
	return New(svc, nil)
}

func doRequest(t *testing.T, api *API, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	api.Routes(mux)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatCompletions_BudgetExceeded(t *testing.T) {
	api := newTestAPI()
	api.svc.Ledger.SetBudget("u1", 10.0, true, nil, 1)
	api.svc.Ledger.RecordCost("openai", "gpt-4o", core.Usage{}, 10.0, "u1", "req-1")

	rec := doRequest(t, api, http.MethodPost, "/v1/chat/completions", core.ChatRequest{
		Model:    "gpt-4o",
		Messages: []types.Message{types.NewUserMessage("hi")},
		UserID:   "u1",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestHandleChatCompletions_InvalidRequest(t *testing.T) {
	api := newTestAPI()
	rec := doRequest(t, api, http.MethodPost, "/v1/chat/completions", map[string]any{"model": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateAccount_And_List(t *testing.T) {
	api := newTestAPI()

	rec := doRequest(t, api, http.MethodPost, "/v1/provider-accounts/accounts", map[string]any{
		"name":        "primary",
		"provider_id": "openai",
		"enabled":     true,
		"config": map[string]any{
			"type":    "api_key",
			"api_key": map[string]any{"key": "sk-test"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec2 := doRequest(t, api, http.MethodGet, "/v1/provider-accounts/openai/accounts", nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	assert.True(t, resp["success"].(bool))
}

func TestHandleBudget_CreateAndGet(t *testing.T) {
	api := newTestAPI()

	rec := doRequest(t, api, http.MethodPost, "/v1/budgets", map[string]any{
		"entity_id":     "u1",
		"monthly_limit": 50.0,
		"enforce":       true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := doRequest(t, api, http.MethodGet, "/v1/budgets/u1", nil)
	assert.Equal(t, http.StatusOK, rec2.Code)

	rec3 := doRequest(t, api, http.MethodGet, "/v1/budgets/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec3.Code)
}

func TestHandleCostsRecent_Empty(t *testing.T) {
	api := newTestAPI()
	rec := doRequest(t, api, http.MethodGet, "/v1/costs/recent?limit=10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
