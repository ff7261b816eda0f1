package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Config{ProviderID: "test"})
	assert.Equal(t, "/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, "/models", p.Cfg.ModelsPath)
	assert.NotNil(t, p.Client)
}

func TestChat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body chatRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body.Model)
		assert.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponseBody{
			ID:    "chatcmpl-1",
			Model: "gpt-4",
			Choices: []struct {
				Index   int `json:"index"`
				Message struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{{Index: 0, Message: struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			}{Role: "assistant", Content: "hi there"}, FinishReason: "stop"}},
			Usage: struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
				TotalTokens      int `json:"total_tokens"`
			}{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer server.Close()

	p := New(Config{
		ProviderID: "openai", ProviderName: "OpenAI", BaseURL: server.URL, APIKey: "test-key",
		Pricing: core.Pricing{InputTokenCost: 1e6, OutputTokenCost: 2e6},
	})

	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "gpt-4",
		Messages: []types.Message{types.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	// cost = 10/1e6*1e6 + 5/1e6*2e6 = 10 + 10 = 20
	assert.InDelta(t, 20.0, resp.Cost, 0.0001)
}

func TestChat_RateLimitedMapsToRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	p := New(Config{ProviderID: "openai", BaseURL: server.URL, APIKey: "k"})
	_, err := p.Chat(context.Background(), &core.ChatRequest{Model: "gpt-4", Messages: []types.Message{types.NewUserMessage("hi")}})
	require.Error(t, err)
	tErr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrRateLimited, tErr.Code)
	assert.True(t, tErr.Retryable)
}

func TestChat_AuthFailedMapsFrom401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	p := New(Config{ProviderID: "openai", BaseURL: server.URL, APIKey: "bad"})
	_, err := p.Chat(context.Background(), &core.ChatRequest{Model: "gpt-4", Messages: []types.Message{types.NewUserMessage("hi")}})
	require.Error(t, err)
	tErr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrAuthFailed, tErr.Code)
}

func TestChat_CustomBuildHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom-value", r.Header.Get("X-Custom"))
		json.NewEncoder(w).Encode(chatResponseBody{})
	}))
	defer server.Close()

	p := New(Config{
		ProviderID: "groq", BaseURL: server.URL, APIKey: "k",
		BuildHeaders: func(r *http.Request, apiKey string) {
			r.Header.Set("X-Custom", "custom-value")
		},
	})
	_, err := p.Chat(context.Background(), &core.ChatRequest{Model: "m", Messages: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)
}

func TestListModels_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "gpt-4"}, {"id": "gpt-3.5-turbo"}},
		})
	}))
	defer server.Close()

	p := New(Config{ProviderID: "openai", BaseURL: server.URL, APIKey: "k"})
	ids, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4", "gpt-3.5-turbo"}, ids)
}

func TestHealthCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer bad.Close()

	assert.True(t, New(Config{ProviderID: "x", BaseURL: ok.URL}).HealthCheck(context.Background()))
	assert.False(t, New(Config{ProviderID: "x", BaseURL: bad.URL}).HealthCheck(context.Background()))
}

func TestDefinition_ReportsIdentityAndPricing(t *testing.T) {
	p := New(Config{ProviderID: "groq", ProviderName: "Groq", BaseURL: "https://api.groq.com", Pricing: core.Pricing{InputTokenCost: 1}})
	def := p.Definition()
	assert.Equal(t, "groq", def.ID)
	assert.Equal(t, "Groq", def.Name)
	assert.Equal(t, "https://api.groq.com", def.BaseURL)
}

var _ adapter.Provider = (*Provider)(nil)
