package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S6 — system message lift: outbound body carries a top-level "system"
// field and the remaining messages, with the response's first text
// content becoming choices[0].message.content.
func TestChat_SystemMessageLift(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var body claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "be brief", body.System)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "hi", body.Messages[0].Content)

		json.NewEncoder(w).Encode(claudeResponse{
			ID: "msg_1",
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "text", Text: "hello back"}},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model: "claude-3-opus-20240229",
		Messages: []types.Message{
			types.NewSystemMessage("be brief"),
			types.NewUserMessage("hi"),
		},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", resp.Choices[0].Message.Content)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
}

func TestChat_UsageAndCost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(claudeResponse{
			ID: "msg_2",
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "text", Text: "ok"}},
			Usage: struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			}{InputTokens: 100, OutputTokens: 50},
		})
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL, Pricing: core.Pricing{InputTokenCost: 1e6, OutputTokenCost: 2e6}})
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "claude-3-opus-20240229",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Usage.PromptTokens)
	assert.Equal(t, 50, resp.Usage.CompletionTokens)
	assert.InDelta(t, 200.0, resp.Cost, 0.0001) // 100*1 + 50*2
}

func TestChat_AuthFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	p := New(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := p.Chat(context.Background(), &core.ChatRequest{
		Model: "claude-3-opus-20240229", Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	tErr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrAuthFailed, tErr.Code)
}

func TestHealthCheck_TreatsBadRequestAsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL})
	assert.True(t, p.HealthCheck(context.Background()))
}

func TestHealthCheck_AuthFailureIsUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := New(Config{APIKey: "bad", BaseURL: server.URL})
	assert.False(t, p.HealthCheck(context.Background()))
}

func TestConvertMessages_LiftsSystemOnly(t *testing.T) {
	system, msgs := convertMessages([]types.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("u1"),
		types.NewAssistantMessage("a1"),
	})
	assert.Equal(t, "sys", system)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestListModels_ReturnsClaudeFamily(t *testing.T) {
	p := New(Config{APIKey: "k"})
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Contains(t, models, "claude-3-opus-20240229")
}
