package cohere

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

func TestSplitHistory_LastUserTurnBecomesCurrentMessage(t *testing.T) {
	preamble, history, current := splitHistory([]types.Message{
		types.NewSystemMessage("be nice"),
		types.NewUserMessage("first"),
		types.NewAssistantMessage("reply"),
		types.NewUserMessage("second"),
	})
	assert.Equal(t, "be nice", preamble)
	require.Len(t, history, 2)
	assert.Equal(t, "USER", history[0].Role)
	assert.Equal(t, "first", history[0].Message)
	assert.Equal(t, "CHATBOT", history[1].Role)
	assert.Equal(t, "reply", history[1].Message)
	assert.Equal(t, "second", current)
}

func TestSplitHistory_SingleUserTurnHasNoHistory(t *testing.T) {
	preamble, history, current := splitHistory([]types.Message{types.NewUserMessage("hi")})
	assert.Empty(t, preamble)
	assert.Empty(t, history)
	assert.Equal(t, "hi", current)
}

func TestChat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body cohereRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "preamble text", body.Preamble)
		assert.Equal(t, "second", body.Message)
		require.Len(t, body.ChatHistory, 2)

		resp := cohereResponse{GenerationID: "gen-1", Text: "cohere reply", FinishReason: "COMPLETE"}
		resp.Meta.Tokens.InputTokens = 20
		resp.Meta.Tokens.OutputTokens = 10
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL, Pricing: core.Pricing{InputTokenCost: 1e6, OutputTokenCost: 1e6}})
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model: "command-r-plus",
		Messages: []types.Message{
			types.NewSystemMessage("preamble text"),
			types.NewUserMessage("first"),
			types.NewAssistantMessage("reply"),
			types.NewUserMessage("second"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cohere reply", resp.Choices[0].Message.Content)
	assert.Equal(t, 20, resp.Usage.PromptTokens)
	assert.Equal(t, 10, resp.Usage.CompletionTokens)
	assert.InDelta(t, 30.0, resp.Cost, 0.0001)
}

func TestChat_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := p.Chat(context.Background(), &core.ChatRequest{Model: "command-r", Messages: []types.Message{types.NewUserMessage("hi")}})
	require.Error(t, err)
	tErr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrRateLimited, tErr.Code)
}
