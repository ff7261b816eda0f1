package local

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

func TestNew_DetectsOllamaByPort(t *testing.T) {
	p := New(Config{BaseURL: "http://localhost:11434"})
	assert.True(t, p.ollama)
}

func TestNew_DetectsOllamaBySubstring(t *testing.T) {
	p := New(Config{BaseURL: "https://my-ollama-host.internal:9999"})
	assert.True(t, p.ollama)
}

func TestNew_DetectsOllamaCaseInsensitively(t *testing.T) {
	p := New(Config{BaseURL: "https://my-OLLAMA-host.internal"})
	assert.True(t, p.ollama)
}

func TestNew_ForceOllamaFlag(t *testing.T) {
	p := New(Config{BaseURL: "http://localhost:8080", Ollama: true})
	assert.True(t, p.ollama)
}

func TestNew_DefaultsToOpenAICompat(t *testing.T) {
	p := New(Config{BaseURL: "http://localhost:8080"})
	assert.False(t, p.ollama)
	assert.NotNil(t, p.compat)
}

func TestChat_OllamaNativeShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body.Model)
		assert.False(t, body.Stream)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:           "llama3",
			Message:         ollamaChatMessage{Role: "assistant", Content: "local reply"},
			Done:            true,
			EvalCount:       5,
			PromptEvalCount: 10,
		})
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL, Ollama: true})
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "llama3",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "local reply", resp.Choices[0].Message.Content)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
}

func TestChat_OpenAICompatDelegation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","model":"vllm-model","choices":[{"message":{"role":"assistant","content":"compat reply"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "vllm-model",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "compat reply", resp.Choices[0].Message.Content)
}

func TestListModels_OllamaTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3"}, {"name": "mistral"}},
		})
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL, Ollama: true})
	names, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, names)
}

func TestHealthCheck_Ollama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(200)
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL, Ollama: true})
	assert.True(t, p.HealthCheck(context.Background()))
}
