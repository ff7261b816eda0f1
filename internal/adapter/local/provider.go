// Package local adapts self-hosted inference servers: Ollama's native
// /api/chat shape when the configured base URL looks like an Ollama
// install, falling back to the OpenAI-compatible {base}/chat/completions
// shape that llama.cpp server, vLLM, and LM Studio all speak. Grounded
// on original_source/backend/providers/local.rs's dual-protocol
// detection and the teacher's openaicompat base for the fallback path.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/adapter/openaicompat"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
)

// Config configures a local-server adapter.
type Config struct {
	ProviderID   string // defaults to "local"
	BaseURL      string // e.g. http://localhost:11434 or http://localhost:8080
	DefaultModel string
	Pricing      core.Pricing // typically zero cost for self-hosted inference
	Timeout      time.Duration
	Ollama       bool // force Ollama protocol instead of sniffing the URL
}

// Provider dispatches to either the Ollama wire shape or the embedded
// OpenAI-compatible base, decided once at construction time.
type Provider struct {
	id       string
	ollama   bool
	baseURL  string
	client   *http.Client
	pricing  core.Pricing
	defModel string
	compat   *openaicompat.Provider
}

// New builds a local-server adapter.
func New(cfg Config) *Provider {
	id := cfg.ProviderID
	if id == "" {
		id = "local"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	isOllama := cfg.Ollama || strings.Contains(cfg.BaseURL, "11434") || strings.Contains(strings.ToLower(cfg.BaseURL), "ollama")

	p := &Provider{
		id:       id,
		ollama:   isOllama,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		pricing:  cfg.Pricing,
		defModel: cfg.DefaultModel,
	}
	if !isOllama {
		p.compat = openaicompat.New(openaicompat.Config{
			ProviderID:   id,
			ProviderName: "Local",
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			Pricing:      cfg.Pricing,
			Timeout:      cfg.Timeout,
			BuildHeaders: func(req *http.Request, _ string) {
				req.Header.Set("Content-Type", "application/json")
			},
		})
	}
	return p
}

var _ adapter.Provider = (*Provider)(nil)

// Definition reports this adapter's identity and pricing.
func (p *Provider) Definition() core.ProviderConfig {
	return core.ProviderConfig{ID: p.id, Name: "Local", Pricing: p.pricing, BaseURL: p.baseURL}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		TopP        float64 `json:"top_p,omitempty"`
	} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string             `json:"model"`
	Message ollamaChatMessage  `json:"message"`
	Done    bool               `json:"done"`
	EvalCount       int `json:"eval_count"`
	PromptEvalCount int `json:"prompt_eval_count"`
}

func (p *Provider) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return p.defModel
}

// Chat dispatches to the Ollama or OpenAI-compatible shape.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if !p.ollama {
		return p.compat.Chat(ctx, req)
	}
	return p.ollamaChat(ctx, req)
}

func (p *Provider) ollamaChat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	body := ollamaChatRequest{
		Model:  p.modelOrDefault(req.Model),
		Stream: false,
	}
	body.Options.Temperature = req.Temperature
	body.Options.TopP = req.TopP
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, adapter.InvalidResponseError(p.id, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, adapter.NetworkError(p.id, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError(p.id, ctxErr)
		}
		return nil, adapter.NetworkError(p.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, p.id)
	}

	var wire ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError(p.id, err)
	}

	out := &core.ChatResponse{
		Provider: p.id,
		Model:    wire.Model,
		Choices: []core.ChatChoice{{
			Index:        0,
			Message:      types.NewAssistantMessage(wire.Message.Content),
			FinishReason: "stop",
		}},
		Usage: core.Usage{
			PromptTokens:     wire.PromptEvalCount,
			CompletionTokens: wire.EvalCount,
			TotalTokens:      wire.PromptEvalCount + wire.EvalCount,
		},
		Created:   start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	out.Cost = p.pricing.Cost(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// ListModels lists installed models via /api/tags for Ollama or
// {base}/models for the OpenAI-compatible fallback.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	if !p.ollama {
		return p.compat.ListModels(ctx)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, adapter.NetworkError(p.id, err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, adapter.NetworkError(p.id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, p.id)
	}
	var wire struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError(p.id, err)
	}
	names := make([]string, 0, len(wire.Models))
	for _, m := range wire.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HealthCheck probes /api/tags for Ollama, or defers to
// the compat base's models probe otherwise.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	if !p.ollama {
		return p.compat.HealthCheck(ctx)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
