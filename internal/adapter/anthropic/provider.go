// Package anthropic implements the Claude Messages API adapter as an
// independent protocol, not an openaicompat variant: system prompt is
// lifted to a top-level field, auth uses x-api-key instead of Bearer,
// and usage/response shapes diverge from the OpenAI envelope. Grounded
// on the teacher's llm/providers/anthropic/doc.go design notes (no
// implementation existed in the pack) and on
// original_source/backend/providers/anthropic.rs for exact wire
// semantics.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

// Config configures the Claude adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Claude Messages API adapter.
type Provider struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

// New builds a Claude adapter.
func New(cfg Config) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

var _ adapter.Provider = (*Provider)(nil)

// Definition reports this adapter's identity and pricing.
func (p *Provider) Definition() core.ProviderConfig {
	return core.ProviderConfig{ID: "anthropic", Name: "Anthropic", Pricing: p.cfg.Pricing, BaseURL: p.baseURL}
}

func (p *Provider) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return p.cfg.DefaultModel
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
}

type claudeResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// convertMessages lifts the system message to a top-level field, per
// Anthropic's Messages API — the rest pass through role/content as-is.
func convertMessages(msgs []types.Message) (string, []claudeMessage) {
	var system string
	converted := make([]claudeMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = m.Content
			continue
		}
		converted = append(converted, claudeMessage{Role: string(m.Role), Content: m.Content})
	}
	return system, converted
}

// Chat performs a non-streaming call to {base}/messages.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	system, messages := convertMessages(req.Messages)

	body := claudeRequest{
		Model:       p.modelOrDefault(req.Model),
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		TopP:        req.TopP,
		StopSeq:     req.Stop,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, adapter.InvalidResponseError("anthropic", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, adapter.NetworkError("anthropic", err)
	}
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError("anthropic", ctxErr)
		}
		return nil, adapter.NetworkError("anthropic", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, "anthropic")
	}

	var wire claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError("anthropic", err)
	}

	var text string
	for _, c := range wire.Content {
		if c.Type == "text" {
			text = c.Text
			break
		}
	}

	out := &core.ChatResponse{
		ID:       wire.ID,
		Provider: "anthropic",
		Model:    body.Model,
		Choices: []core.ChatChoice{{
			Index:        0,
			Message:      types.NewAssistantMessage(text),
			FinishReason: wire.StopReason,
		}},
		Usage: core.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
		Created:   start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	out.Cost = p.cfg.Pricing.Cost(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// ListModels returns the known Claude model family; Anthropic has no
// public models-listing endpoint.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return []string{
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
	}, nil
}

// HealthCheck issues a minimal one-token completion, since Anthropic has
// no dedicated health endpoint; a 400 (e.g. bad test model) still proves
// reachability and auth.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	body := claudeRequest{
		Model:     p.modelOrDefault("claude-3-haiku-20240307"),
		Messages:  []claudeMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return false
	}
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300 || resp.StatusCode == http.StatusBadRequest
}
