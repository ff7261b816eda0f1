// Package cohere adapts Cohere's Chat API, whose message shape diverges
// from the OpenAI envelope: a single current "message" plus a
// "chat_history" of prior turns, and a "preamble" standing in for the
// system prompt. Grounded on
// original_source/backend/providers/cohere.rs.
package cohere

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

const defaultBaseURL = "https://api.cohere.ai/v1"

// Config configures the Cohere adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Cohere adapter.
type Provider struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

// New builds a Cohere adapter.
func New(cfg Config) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{cfg: cfg, baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: cfg.Timeout}}
}

var _ adapter.Provider = (*Provider)(nil)

// Definition reports this adapter's identity and pricing.
func (p *Provider) Definition() core.ProviderConfig {
	return core.ProviderConfig{ID: "cohere", Name: "Cohere", Pricing: p.cfg.Pricing, BaseURL: p.baseURL}
}

func (p *Provider) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return p.cfg.DefaultModel
}

type cohereHistoryTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type cohereRequest struct {
	Model       string              `json:"model"`
	Message     string              `json:"message"`
	Temperature float64             `json:"temperature,omitempty"`
	ChatHistory []cohereHistoryTurn `json:"chat_history,omitempty"`
	Preamble    string              `json:"preamble,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type cohereResponse struct {
	GenerationID string `json:"generation_id"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
	Meta         struct {
		Tokens struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"tokens"`
	} `json:"meta"`
}

// splitHistory turns the uniform message list into Cohere's
// (preamble, chat_history, current message) triple: the last user turn
// becomes "message", everything before it becomes history.
func splitHistory(msgs []types.Message) (preamble string, history []cohereHistoryTurn, current string) {
	var pending string
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			preamble = m.Content
		case types.RoleUser:
			if pending != "" {
				history = append(history, cohereHistoryTurn{Role: "USER", Message: pending})
			}
			pending = m.Content
		case types.RoleAssistant:
			if pending != "" {
				history = append(history, cohereHistoryTurn{Role: "USER", Message: pending})
				pending = ""
			}
			history = append(history, cohereHistoryTurn{Role: "CHATBOT", Message: m.Content})
		}
	}
	current = pending
	return
}

// Chat calls {base}/chat.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	preamble, history, current := splitHistory(req.Messages)

	body := cohereRequest{
		Model:       p.modelOrDefault(req.Model),
		Message:     current,
		Temperature: req.Temperature,
		ChatHistory: history,
		Preamble:    preamble,
		MaxTokens:   req.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, adapter.InvalidResponseError("cohere", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, adapter.NetworkError("cohere", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError("cohere", ctxErr)
		}
		return nil, adapter.NetworkError("cohere", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, "cohere")
	}

	var wire cohereResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError("cohere", err)
	}

	out := &core.ChatResponse{
		ID:       wire.GenerationID,
		Provider: "cohere",
		Model:    body.Model,
		Choices: []core.ChatChoice{{
			Index:        0,
			Message:      types.NewAssistantMessage(wire.Text),
			FinishReason: wire.FinishReason,
		}},
		Usage: core.Usage{
			PromptTokens:     wire.Meta.Tokens.InputTokens,
			CompletionTokens: wire.Meta.Tokens.OutputTokens,
			TotalTokens:      wire.Meta.Tokens.InputTokens + wire.Meta.Tokens.OutputTokens,
		},
		Created:   start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	out.Cost = p.cfg.Pricing.Cost(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// ListModels returns Cohere's known command-model family; there is no
// need to call a models endpoint for a fixed, small catalog.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"command-r-plus", "command-r", "command", "command-light", "command-a-03-2025"}, nil
}

// HealthCheck probes {base}/models.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
