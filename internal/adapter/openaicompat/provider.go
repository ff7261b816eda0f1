// Package openaicompat is the base adapter for every OpenAI-shaped wire
// protocol (OpenAI itself, Groq, Together, Mistral, and the local
// adapter's OpenAI-compatible servers). Providers embed
// *Provider and override only what differs (headers, endpoint, default
// model) — the same embedding pattern the teacher uses in
// llm/providers/openaicompat/provider.go, generalized here from
// llm.ChatRequest/llm.Provider onto core.ChatRequest/adapter.Provider.
package openaicompat

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

// Message/Tool wire shapes for the OpenAI chat/completions endpoint.
type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

// Config configures one OpenAI-compatible adapter instance.
type Config struct {
	ProviderID     string
	ProviderName   string
	BaseURL        string
	APIKey         string
	DefaultModel   string
	Pricing        core.Pricing
	Timeout        time.Duration
	EndpointPath   string // default "/chat/completions"
	ModelsPath     string // default "/models"
	BuildHeaders   func(req *http.Request, apiKey string)
}

// Provider is the base implementation. Embed it and override
// BuildHeaders/endpoint construction for protocol variants that diverge
// only in auth header shape. The azureopenai adapter does not embed it.
type Provider struct {
	Cfg    Config
	Client *http.Client
}

// New constructs a base OpenAI-compatible adapter.
func New(cfg Config) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "/models"
	}
	return &Provider{
		Cfg:    cfg,
		Client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

// Definition reports this adapter's identity and pricing to the router.
func (p *Provider) Definition() core.ProviderConfig {
	return core.ProviderConfig{
		ID:      p.Cfg.ProviderID,
		Name:    p.Cfg.ProviderName,
		Pricing: p.Cfg.Pricing,
		BaseURL: p.Cfg.BaseURL,
	}
}

func (p *Provider) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return p.Cfg.DefaultModel
}

// Chat performs a non-streaming chat completion against
// {base}/chat/completions per spec.md §4.3's OpenAI-compatible contract.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	body := chatRequestBody{
		Model:       p.modelOrDefault(req.Model),
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, adapter.InvalidResponseError(p.Cfg.ProviderID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, adapter.NetworkError(p.Cfg.ProviderID, err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError(p.Cfg.ProviderID, ctxErr)
		}
		return nil, adapter.NetworkError(p.Cfg.ProviderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, p.Cfg.ProviderID)
	}

	var wire chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError(p.Cfg.ProviderID, err)
	}

	out := &core.ChatResponse{
		ID:       wire.ID,
		Provider: p.Cfg.ProviderID,
		Model:    wire.Model,
		Usage: core.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
		Created:   start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	for _, c := range wire.Choices {
		out.Choices = append(out.Choices, core.ChatChoice{
			Index:        c.Index,
			Message:      types.NewAssistantMessage(c.Message.Content),
			FinishReason: c.FinishReason,
		})
	}
	out.Cost = p.Cfg.Pricing.Cost(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// ListModels fetches {base}/models and returns model ids.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsPath), nil)
	if err != nil {
		return nil, adapter.NetworkError(p.Cfg.ProviderID, err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, adapter.NetworkError(p.Cfg.ProviderID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, p.Cfg.ProviderID)
	}

	var wire struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError(p.Cfg.ProviderID, err)
	}
	ids := make([]string, 0, len(wire.Data))
	for _, m := range wire.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// HealthCheck probes the models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsPath), nil)
	if err != nil {
		return false
	}
	p.buildHeaders(httpReq)
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
