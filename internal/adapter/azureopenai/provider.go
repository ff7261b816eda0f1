// Package azureopenai adapts Azure OpenAI's deployment-scoped chat
// endpoint: {base}/openai/deployments/{deployment}/chat/completions,
// api-key header instead of Bearer, and api-version querystring.
// Grounded on original_source/backend/providers/azure_openai.rs.
package azureopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
)

const defaultAPIVersion = "2024-02-15-preview"

// Config configures the Azure OpenAI adapter. Model, when set on a
// request, is treated as the deployment name — Azure has no separate
// model field.
type Config struct {
	APIKey     string
	BaseURL    string // https://{resource}.openai.azure.com
	APIVersion string // defaults to 2024-02-15-preview
	Pricing    core.Pricing
	Timeout    time.Duration
}

// Provider is the Azure OpenAI adapter.
type Provider struct {
	cfg        Config
	baseURL    string
	apiVersion string
	client     *http.Client
}

// New builds an Azure OpenAI adapter.
func New(cfg Config) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Provider{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: apiVersion,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

var _ adapter.Provider = (*Provider)(nil)

// Definition reports this adapter's identity and pricing.
func (p *Provider) Definition() core.ProviderConfig {
	return core.ProviderConfig{ID: "azure_openai", Name: "Azure OpenAI", Pricing: p.cfg.Pricing, BaseURL: p.baseURL}
}

type azureMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type azureRequest struct {
	Messages    []azureMessage `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	TopP        float64        `json:"top_p,omitempty"`
}

type azureResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
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

// Chat dispatches to {base}/openai/deployments/{deployment}/chat/completions,
// where {deployment} is req.Model.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	if req.Model == "" {
		return nil, adapter.InvalidResponseError("azure_openai", fmt.Errorf("deployment name (model) is required for Azure OpenAI"))
	}

	body := azureRequest{Temperature: req.Temperature, MaxTokens: req.MaxTokens, TopP: req.TopP}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, azureMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, adapter.InvalidResponseError("azure_openai", err)
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", p.baseURL, req.Model, p.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, adapter.NetworkError("azure_openai", err)
	}
	httpReq.Header.Set("api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError("azure_openai", ctxErr)
		}
		return nil, adapter.NetworkError("azure_openai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, "azure_openai")
	}

	var wire azureResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError("azure_openai", err)
	}

	out := &core.ChatResponse{
		ID:       wire.ID,
		Provider: "azure_openai",
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
			Message:      types.NewAssistantMessage(c.Message.Content),
			FinishReason: c.FinishReason,
		})
	}
	out.Cost = p.cfg.Pricing.Cost(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// ListModels returns deployment names, which are project-specific and
// cannot be enumerated without the Azure management API; operators
// configure them explicitly via account models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

// HealthCheck lists deployments via the management surface.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/openai/deployments?api-version=%s", p.baseURL, p.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("api-key", p.cfg.APIKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
