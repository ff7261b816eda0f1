// Package gemini adapts Google's Generative Language API. Grounded on
// the teacher's llm/providers/gemini/provider.go: x-goog-api-key header,
// role renaming (assistant -> model), system instruction as its own
// top-level field, and the generateContent endpoint shape — generalized
// here onto core.ChatRequest/core.ChatResponse.
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Config configures the Gemini adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Gemini adapter.
type Provider struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

// New builds a Gemini adapter.
func New(cfg Config) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
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
	return core.ProviderConfig{ID: "gemini", Name: "Gemini", Pricing: p.cfg.Pricing, BaseURL: p.baseURL}
}

func (p *Provider) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return p.cfg.DefaultModel
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64  `json:"temperature,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

// convertContents maps role "assistant" to Gemini's "model" and pulls
// the system message out to its own top-level field.
func convertContents(msgs []types.Message) (*geminiContent, []geminiContent) {
	var system *geminiContent
	contents := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := string(m.Role)
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return system, contents
}

// Chat performs a non-streaming generateContent call.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	model := p.modelOrDefault(req.Model)
	system, contents := convertContents(req.Messages)

	body := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		},
		SystemInstruction: system,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, adapter.InvalidResponseError("gemini", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, adapter.NetworkError("gemini", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError("gemini", ctxErr)
		}
		return nil, adapter.NetworkError("gemini", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, "gemini")
	}

	var wire geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError("gemini", err)
	}

	out := &core.ChatResponse{
		Provider:  "gemini",
		Model:     model,
		Created:   start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	for i, c := range wire.Candidates {
		var text string
		if len(c.Content.Parts) > 0 {
			text = c.Content.Parts[0].Text
		}
		out.Choices = append(out.Choices, core.ChatChoice{
			Index:        i,
			Message:      types.NewAssistantMessage(text),
			FinishReason: c.FinishReason,
		})
	}
	if wire.UsageMetadata != nil {
		out.Usage = core.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}
	out.Cost = p.cfg.Pricing.Cost(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// ListModels fetches {base}/v1beta/models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	endpoint := p.baseURL + "/v1beta/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, adapter.NetworkError("gemini", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, adapter.NetworkError("gemini", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg := adapter.ReadErrorMessage(resp.Body)
		return nil, adapter.MapHTTPError(resp.StatusCode, msg, "gemini")
	}

	var wire struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, adapter.InvalidResponseError("gemini", err)
	}
	ids := make([]string, 0, len(wire.Models))
	for _, m := range wire.Models {
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}

// HealthCheck probes the models-listing endpoint.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	endpoint := p.baseURL + "/v1beta/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	p.buildHeaders(httpReq)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
