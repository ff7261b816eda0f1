// Package bedrock adapts AWS Bedrock's InvokeModel runtime API, using
// the real aws-sdk-go-v2 bedrockruntime client (SigV4 signing, regional
// endpoints) rather than hand-rolled HTTP, the way
// lookatitude/beluga-ai's llms/bedrock package does it. Bedrock hosts
// several wire-incompatible model families behind one runtime API, so
// request/response bodies are built and parsed per family, grounded on
// original_source/src/providers/bedrock.rs's get_model_family dispatch.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/BaSui01/agentflow/internal/adapter"
	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
)

// Config configures the Bedrock adapter.
type Config struct {
	Region       string
	DefaultModel string
	Pricing      core.Pricing
	Timeout      time.Duration
}

// Provider is the Bedrock adapter. Credentials are resolved through the
// standard AWS SDK chain (env vars, shared config, instance role) — the
// gateway never stores AWS secret keys itself.
type Provider struct {
	client  *bedrockruntime.Client
	region  string
	cfg     Config
}

// New builds a Bedrock adapter, loading AWS credentials via the default
// SDK chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	region := cfg.Region
	if region == "" {
		region = awsCfg.Region
	}
	if region == "" {
		region = "us-east-1"
	}
	return &Provider{
		client: bedrockruntime.NewFromConfig(awsCfg),
		region: region,
		cfg:    cfg,
	}, nil
}

var _ adapter.Provider = (*Provider)(nil)

// Definition reports this adapter's identity and pricing.
func (p *Provider) Definition() core.ProviderConfig {
	return core.ProviderConfig{ID: "bedrock", Name: "AWS Bedrock", Pricing: p.cfg.Pricing, BaseURL: "bedrock-runtime." + p.region + ".amazonaws.com"}
}

func modelFamily(model string) string {
	switch {
	case strings.Contains(model, "claude"):
		return "anthropic"
	case strings.Contains(model, "llama") || strings.Contains(model, "meta"):
		return "meta"
	case strings.Contains(model, "titan"):
		return "amazon"
	case strings.Contains(model, "mistral"):
		return "mistral"
	default:
		return "anthropic"
	}
}

func (p *Provider) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return p.cfg.DefaultModel
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildRequestBody(family string, req *core.ChatRequest) ([]byte, error) {
	switch family {
	case "anthropic":
		var system string
		var messages []anthropicMsg
		for _, m := range req.Messages {
			if m.Role == types.RoleSystem {
				system = m.Content
				continue
			}
			messages = append(messages, anthropicMsg{Role: string(m.Role), Content: m.Content})
		}
		body := map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        req.MaxTokens,
			"temperature":       req.Temperature,
			"messages":          messages,
		}
		if system != "" {
			body["system"] = system
		}
		return json.Marshal(body)
	case "meta":
		var b strings.Builder
		for _, m := range req.Messages {
			fmt.Fprintf(&b, "[%s]: %s\n", strings.ToUpper(string(m.Role)), m.Content)
		}
		return json.Marshal(map[string]any{
			"prompt":        b.String(),
			"max_gen_len":   req.MaxTokens,
			"temperature":   req.Temperature,
		})
	case "mistral":
		var b strings.Builder
		for _, m := range req.Messages {
			fmt.Fprintf(&b, "<%s>%s</%s>\n", m.Role, m.Content, m.Role)
		}
		return json.Marshal(map[string]any{
			"prompt":      b.String(),
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
		})
	default:
		var b strings.Builder
		for i, m := range req.Messages {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(m.Content)
		}
		return json.Marshal(map[string]any{
			"inputText": b.String(),
			"textGenerationConfig": map[string]any{
				"maxTokenCount": req.MaxTokens,
				"temperature":   req.Temperature,
			},
		})
	}
}

func parseResponseBody(family string, body []byte) (text string, promptTokens, completionTokens int, err error) {
	var wire map[string]json.RawMessage
	if err = json.Unmarshal(body, &wire); err != nil {
		return "", 0, 0, err
	}
	switch family {
	case "anthropic":
		var parsed struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err = json.Unmarshal(body, &parsed); err != nil {
			return "", 0, 0, err
		}
		if len(parsed.Content) > 0 {
			text = parsed.Content[0].Text
		}
		return text, parsed.Usage.InputTokens, parsed.Usage.OutputTokens, nil
	case "meta":
		var parsed struct {
			Generation           string `json:"generation"`
			PromptTokenCount     int    `json:"prompt_token_count"`
			GenerationTokenCount int    `json:"generation_token_count"`
		}
		if err = json.Unmarshal(body, &parsed); err != nil {
			return "", 0, 0, err
		}
		return parsed.Generation, parsed.PromptTokenCount, parsed.GenerationTokenCount, nil
	case "mistral":
		var parsed struct {
			Outputs []struct {
				Text string `json:"text"`
			} `json:"outputs"`
		}
		if err = json.Unmarshal(body, &parsed); err != nil {
			return "", 0, 0, err
		}
		if len(parsed.Outputs) > 0 {
			text = parsed.Outputs[0].Text
		}
		return text, 0, 0, nil
	default:
		var parsed struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err = json.Unmarshal(body, &parsed); err != nil {
			return "", 0, 0, err
		}
		if len(parsed.Results) > 0 {
			text = parsed.Results[0].OutputText
		}
		return text, 0, 0, nil
	}
}

// Chat invokes the model via bedrockruntime.InvokeModel, branching the
// request/response shape on the model's family.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	model := p.modelOrDefault(req.Model)
	family := modelFamily(model)

	payload, err := buildRequestBody(family, req)
	if err != nil {
		return nil, adapter.InvalidResponseError("bedrock", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, adapter.TimeoutError("bedrock", ctxErr)
		}
		return nil, adapter.NetworkError("bedrock", err)
	}

	text, promptTokens, completionTokens, err := parseResponseBody(family, out.Body)
	if err != nil {
		return nil, adapter.InvalidResponseError("bedrock", err)
	}

	resp := &core.ChatResponse{
		Provider: "bedrock",
		Model:    model,
		Choices: []core.ChatChoice{{
			Message:      types.NewAssistantMessage(text),
			FinishReason: "stop",
		}},
		Usage: core.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Created:   start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	resp.Cost = p.cfg.Pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// ListModels returns a representative sample of common Bedrock model
// ids; the full catalog is account- and region-specific and would
// require the separate Bedrock (non-runtime) control-plane API.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return []string{
		"anthropic.claude-3-sonnet-20240229-v1:0",
		"anthropic.claude-3-haiku-20240307-v1:0",
		"amazon.titan-text-express-v1",
		"meta.llama3-70b-instruct-v1:0",
	}, nil
}

// HealthCheck sends no request: it reports true once the SDK client has
// been built. Bedrock's runtime API has no lightweight ping, and a real
// invoke would incur cost on every probe.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	return p.client != nil
}
