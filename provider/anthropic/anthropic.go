// Package anthropic implements courier.Provider on top of the official
// Anthropic Messages SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nevindra/courier"
)

// DefaultMaxTokens is sent when neither the provider nor the request caps
// output. The Messages API requires an explicit limit.
const DefaultMaxTokens = 4096

// Provider implements courier.Provider for Claude models.
type Provider struct {
	client      sdk.Client
	model       string
	maxTokens   int
	temperature *float64
}

// Option configures a Provider.
type Option func(*config)

type config struct {
	baseURL     string
	httpClient  *http.Client
	maxTokens   int
	temperature *float64
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpClient = h }
}

// WithMaxTokens sets the default output cap.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = &t }
}

// New creates a Claude provider. SDK-level retries are disabled; callers
// wrap the provider with courier.WithRetry instead.
func New(apiKey, model string, opts ...Option) *Provider {
	cfg := config{maxTokens: DefaultMaxTokens}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Provider{
		client:      sdk.NewClient(reqOpts...),
		model:       model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
	}
}

// Name returns "anthropic".
func (p *Provider) Name() string { return "anthropic" }

// Chat sends one Messages request.
func (p *Provider) Chat(ctx context.Context, req courier.ChatRequest) (courier.ChatResponse, error) {
	params := p.buildParams(req)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return courier.ChatResponse{}, convertErr(err)
	}
	return parseMessage(resp), nil
}

func (p *Provider) buildParams(req courier.ChatRequest) sdk.MessageNewParams {
	system, messages := convertMessages(req.Messages)
	if req.ResponseSchema != nil && len(req.ResponseSchema.Schema) > 0 {
		// No native structured output; ask for it in the prompt.
		system = append(system, sdk.TextBlockParam{
			Text: "Respond with JSON only, matching this schema:\n" + string(req.ResponseSchema.Schema),
		})
	}

	maxTokens := p.maxTokens
	temperature := p.temperature
	if gp := req.GenerationParams; gp != nil {
		if gp.MaxTokens != nil {
			maxTokens = *gp.MaxTokens
		}
		if gp.Temperature != nil {
			temperature = gp.Temperature
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  messages,
	}
	if temperature != nil {
		params.Temperature = sdk.Float(*temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

// convertMessages splits system prompts out and merges consecutive tool
// results into a single user turn, which the Messages API requires.
func convertMessages(msgs []courier.ChatMessage) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	var out []sdk.MessageParam
	var pendingResults []sdk.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "tool":
			pendingResults = append(pendingResults,
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, strings.HasPrefix(m.Content, "error:")))
		case "assistant":
			flush()
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Args) > 0 {
					input = tc.Args
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	flush()
	return system, out
}

func convertTools(defs []courier.ToolDefinition) []sdk.ToolUnionParam {
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		_ = json.Unmarshal(d.Parameters, &schema)
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}
		tools = append(tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return tools
}

func parseMessage(msg *sdk.Message) courier.ChatResponse {
	var out courier.ChatResponse
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			text.WriteString(variant.Text)
		case sdk.ToolUseBlock:
			args := json.RawMessage(variant.Input)
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			out.ToolCalls = append(out.ToolCalls, courier.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
	}
	out.Content = text.String()
	out.Usage = courier.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	out.FinishReason = stopReason(string(msg.StopReason), len(out.ToolCalls) > 0)
	return out
}

func stopReason(reason string, hasCalls bool) courier.FinishReason {
	switch reason {
	case "max_tokens":
		return courier.FinishLength
	case "refusal":
		return courier.FinishBlocked
	case "tool_use":
		return courier.FinishToolCalls
	}
	if hasCalls {
		return courier.FinishToolCalls
	}
	return courier.FinishStop
}

// convertErr maps SDK API errors onto courier.ErrHTTP so the shared retry
// policy sees status codes and Retry-After.
func convertErr(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		httpErr := &courier.ErrHTTP{Status: apiErr.StatusCode, Body: apiErr.Error()}
		if apiErr.Response != nil {
			httpErr.RetryAfter = courier.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return httpErr
	}
	return fmt.Errorf("anthropic: %w", err)
}

var _ courier.Provider = (*Provider)(nil)
