package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nevindra/courier"
)

// Provider implements courier.Provider for any OpenAI-compatible API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
}

// NewProvider creates an OpenAI-compatible chat provider. baseURL is the
// API base (e.g. "https://api.openai.com/v1"); /chat/completions is
// appended automatically.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// mergeGenParams returns the provider's base options with per-request
// GenerationParams appended, so the request wins.
func (p *Provider) mergeGenParams(params *courier.GenerationParams) []Option {
	if params == nil {
		return p.opts
	}
	opts := make([]Option, len(p.opts), len(p.opts)+2)
	copy(opts, p.opts)
	if params.Temperature != nil {
		opts = append(opts, WithTemperature(*params.Temperature))
	}
	if params.MaxTokens != nil {
		opts = append(opts, WithMaxTokens(*params.MaxTokens))
	}
	return opts
}

// Chat sends a chat request and returns the complete response. When
// req.Tools is non-empty, the response may contain ToolCalls.
func (p *Provider) Chat(ctx context.Context, req courier.ChatRequest) (courier.ChatResponse, error) {
	body := BuildBody(req.Messages, req.Tools, p.model, req.ResponseSchema, p.mergeGenParams(req.GenerationParams)...)

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		return courier.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return courier.ChatResponse{}, p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return courier.ChatResponse{}, &courier.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return ParseResponse(chatResp)
}

// sendHTTP marshals the request body and sends it to the chat completions endpoint.
func (p *Provider) sendHTTP(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &courier.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &courier.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return p.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP for retry middleware.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &courier.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: courier.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ courier.Provider = (*Provider)(nil)
