// Package gemini implements courier.Provider for Google Gemini models via
// the generateContent REST API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nevindra/courier"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements courier.Provider for Google Gemini models.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	temperature      float64
	topP             float64
	maxTokens        int
	thinkingEnabled  bool
	structuredOutput bool
}

// New creates a new Gemini chat provider with functional options.
func New(apiKey, model string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:           apiKey,
		model:            model,
		baseURL:          defaultBaseURL,
		httpClient:       &http.Client{},
		temperature:      0.7,
		topP:             0.9,
		structuredOutput: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Chat sends a generateContent request. When req.Tools is non-empty the
// response may carry function calls.
func (g *Gemini) Chat(ctx context.Context, req courier.ChatRequest) (courier.ChatResponse, error) {
	body := g.buildBody(req.Messages, req.Tools, req.ResponseSchema, req.GenerationParams)
	return g.doGenerate(ctx, body)
}

func (g *Gemini) doGenerate(ctx context.Context, body map[string]any) (courier.ChatResponse, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))

	payload, err := json.Marshal(body)
	if err != nil {
		return courier.ChatResponse{}, g.wrapErr("marshal body: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return courier.ChatResponse{}, g.wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		// Keep the transport error in the chain so timeouts stay retryable.
		return courier.ChatResponse{}, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return courier.ChatResponse{}, fmt.Errorf("gemini: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return courier.ChatResponse{}, httpErr(resp, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return courier.ChatResponse{}, g.wrapErr("failed to parse response JSON: " + err.Error())
	}
	return parseResponse(parsed), nil
}

func parseResponse(parsed geminiResponse) courier.ChatResponse {
	var out courier.ChatResponse
	if parsed.UsageMetadata != nil {
		out.Usage.InputTokens = parsed.UsageMetadata.PromptTokenCount
		out.Usage.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		out.FinishReason = courier.FinishBlocked
		return out
	}
	if len(parsed.Candidates) == 0 {
		return out
	}

	cand := parsed.Candidates[0]
	var content strings.Builder
	for _, part := range cand.Content.Parts {
		// Thinking parts are internal reasoning, not the answer.
		if part.Thought {
			continue
		}
		if part.Text != nil {
			content.WriteString(*part.Text)
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			out.ToolCalls = append(out.ToolCalls, courier.ToolCall{
				// Gemini has no call ids; the function name pairs the response.
				ID:   part.FunctionCall.Name,
				Name: part.FunctionCall.Name,
				Args: args,
			})
		}
	}
	out.Content = content.String()
	out.FinishReason = finishReason(cand.FinishReason, len(out.ToolCalls) > 0)
	return out
}

func finishReason(reason string, hasCalls bool) courier.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return courier.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return courier.FinishBlocked
	}
	if hasCalls {
		return courier.FinishToolCalls
	}
	return courier.FinishStop
}

func (g *Gemini) wrapErr(msg string) error {
	return &courier.ErrLLM{Provider: "gemini", Message: msg}
}

// httpErr creates an ErrHTTP from an HTTP response, extracting the retry delay
// from the Retry-After header or from the google.rpc.RetryInfo detail in the
// JSON error body.
func httpErr(resp *http.Response, body string) *courier.ErrHTTP {
	ra := courier.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &courier.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: ra,
	}
}

// parseRetryInfo extracts the retryDelay from a Gemini error body containing
// a google.rpc.RetryInfo detail. Returns 0 if not found or unparseable.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}

// ---- Response parsing types ----

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *promptFeedback   `json:"promptFeedback,omitempty"`
	UsageMetadata  *geminiUsage      `json:"usageMetadata"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text         *string         `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
	Thought      bool            `json:"thought,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

var _ courier.Provider = (*Gemini)(nil)
