// Package search provides the web_search tool: Brave Search results
// enriched with readable text from the top pages.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nevindra/courier"
)

const (
	defaultEndpoint   = "https://api.search.brave.com/res/v1/web/search"
	defaultMaxResults = 5
	defaultFetchPages = 2
	maxExcerptLen     = 1500
)

// Tool performs web searches via the Brave API.
type Tool struct {
	apiKey     string
	endpoint   string
	client     *http.Client
	policy     courier.RetryPolicy
	logger     *slog.Logger
	maxResults int
	fetchPages int
}

// Option configures a Tool.
type Option func(*Tool)

// WithEndpoint overrides the Brave search endpoint.
func WithEndpoint(u string) Option { return func(t *Tool) { t.endpoint = u } }

// WithHTTPClient sets the client used for search and page fetches.
func WithHTTPClient(c *http.Client) Option { return func(t *Tool) { t.client = c } }

// WithRetryPolicy sets the retry policy for Brave API calls.
func WithRetryPolicy(p courier.RetryPolicy) Option { return func(t *Tool) { t.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(t *Tool) { t.logger = l } }

// WithMaxResults caps how many search results are returned (default 5).
func WithMaxResults(n int) Option { return func(t *Tool) { t.maxResults = n } }

// WithFetchPages sets how many top results get their page text extracted
// (default 2, 0 disables fetching).
func WithFetchPages(n int) Option { return func(t *Tool) { t.fetchPages = n } }

// New creates a search tool. An empty apiKey yields a tool that reports
// itself unconfigured to the model.
func New(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		client:     &http.Client{Timeout: 15 * time.Second},
		policy:     courier.DefaultRetryPolicy(),
		maxResults: defaultMaxResults,
		fetchPages: defaultFetchPages,
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = courier.NopLogger
	}
	t.logger = t.logger.With("component", "search")
	return t
}

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Excerpt string // readable page text, may be empty
}

func (t *Tool) Definitions() []courier.ToolDefinition {
	return []courier.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web for current information: news, events, dates, facts you are unsure of.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (courier.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return courier.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return courier.ToolResult{Error: "query is required"}, nil
	}
	if t.apiKey == "" {
		return courier.ToolResult{Error: "web search is not configured"}, nil
	}

	results, err := t.Search(ctx, params.Query)
	if err != nil {
		t.logger.Error("search failed", "query", params.Query, "error", err)
		return courier.ToolResult{Error: err.Error()}, nil
	}
	return courier.ToolResult{Content: Format(params.Query, results)}, nil
}

// Search queries Brave and extracts page text for the top results.
func (t *Tool) Search(ctx context.Context, query string) ([]Result, error) {
	results, err := courier.Retry(ctx, t.policy, "brave_search", t.logger, func(ctx context.Context) ([]Result, error) {
		return t.brave(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	t.enrich(ctx, results)
	return results, nil
}

func (t *Tool) brave(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s?q=%s&count=%d", t.endpoint, url.QueryEscape(query), t.maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &courier.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: courier.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave search: parse response: %w", err)
	}

	results := make([]Result, 0, len(data.Web.Results))
	for _, r := range data.Web.Results {
		if len(results) == t.maxResults {
			break
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: stripTags(r.Description),
		})
	}
	return results, nil
}

// Format renders results as numbered plain text for the model.
func Format(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			b.WriteString(r.Snippet)
			b.WriteByte('\n')
		}
		if r.Excerpt != "" {
			b.WriteString(r.Excerpt)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripTags removes the <strong> highlighting Brave puts in descriptions.
func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>' && in:
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
