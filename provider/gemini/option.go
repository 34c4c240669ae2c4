package gemini

import "net/http"

// Option configures a Gemini provider.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature (default 0.7).
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// WithMaxTokens caps output tokens. Zero leaves the model default.
func WithMaxTokens(n int) Option {
	return func(g *Gemini) { g.maxTokens = n }
}

// WithThinking enables or disables thinking mode (default false).
// When enabled, sends thinkingConfig with budget -1 (dynamic).
func WithThinking(enabled bool) Option {
	return func(g *Gemini) { g.thinkingEnabled = enabled }
}

// WithStructuredOutput enables or disables structured JSON output (default true).
func WithStructuredOutput(enabled bool) Option {
	return func(g *Gemini) { g.structuredOutput = enabled }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.httpClient = c }
}

// WithBaseURL overrides the API base (default the public v1beta endpoint).
func WithBaseURL(u string) Option {
	return func(g *Gemini) { g.baseURL = u }
}
