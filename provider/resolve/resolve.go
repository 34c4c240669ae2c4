// Package resolve builds a courier.Provider from provider-agnostic config.
package resolve

import (
	"fmt"

	"github.com/nevindra/courier"
	"github.com/nevindra/courier/provider/anthropic"
	"github.com/nevindra/courier/provider/gemini"
	"github.com/nevindra/courier/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "gemini", "anthropic", "openai", "openrouter", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for openai-compat; auto-filled for known providers

	// Common cross-provider options (nil/zero = use provider default).
	Temperature *float64
	TopP        *float64
	Thinking    *bool
	MaxTokens   int
}

// Provider creates a courier.Provider from a provider-agnostic Config.
func Provider(cfg Config) (courier.Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("resolve: model is required for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		return geminiProvider(cfg), nil
	case "anthropic":
		return anthropicProvider(cfg), nil
	case "openai", "openrouter", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatProvider(cfg), nil
	case "openai-compat":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("resolve: base_url is required for provider %q", cfg.Provider)
		}
		return openaiCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

func geminiProvider(cfg Config) courier.Provider {
	var opts []gemini.Option
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.Thinking != nil {
		opts = append(opts, gemini.WithThinking(*cfg.Thinking))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, gemini.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

func anthropicProvider(cfg Config) courier.Provider {
	var opts []anthropic.Option
	if cfg.Temperature != nil {
		opts = append(opts, anthropic.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, anthropic.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(cfg.APIKey, cfg.Model, opts...)
}

func openaiCompatProvider(cfg Config) courier.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	var provOpts []openaicompat.ProviderOption
	provOpts = append(provOpts, openaicompat.WithName(cfg.Provider))

	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		reqOpts = append(reqOpts, openaicompat.WithMaxTokens(cfg.MaxTokens))
	}
	if len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, provOpts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
