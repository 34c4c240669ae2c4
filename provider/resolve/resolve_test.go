package resolve

import (
	"testing"
)

func TestDefaultBaseURL(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"openrouter", "https://openrouter.ai/api/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
		{"deepseek", "https://api.deepseek.com/v1"},
		{"together", "https://api.together.xyz/v1"},
		{"mistral", "https://api.mistral.ai/v1"},
		{"ollama", "http://localhost:11434/v1"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := defaultBaseURL(tt.provider); got != tt.want {
			t.Errorf("defaultBaseURL(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestProvider_Names(t *testing.T) {
	temp := 0.3
	for _, name := range []string{"gemini", "anthropic", "openai", "groq", "ollama"} {
		p, err := Provider(Config{
			Provider:    name,
			APIKey:      "test-key",
			Model:       "some-model",
			Temperature: &temp,
			MaxTokens:   256,
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("Name() = %q, want %q", p.Name(), name)
		}
	}
}

func TestProvider_Unknown(t *testing.T) {
	if _, err := Provider(Config{Provider: "carrier-pigeon", Model: "m"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestProvider_MissingModel(t *testing.T) {
	if _, err := Provider(Config{Provider: "openai"}); err == nil {
		t.Fatal("expected error when model is empty")
	}
}

func TestProvider_OpenAICompatNeedsBaseURL(t *testing.T) {
	if _, err := Provider(Config{Provider: "openai-compat", Model: "m"}); err == nil {
		t.Fatal("expected error without base_url")
	}
	p, err := Provider(Config{Provider: "openai-compat", Model: "m", BaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai-compat" {
		t.Errorf("Name() = %q", p.Name())
	}
}
