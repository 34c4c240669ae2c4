package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevindra/courier"
)

func TestProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %s", req.Model)
		}
		if req.Temperature == nil || *req.Temperature != 0.2 {
			t.Errorf("per-request temperature not applied: %v", req.Temperature)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			ID: "chatcmpl-1",
			Choices: []Choice{{
				Message:      &ChoiceMessage{Role: "assistant", Content: "Hello!"},
				FinishReason: "stop",
			}},
			Usage: &Usage{PromptTokens: 5, CompletionTokens: 2},
		})
	}))
	defer srv.Close()

	p := NewProvider("test-key", "gpt-4o", srv.URL+"/", WithOptions(WithTemperature(0.9)))
	temp := 0.2
	resp, err := p.Chat(context.Background(), courier.ChatRequest{
		Messages:         []courier.ChatMessage{courier.UserMessage("Hi")},
		GenerationParams: &courier.GenerationParams{Temperature: &temp},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if resp.FinishReason != courier.FinishStop {
		t.Errorf("got finish reason %q", resp.FinishReason)
	}
}

func TestProvider_Chat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	_, err := NewProvider("k", "m", srv.URL).Chat(context.Background(), courier.ChatRequest{})
	var httpErr *courier.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected ErrHTTP, got %v", err)
	}
	if httpErr.Status != 429 || httpErr.RetryAfter != 3*time.Second {
		t.Errorf("got %+v", httpErr)
	}
	if !courier.IsTransient(err) {
		t.Error("429 should be transient")
	}
}

func TestProvider_Chat_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewProvider("k", "m", srv.URL, WithName("groq"))
	_, err := p.Chat(context.Background(), courier.ChatRequest{})
	var llmErr *courier.ErrLLM
	if !errors.As(err, &llmErr) || llmErr.Provider != "groq" {
		t.Fatalf("expected ErrLLM from groq, got %v", err)
	}
}
