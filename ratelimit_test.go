package courier

import (
	"context"
	"testing"
	"time"
)

func TestWithRateLimit_Unlimited(t *testing.T) {
	stub := &stubProvider{}
	p := WithRateLimit(stub, RateLimit{})
	for range 50 {
		if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if stub.callCount() != 50 {
		t.Errorf("got %d calls, want 50", stub.callCount())
	}
}

func TestWithRateLimit_RPMBlocks(t *testing.T) {
	stub := &stubProvider{}
	p := WithRateLimit(stub, RateLimit{RPM: 2})

	for range 2 {
		if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
			t.Fatalf("burst request failed: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected third request to be refused within the minute")
	}
	if stub.callCount() != 2 {
		t.Errorf("got %d calls, want 2", stub.callCount())
	}
}

func TestWithRateLimit_TPMBlocksAfterOverspend(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "big", Usage: Usage{InputTokens: 900, OutputTokens: 300}}},
	}}
	p := WithRateLimit(stub, RateLimit{TPM: 1000})

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if resp.Content != "big" {
		t.Errorf("got %q, want %q", resp.Content, "big")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected request to wait for the token budget")
	}
}

func TestWithRateLimit_TPMIgnoresFailedRequests(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Usage: Usage{InputTokens: 5000}}, err: &ErrHTTP{Status: 500}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRateLimit(stub, RateLimit{TPM: 1000})

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected first request to fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp, err := p.Chat(ctx, ChatRequest{})
	if err != nil {
		t.Fatalf("second request should not be throttled: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
}
