package courier

import (
	"context"
	"encoding/json"
	"sync"
)

// stubProvider is a test Provider that returns pre-configured results in
// order and records every request it sees.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	results []stubResult
	reqs    []ChatRequest
}

type stubResult struct {
	resp ChatResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i].resp, s.results[i].err
	}
	return ChatResponse{}, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ Provider = (*stubProvider)(nil)

// funcTool exposes one function backed by fn.
type funcTool struct {
	name string
	fn   func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

func (f funcTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: f.name, Description: "test tool", Parameters: json.RawMessage(`{"type":"object"}`)}}
}

func (f funcTool) Execute(ctx context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	return f.fn(ctx, args)
}
