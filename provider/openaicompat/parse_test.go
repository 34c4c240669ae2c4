package openaicompat

import (
	"testing"

	"github.com/nevindra/courier"
)

func TestParseResponse_FinishReasons(t *testing.T) {
	tests := []struct {
		choice Choice
		want   courier.FinishReason
	}{
		{Choice{Message: &ChoiceMessage{Content: "x"}, FinishReason: "stop"}, courier.FinishStop},
		{Choice{Message: &ChoiceMessage{Content: "x"}, FinishReason: "length"}, courier.FinishLength},
		{Choice{Message: &ChoiceMessage{}, FinishReason: "content_filter"}, courier.FinishBlocked},
		{Choice{Message: &ChoiceMessage{Refusal: "I can't help"}, FinishReason: "stop"}, courier.FinishBlocked},
		{Choice{Message: &ChoiceMessage{}, FinishReason: "tool_calls"}, courier.FinishToolCalls},
	}
	for _, tt := range tests {
		resp, err := ParseResponse(ChatResponse{Choices: []Choice{tt.choice}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.FinishReason != tt.want {
			t.Errorf("finish %q: got %q, want %q", tt.choice.FinishReason, resp.FinishReason, tt.want)
		}
	}
}

func TestParseResponse_NoChoices(t *testing.T) {
	resp, err := ParseResponse(ChatResponse{Usage: &Usage{PromptTokens: 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "" || resp.Usage.InputTokens != 3 {
		t.Errorf("got %+v", resp)
	}
}

func TestParseToolCalls(t *testing.T) {
	calls := ParseToolCalls([]ToolCallRequest{
		{ID: "a", Function: FunctionCall{Name: "web_search", Arguments: `{"query":"moon"}`}},
		{ID: "b", Function: FunctionCall{Name: "broken", Arguments: `{not json`}},
	})
	if len(calls) != 2 {
		t.Fatalf("got %d calls", len(calls))
	}
	if string(calls[0].Args) != `{"query":"moon"}` {
		t.Errorf("args: %s", calls[0].Args)
	}
	if string(calls[1].Args) != `{}` {
		t.Errorf("invalid args should become {}: %s", calls[1].Args)
	}
	if ParseToolCalls(nil) != nil {
		t.Error("nil in, nil out")
	}
}
