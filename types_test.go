package courier

import "testing"

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		msg  ChatMessage
		role string
	}{
		{SystemMessage("s"), "system"},
		{UserMessage("u"), "user"},
		{AssistantMessage("a"), "assistant"},
		{ToolResultMessage("call-1", "r"), "tool"},
	}
	for _, tt := range tests {
		if tt.msg.Role != tt.role {
			t.Errorf("got role %q, want %q", tt.msg.Role, tt.role)
		}
	}
	if m := ToolResultMessage("call-1", "r"); m.ToolCallID != "call-1" || m.Content != "r" {
		t.Errorf("unexpected tool result message: %+v", m)
	}
	calls := []ToolCall{{ID: "c", Name: "web_search"}}
	if m := AssistantToolCallMessage("", calls); len(m.ToolCalls) != 1 || m.Role != "assistant" {
		t.Errorf("unexpected assistant tool call message: %+v", m)
	}
}

func TestChatResponseFinishReason(t *testing.T) {
	if !(ChatResponse{FinishReason: FinishLength}).Truncated() {
		t.Error("FinishLength should report Truncated")
	}
	if !(ChatResponse{FinishReason: FinishBlocked}).Blocked() {
		t.Error("FinishBlocked should report Blocked")
	}
	if r := (ChatResponse{FinishReason: FinishStop}); r.Truncated() || r.Blocked() {
		t.Error("FinishStop should be neither truncated nor blocked")
	}
}
