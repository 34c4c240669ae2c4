package courier

import "encoding/json"

// --- LLM protocol types ---

type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ResponseSchema asks the provider for structured JSON output matching
// Schema. Providers without native support ignore it.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// GenerationParams overrides provider defaults for a single request.
// Nil fields keep the provider default.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type ChatRequest struct {
	Messages         []ChatMessage     `json:"messages"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ResponseSchema   *ResponseSchema   `json:"response_schema,omitempty"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
}

// FinishReason says why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"     // output truncated at the token limit
	FinishToolCalls FinishReason = "tool_calls" // model requested tool execution
	FinishBlocked   FinishReason = "blocked"    // safety filter or refusal
)

type ChatResponse struct {
	Content      string       `json:"content"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// Truncated reports whether the completion hit the output token limit.
func (r ChatResponse) Truncated() bool { return r.FinishReason == FinishLength }

// Blocked reports whether the provider withheld the completion.
func (r ChatResponse) Blocked() bool { return r.FinishReason == FinishBlocked }

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- Convenience constructors ---

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// AssistantToolCallMessage records a model turn that requested tools so the
// follow-up request carries the calls the tool results answer.
func AssistantToolCallMessage(text string, calls []ToolCall) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text, ToolCalls: calls}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}
