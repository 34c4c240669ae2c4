package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/courier"
)

// ParseResponse converts an OpenAI-format ChatResponse to a courier
// ChatResponse. It extracts content, tool calls, finish reason and usage
// from choices[0].
func ParseResponse(resp ChatResponse) (courier.ChatResponse, error) {
	var out courier.ChatResponse

	if resp.Usage != nil {
		out.Usage = courier.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}
	out.FinishReason = finishReason(choice)
	return out, nil
}

func finishReason(c Choice) courier.FinishReason {
	if c.Message != nil && c.Message.Refusal != "" {
		return courier.FinishBlocked
	}
	switch c.FinishReason {
	case "length":
		return courier.FinishLength
	case "content_filter":
		return courier.FinishBlocked
	case "tool_calls", "function_call":
		return courier.FinishToolCalls
	default:
		return courier.FinishStop
	}
}

// ParseToolCalls converts OpenAI tool call requests to courier ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid JSON is
// replaced by an empty object.
func ParseToolCalls(tcs []ToolCallRequest) []courier.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]courier.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, courier.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
