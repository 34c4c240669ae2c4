package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/courier"
)

// BuildBody converts courier ChatMessages and a model name into an
// OpenAI-format ChatRequest. System messages stay in the messages array.
func BuildBody(messages []courier.ChatMessage, tools []courier.ToolDefinition, model string, schema *courier.ResponseSchema, opts ...Option) ChatRequest {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			tcs := make([]ToolCallRequest, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args := string(tc.Args)
				if args == "" {
					args = "{}"
				}
				tcs = append(tcs, ToolCallRequest{
					ID:       tc.ID,
					Type:     "function",
					Function: FunctionCall{Name: tc.Name, Arguments: args},
				})
			}
			msgs = append(msgs, Message{Role: "assistant", Content: m.Content, ToolCalls: tcs})

		case m.Role == "tool":
			msgs = append(msgs, Message{Role: "tool", Content: m.Content, ToolCallID: m.ToolCallID})

		default:
			msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
		}
	}

	req := ChatRequest{Model: model, Messages: msgs}
	if len(tools) > 0 {
		req.Tools = BuildToolDefs(tools)
	}

	// Structured output: enforce JSON response matching the schema.
	if schema != nil && len(schema.Schema) > 0 {
		req.ResponseFormat = &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   schema.Name,
				Schema: schema.Schema,
				Strict: true,
			},
		}
	}

	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// BuildToolDefs converts courier ToolDefinitions to OpenAI tool format.
func BuildToolDefs(tools []courier.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
