package gemini

import (
	"encoding/json"
	"strings"

	"github.com/nevindra/courier"
)

// buildBody converts a courier request into a generateContent body.
// System messages become systemInstruction; consecutive tool results are
// grouped into one user turn as Gemini expects.
func (g *Gemini) buildBody(messages []courier.ChatMessage, tools []courier.ToolDefinition, schema *courier.ResponseSchema, params *courier.GenerationParams) map[string]any {
	var systemParts []string
	var contents []map[string]any

	for _, m := range messages {
		switch {
		case m.Role == "system":
			systemParts = append(systemParts, m.Content)

		case len(m.ToolCalls) > 0:
			parts := make([]map[string]any, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, map[string]any{"text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{
						"name": tc.Name,
						"args": jsonObject(tc.Args),
					},
				})
			}
			contents = append(contents, map[string]any{"role": "model", "parts": parts})

		case m.Role == "tool":
			part := map[string]any{
				"functionResponse": map[string]any{
					"name":     m.ToolCallID,
					"response": map[string]any{"result": m.Content},
				},
			}
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1]["parts"] = append(contents[n-1]["parts"].([]map[string]any), part)
				continue
			}
			contents = append(contents, map[string]any{
				"role":  "user",
				"parts": []map[string]any{part},
			})

		default:
			// Gemini requires at least one part.
			contents = append(contents, map[string]any{
				"role":  mapRole(m.Role),
				"parts": []map[string]any{{"text": m.Content}},
			})
		}
	}

	body := map[string]any{"contents": contents}

	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": strings.Join(systemParts, "\n\n")}},
		}
	}

	if len(tools) > 0 {
		declarations := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			declarations = append(declarations, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  jsonObject(t.Parameters),
			})
		}
		body["tools"] = []map[string]any{{"functionDeclarations": declarations}}
	}

	genConfig := map[string]any{
		"temperature": g.temperature,
		"topP":        g.topP,
	}
	if g.maxTokens > 0 {
		genConfig["maxOutputTokens"] = g.maxTokens
	}
	if params != nil {
		if params.Temperature != nil {
			genConfig["temperature"] = *params.Temperature
		}
		if params.MaxTokens != nil {
			genConfig["maxOutputTokens"] = *params.MaxTokens
		}
	}
	if g.thinkingEnabled {
		genConfig["thinkingConfig"] = map[string]any{"thinkingBudget": -1}
	}

	// Structured output: enforce JSON response matching the schema.
	if g.structuredOutput && schema != nil && len(schema.Schema) > 0 {
		genConfig["responseMimeType"] = "application/json"
		var schemaObj map[string]any
		if err := json.Unmarshal(schema.Schema, &schemaObj); err == nil {
			// Gemini's schema dialect rejects additionalProperties.
			stripAdditionalProperties(schemaObj)
			genConfig["responseSchema"] = schemaObj
		}
	}
	body["generationConfig"] = genConfig

	return body
}

func isFunctionResponseTurn(c map[string]any) bool {
	parts, ok := c["parts"].([]map[string]any)
	if !ok || c["role"] != "user" || len(parts) == 0 {
		return false
	}
	_, ok = parts[0]["functionResponse"]
	return ok
}

// jsonObject decodes raw into a generic value so Gemini gets an object;
// empty or invalid input becomes {}.
func jsonObject(raw json.RawMessage) any {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil {
		return map[string]any{}
	}
	return v
}

func stripAdditionalProperties(v any) {
	switch t := v.(type) {
	case map[string]any:
		delete(t, "additionalProperties")
		for _, child := range t {
			stripAdditionalProperties(child)
		}
	case []any:
		for _, child := range t {
			stripAdditionalProperties(child)
		}
	}
}

// mapRole converts standard roles to Gemini API roles.
func mapRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return role
}
