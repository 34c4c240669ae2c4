package courier

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Error is fed back to the
// model as text so it can recover.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Text returns the string the model sees for this result.
func (r ToolResult) Text() string {
	if r.Error != "" {
		return "error: " + r.Error
	}
	return r.Content
}

// ToolRegistry holds the tools available to one agent and dispatches
// execution by function name.
type ToolRegistry struct {
	tools []Tool
	index map[string]Tool
}

// NewToolRegistry creates a registry holding tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{index: make(map[string]Tool)}
	for _, t := range tools {
		r.Add(t)
	}
	return r
}

// Add registers a tool. A later tool declaring an existing function name
// replaces the earlier one for dispatch.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		r.index[d.Name] = t
	}
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.tools) }

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name. Unknown names produce a
// ToolResult error rather than a Go error so the model can correct itself.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.index[name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	return t.Execute(ctx, name, args)
}
