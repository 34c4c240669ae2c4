// Package remember provides the remember tool, which stores a short fact
// about the current sender.
package remember

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nevindra/courier"
)

// maxFactLen bounds a stored fact; memories are injected into every prompt.
const maxFactLen = 280

// Tool saves facts to a MemoryStore for the sender of the current turn.
type Tool struct {
	store courier.MemoryStore
}

// New creates a remember tool backed by store.
func New(store courier.MemoryStore) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definitions() []courier.ToolDefinition {
	return []courier.ToolDefinition{{
		Name:        "remember",
		Description: "Save a short lasting fact about the user (preferences, relationships, plans). Use when the user shares something worth recalling later or asks you to remember it.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"fact":{"type":"string","description":"One short sentence in third person, e.g. 'Has a sister named Ana.'"}},"required":["fact"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (courier.ToolResult, error) {
	var params struct {
		Fact string `json:"fact"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return courier.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if err := t.Save(ctx, params.Fact); err != nil {
		return courier.ToolResult{Error: err.Error()}, nil
	}
	return courier.ToolResult{Content: "saved"}, nil
}

// Save stores fact for the sender found on ctx.
func (t *Tool) Save(ctx context.Context, fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return fmt.Errorf("fact is required")
	}
	if len(fact) > maxFactLen {
		return fmt.Errorf("fact is too long (%d bytes, max %d)", len(fact), maxFactLen)
	}
	actx, ok := courier.AgentContextFrom(ctx)
	if !ok || actx.SenderID == "" {
		return fmt.Errorf("no sender in context")
	}
	return t.store.AddMemory(ctx, courier.Memory{
		ID:        courier.NewID(),
		SenderKey: actx.SenderID,
		Content:   fact,
		CreatedAt: courier.NowUnix(),
	})
}
