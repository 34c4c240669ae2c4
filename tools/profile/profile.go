// Package profile provides the save_birth_data tool, which records what a
// sender has told us about themselves.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nevindra/courier"
)

// Tool upserts profile fields for the sender of the current turn.
type Tool struct {
	store courier.ProfileStore
}

// New creates a profile tool backed by store.
func New(store courier.ProfileStore) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definitions() []courier.ToolDefinition {
	return []courier.ToolDefinition{{
		Name:        "save_birth_data",
		Description: "Save the user's name and birth details. Pass only the fields the user actually gave; omitted fields keep their stored value.",
		Parameters: json.RawMessage(`{"type":"object","properties":{` +
			`"name":{"type":"string","description":"Name the user wants to be called"},` +
			`"birth_date":{"type":"string","description":"Birth date as YYYY-MM-DD when known, otherwise as written"},` +
			`"birth_time":{"type":"string","description":"Birth time as HH:MM (24h) when known"},` +
			`"birth_place":{"type":"string","description":"City and country of birth"}}}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (courier.ToolResult, error) {
	var params struct {
		Name       string `json:"name"`
		BirthDate  string `json:"birth_date"`
		BirthTime  string `json:"birth_time"`
		BirthPlace string `json:"birth_place"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return courier.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	update := courier.Profile{
		Name:       strings.TrimSpace(params.Name),
		BirthDate:  strings.TrimSpace(params.BirthDate),
		BirthTime:  strings.TrimSpace(params.BirthTime),
		BirthPlace: strings.TrimSpace(params.BirthPlace),
	}
	saved, err := t.Save(ctx, update)
	if err != nil {
		return courier.ToolResult{Error: err.Error()}, nil
	}
	return courier.ToolResult{Content: Describe(saved)}, nil
}

// Save merges update into the stored profile of the sender on ctx and
// returns the result.
func (t *Tool) Save(ctx context.Context, update courier.Profile) (courier.Profile, error) {
	if update.Name == "" && update.BirthDate == "" && update.BirthTime == "" && update.BirthPlace == "" {
		return courier.Profile{}, fmt.Errorf("no profile fields given")
	}
	actx, ok := courier.AgentContextFrom(ctx)
	if !ok || actx.SenderID == "" {
		return courier.Profile{}, fmt.Errorf("no sender in context")
	}

	current, err := t.store.GetProfile(ctx, actx.SenderID)
	if err != nil {
		return courier.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	now := courier.NowUnix()
	if current == nil {
		current = &courier.Profile{
			ID:        courier.NewID(),
			SenderKey: actx.SenderID,
			CreatedAt: now,
		}
	}
	current.Merge(update)
	current.UpdatedAt = now

	if err := t.store.UpsertProfile(ctx, *current); err != nil {
		return courier.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return *current, nil
}

// Describe summarizes a profile for the model, naming missing fields.
func Describe(p courier.Profile) string {
	var known, missing []string
	field := func(label, v string) {
		if v == "" {
			missing = append(missing, label)
			return
		}
		known = append(known, label+": "+v)
	}
	field("name", p.Name)
	field("birth date", p.BirthDate)
	field("birth time", p.BirthTime)
	field("birth place", p.BirthPlace)

	out := "saved. " + strings.Join(known, "; ")
	if len(missing) > 0 {
		out += ". still missing: " + strings.Join(missing, ", ")
	}
	return out
}
