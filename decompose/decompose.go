// Package decompose turns one user turn into an ordered list of
// independent tasks with a single structured-output LLM call.
//
// Decomposition is best-effort: any failure collapses to one general_query
// task carrying the original text, which is also the common path for
// ordinary conversational turns.
package decompose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nevindra/courier"
)

// DefaultMaxTasks bounds how many tasks one turn may fan out to.
const DefaultMaxTasks = 4

// historyWindow is how many recent messages the prompt shows.
const historyWindow = 6

// TaskType describes one routable task type to the model.
type TaskType struct {
	Name        string
	Description string
}

// DefaultTaskTypes are the types the bundled agents handle.
var DefaultTaskTypes = []TaskType{
	{courier.TaskTypeGeneral, "conversation, advice, anything not covered below"},
	{courier.TaskTypeSearch, "questions needing current facts from the web (news, dates, events, prices)"},
	{courier.TaskTypeProfile, "the user shares their name, birth date, birth time or birth place"},
	{courier.TaskTypeAstrology, "horoscopes, birth charts, compatibility, planetary transits"},
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithMaxTasks caps the number of tasks kept (default 4).
func WithMaxTasks(n int) Option {
	return func(d *Decomposer) {
		if n > 0 {
			d.maxTasks = n
		}
	}
}

// WithTaskTypes replaces the task types offered to the model.
func WithTaskTypes(types ...TaskType) Option {
	return func(d *Decomposer) { d.types = types }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decomposer) { d.logger = l }
}

// WithGenerationParams overrides temperature/max tokens for the call.
func WithGenerationParams(p *courier.GenerationParams) Option {
	return func(d *Decomposer) { d.params = p }
}

// Decomposer splits a turn into tasks.
type Decomposer struct {
	provider courier.Provider
	maxTasks int
	types    []TaskType
	params   *courier.GenerationParams
	logger   *slog.Logger
}

// New creates a Decomposer. A nil provider makes every turn take the
// fallback path.
func New(provider courier.Provider, opts ...Option) *Decomposer {
	d := &Decomposer{
		provider: provider,
		maxTasks: DefaultMaxTasks,
		types:    DefaultTaskTypes,
		logger:   courier.NopLogger,
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With("component", "decompose")
	return d
}

// Decompose returns a non-empty ordered list of tasks for text.
func (d *Decomposer) Decompose(ctx context.Context, text string, history []courier.ChatMessage) []courier.Task {
	if d.provider == nil || strings.TrimSpace(text) == "" {
		return []courier.Task{Fallback(text)}
	}

	resp, err := d.provider.Chat(ctx, courier.ChatRequest{
		Messages: []courier.ChatMessage{
			courier.SystemMessage(d.systemPrompt()),
			courier.UserMessage(userPrompt(text, history)),
		},
		ResponseSchema:   &courier.ResponseSchema{Name: "tasks", Schema: taskSchema},
		GenerationParams: d.params,
	})
	if err != nil {
		d.logger.Warn("decompose call failed, using fallback", "error", err)
		return []courier.Task{Fallback(text)}
	}

	tasks, err := ParseResponse(resp.Content)
	if err != nil {
		d.logger.Warn("decompose response unusable, using fallback", "error", err)
		return []courier.Task{Fallback(text)}
	}
	if len(tasks) > d.maxTasks {
		d.logger.Debug("dropping excess tasks", "got", len(tasks), "max", d.maxTasks)
		tasks = tasks[:d.maxTasks]
	}
	return tasks
}

// Fallback is the single task used whenever decomposition fails.
func Fallback(text string) courier.Task {
	return courier.Task{
		ID:          courier.NewID(),
		Type:        courier.TaskTypeGeneral,
		Description: text,
		Priority:    courier.DefaultPriority,
	}
}

type decomposedTask struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// ParseResponse extracts tasks from a model response. The JSON array is
// located between the first '[' and the last ']', which tolerates code
// fences, prose around the array, and a {"tasks": [...]} wrapper. Tasks
// with blank descriptions are dropped; an empty result is an error.
func ParseResponse(response string) ([]courier.Task, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end <= start {
		preview := response
		if len(preview) > 200 {
			preview = preview[:200] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON array in response (%d chars): %q", len(response), preview)
	}

	var decoded []decomposedTask
	if err := json.Unmarshal([]byte(response[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}

	tasks := make([]courier.Task, 0, len(decoded))
	for _, dt := range decoded {
		desc := strings.TrimSpace(dt.Description)
		if desc == "" {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(dt.Type))
		if typ == "" {
			typ = courier.TaskTypeGeneral
		}
		tasks = append(tasks, courier.Task{
			ID:          courier.NewID(),
			Type:        typ,
			Description: desc,
			Priority:    clampPriority(dt.Priority),
		})
	}
	if len(tasks) == 0 {
		return nil, errors.New("empty task list")
	}
	return tasks, nil
}

func clampPriority(p int) int {
	switch {
	case p == 0:
		return courier.DefaultPriority
	case p < 1:
		return 1
	case p > 10:
		return 10
	default:
		return p
	}
}

var taskSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "description": {"type": "string"},
          "priority": {"type": "integer"}
        },
        "required": ["type", "description", "priority"],
        "additionalProperties": false
      }
    }
  },
  "required": ["tasks"],
  "additionalProperties": false
}`)

func (d *Decomposer) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You split a user's text message into independent tasks for specialist agents.\n")
	b.WriteString("Most messages are a single task. Only split when the message clearly asks for unrelated things.\n")
	b.WriteString("Each description must be self-contained: restate names, dates and places it needs.\n\n")
	b.WriteString("Task types:\n")
	for _, t := range d.types {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&b, "\nReturn at most %d tasks as JSON: {\"tasks\": [{\"type\": ..., \"description\": ..., \"priority\": 1-10}]}.", d.maxTasks)
	return b.String()
}

func userPrompt(text string, history []courier.ChatMessage) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("New message:\n")
	b.WriteString(text)
	return b.String()
}
