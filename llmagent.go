package courier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxIter is the hard cap on model round trips in one Execute.
const DefaultMaxIter = 8

// LLMAgent is the default ExecutionAgent: it prompts a Provider with the
// turn context and runs a bounded tool-calling loop.
type LLMAgent struct {
	id       string
	task     string
	actx     AgentContext
	provider Provider
	tools    *ToolRegistry
	persona  string
	kind     string
	maxIter  int
	fallback string
	params   *GenerationParams
	now      func() time.Time
	logger   *slog.Logger
}

// AgentOption configures an LLMAgent.
type AgentOption func(*LLMAgent)

// WithPersona sets the system prompt preamble.
func WithPersona(p string) AgentOption {
	return func(a *LLMAgent) { a.persona = p }
}

// WithKind labels the agent variant ("web_search", ...) in logs and metadata.
func WithKind(k string) AgentOption {
	return func(a *LLMAgent) { a.kind = k }
}

// WithTools adds tools the model may call.
func WithTools(tools ...Tool) AgentOption {
	return func(a *LLMAgent) {
		for _, t := range tools {
			a.tools.Add(t)
		}
	}
}

// WithMaxIter overrides the tool loop cap (default 8). Values < 1 are ignored.
func WithMaxIter(n int) AgentOption {
	return func(a *LLMAgent) {
		if n > 0 {
			a.maxIter = n
		}
	}
}

// WithFallback overrides the reply used when the agent fails.
func WithFallback(s string) AgentOption {
	return func(a *LLMAgent) { a.fallback = s }
}

// WithGenerationParams sets temperature/max-token overrides for every call.
func WithGenerationParams(p *GenerationParams) AgentOption {
	return func(a *LLMAgent) { a.params = p }
}

// WithNow overrides the clock used for the "today" line of the prompt.
func WithNow(now func() time.Time) AgentOption {
	return func(a *LLMAgent) { a.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AgentOption {
	return func(a *LLMAgent) { a.logger = l }
}

// NewLLMAgent creates an agent for one task description and context.
func NewLLMAgent(task string, actx AgentContext, provider Provider, opts ...AgentOption) *LLMAgent {
	a := &LLMAgent{
		id:       NewID(),
		task:     task,
		actx:     actx,
		provider: provider,
		tools:    NewToolRegistry(),
		kind:     TaskTypeGeneral,
		maxIter:  DefaultMaxIter,
		fallback: FallbackReply,
		now:      time.Now,
		logger:   NopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("agent", a.id, "kind", a.kind)
	return a
}

func (a *LLMAgent) ID() string   { return a.id }
func (a *LLMAgent) Task() string { return a.task }

// Kind returns the variant label.
func (a *LLMAgent) Kind() string { return a.kind }

// Execute runs the tool loop. It never returns a raw provider error: any
// failure becomes StatusError with the fallback reply.
func (a *LLMAgent) Execute(ctx context.Context) ExecutionResult {
	start := time.Now()
	res := ExecutionResult{AgentID: a.id, Task: a.task}
	var usage Usage
	finish := func(status Status, output string) ExecutionResult {
		res.Status = status
		res.Output = output
		res.Metadata = map[string]any{
			"elapsed_ms":    time.Since(start).Milliseconds(),
			"kind":          a.kind,
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		}
		return res
	}
	logf := func(format string, args ...any) {
		res.Logs = append(res.Logs, fmt.Sprintf(format, args...))
	}

	ctx = WithAgentContext(ctx, a.actx)
	messages := a.buildMessages()
	defs := a.tools.AllDefinitions()
	var lastText string

	for iter := 0; iter < a.maxIter; iter++ {
		resp, err := a.provider.Chat(ctx, ChatRequest{
			Messages:         messages,
			Tools:            defs,
			GenerationParams: a.params,
		})
		if err != nil {
			a.logger.Error("provider call failed", "iteration", iter, "error", err)
			logf("provider error: %v", err)
			return finish(StatusError, a.fallback)
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		if strings.TrimSpace(resp.Content) != "" {
			lastText = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			switch {
			case resp.Blocked():
				a.logger.Warn("completion blocked", "iteration", iter)
				logf("completion blocked by provider")
				return finish(StatusPartial, a.fallback)
			case strings.TrimSpace(resp.Content) == "":
				a.logger.Warn("empty completion", "iteration", iter)
				logf("empty completion")
				return finish(StatusError, a.fallback)
			case resp.Truncated():
				logf("completion truncated at token limit")
				return finish(StatusPartial, resp.Content)
			default:
				return finish(StatusSuccess, resp.Content)
			}
		}

		messages = append(messages, AssistantToolCallMessage(resp.Content, resp.ToolCalls))
		results := dispatchParallel(ctx, a.tools, resp.ToolCalls)
		for i, tc := range resp.ToolCalls {
			r := results[i].result
			if r.Error != "" {
				logf("tool %s failed in %s: %s", tc.Name, results[i].duration.Round(time.Millisecond), r.Error)
			} else {
				logf("tool %s ok in %s", tc.Name, results[i].duration.Round(time.Millisecond))
			}
			messages = append(messages, ToolResultMessage(tc.ID, truncateStr(r.Text(), maxToolResultLen)))
		}
	}

	a.logger.Warn("tool loop hit iteration cap", "max_iter", a.maxIter)
	logf("iteration cap %d reached", a.maxIter)
	if lastText == "" {
		lastText = a.fallback
	}
	return finish(StatusPartial, lastText)
}

// buildMessages assembles system prompt, bounded history, and the task.
func (a *LLMAgent) buildMessages() []ChatMessage {
	msgs := make([]ChatMessage, 0, len(a.actx.History)+2)
	msgs = append(msgs, SystemMessage(a.systemPrompt()))
	for _, m := range a.actx.History {
		if m.Role == "user" || m.Role == "assistant" {
			msgs = append(msgs, ChatMessage{Role: m.Role, Content: m.Content})
		}
	}
	return append(msgs, UserMessage(a.task))
}

func (a *LLMAgent) systemPrompt() string {
	var b strings.Builder
	if a.persona != "" {
		b.WriteString(a.persona)
		b.WriteString("\n\n")
	}
	now := a.now()
	fmt.Fprintf(&b, "Today is %s (%s).\n", now.Format("2006-01-02"), now.Weekday())

	if p := a.actx.Profile; p != nil {
		b.WriteString("\nWhat you know about this user:\n")
		if p.Name != "" {
			fmt.Fprintf(&b, "- Name: %s\n", p.Name)
		}
		if p.BirthDate != "" {
			fmt.Fprintf(&b, "- Birth date: %s\n", p.BirthDate)
		}
		if p.BirthTime != "" {
			fmt.Fprintf(&b, "- Birth time: %s\n", p.BirthTime)
		}
		if p.BirthPlace != "" {
			fmt.Fprintf(&b, "- Birth place: %s\n", p.BirthPlace)
		}
	}
	if len(a.actx.Memories) > 0 {
		b.WriteString("\nThings the user told you before:\n")
		for _, m := range a.actx.Memories {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
	}
	b.WriteString("\nYou are replying by text message. Keep it short and plain: no markdown tables, no headings.")
	return b.String()
}

var _ ExecutionAgent = (*LLMAgent)(nil)
