// Package orchestrator runs one conversational turn: decompose the text
// into tasks, run one agent per task concurrently, and merge the results
// into a single reply.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/nevindra/courier"
)

// DefaultApology is returned when the turn itself fails.
const DefaultApology = "Sorry, something went wrong on my side. Please try again in a minute."

// DefaultAgentTimeout bounds one agent's Execute.
const DefaultAgentTimeout = 90 * time.Second

// Decomposer turns a turn's text into tasks. It must never return an
// empty slice; decompose.Decomposer satisfies it.
type Decomposer interface {
	Decompose(ctx context.Context, text string, history []courier.ChatMessage) []courier.Task
}

// Factory builds the agent for one task.
type Factory func(task courier.Task, actx courier.AgentContext) courier.ExecutionAgent

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAgentFactory routes tasks of taskType to f.
func WithAgentFactory(taskType string, f Factory) Option {
	return func(o *Orchestrator) { o.factories[taskType] = f }
}

// WithDefaultFactory sets the factory for task types with no mapping.
func WithDefaultFactory(f Factory) Option {
	return func(o *Orchestrator) { o.fallback = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithApology overrides the fixed reply for failed turns.
func WithApology(s string) Option {
	return func(o *Orchestrator) { o.apology = s }
}

// WithStateHook registers fn to observe every state transition.
func WithStateHook(fn func(turnID string, s State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// WithAgentTimeout bounds each agent's Execute (default 90s).
func WithAgentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.agentTimeout = d }
}

// WithRegistry shares one AgentRegistry across turns. By default every
// turn gets a fresh registry.
func WithRegistry(r *courier.AgentRegistry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithGenerationParams overrides temperature/max tokens for synthesis.
func WithGenerationParams(p *courier.GenerationParams) Option {
	return func(o *Orchestrator) { o.params = p }
}

// Orchestrator is the per-turn controller. Safe for concurrent turns.
type Orchestrator struct {
	decomposer   Decomposer
	synth        courier.Provider
	factories    map[string]Factory
	fallback     Factory
	registry     *courier.AgentRegistry
	apology      string
	agentTimeout time.Duration
	params       *courier.GenerationParams
	onState      func(turnID string, s State)
	logger       *slog.Logger
}

// New creates an Orchestrator. synth is used only to merge multi-task
// turns; when nil, such turns return the first result.
func New(decomposer Decomposer, synth courier.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		decomposer:   decomposer,
		synth:        synth,
		factories:    make(map[string]Factory),
		apology:      DefaultApology,
		agentTimeout: DefaultAgentTimeout,
		logger:       courier.NopLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Turn is the record of one processed message.
type Turn struct {
	ID          string
	Text        string
	Tasks       []courier.Task
	Results     []courier.ExecutionResult // indexed like Tasks
	Reply       string
	States      []State
	Synthesized bool
	Err         error // orchestrator-level failure; Reply is the apology
	Elapsed     time.Duration
}

// ProcessMessage runs a turn and returns only the reply.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string, actx courier.AgentContext) string {
	return o.Process(ctx, text, actx).Reply
}

// Process runs a turn. It never panics and never returns an empty reply:
// orchestrator-level failures yield the apology.
func (o *Orchestrator) Process(ctx context.Context, text string, actx courier.AgentContext) (turn Turn) {
	start := time.Now()
	turn = Turn{ID: courier.NewID(), Text: text}
	logger := o.logger.With("turn", turn.ID, "sender", actx.SenderID)

	defer func() {
		if p := recover(); p != nil {
			turn.Err = fmt.Errorf("orchestrator panic: %v", p)
			logger.Error("turn panicked", "panic", p, "stack", string(debug.Stack()))
		}
		if turn.Err != nil || strings.TrimSpace(turn.Reply) == "" {
			if turn.Err == nil {
				turn.Err = fmt.Errorf("empty reply")
				logger.Error("turn produced an empty reply")
			}
			turn.Reply = o.apology
		}
		turn.Elapsed = time.Since(start)
		o.enter(&turn, StateDone)
		logger.Info("turn done",
			"tasks", len(turn.Tasks),
			"synthesized", turn.Synthesized,
			"elapsed_ms", turn.Elapsed.Milliseconds(),
			"failed", turn.Err != nil)
	}()

	o.enter(&turn, StateDecomposing)
	turn.Tasks = o.decomposer.Decompose(ctx, text, actx.History)
	if len(turn.Tasks) == 0 {
		turn.Err = fmt.Errorf("decomposer returned no tasks")
		logger.Error("decompose failed", "error", turn.Err)
		return turn
	}

	o.enter(&turn, StateSpawning)
	registry := o.registry
	if registry == nil {
		registry = courier.NewAgentRegistry()
	}
	agents := make([]courier.ExecutionAgent, len(turn.Tasks))
	for i, task := range turn.Tasks {
		agent, err := o.spawn(task, actx)
		if err != nil {
			turn.Err = err
			logger.Error("spawn failed", "task_type", task.Type, "error", err)
			return turn
		}
		agents[i] = agent
		registry.Register(agent, task.Type)
		defer registry.Remove(agent.ID())
	}
	logger.Debug("agents spawned", "count", len(agents))

	o.enter(&turn, StateExecuting)
	turn.Results = o.execute(ctx, agents, logger)

	if len(turn.Results) == 1 {
		turn.Reply = turn.Results[0].Output
		return turn
	}

	o.enter(&turn, StateSynthesizing)
	turn.Reply, turn.Synthesized = o.synthesize(ctx, text, turn.Tasks, turn.Results, logger)
	return turn
}

func (o *Orchestrator) spawn(task courier.Task, actx courier.AgentContext) (courier.ExecutionAgent, error) {
	f := o.factories[task.RequiredAgentType]
	if f == nil {
		f = o.factories[task.Type]
	}
	if f == nil {
		f = o.fallback
	}
	if f == nil {
		return nil, fmt.Errorf("no agent for task type %q", task.Type)
	}
	agent := f(task, actx)
	if agent == nil {
		return nil, fmt.Errorf("factory for %q returned nil", task.Type)
	}
	return agent, nil
}

// execute runs every agent concurrently and waits for all of them. A
// failed or slow agent never cancels its siblings; results keep task order.
func (o *Orchestrator) execute(ctx context.Context, agents []courier.ExecutionAgent, logger *slog.Logger) []courier.ExecutionResult {
	results := make([]courier.ExecutionResult, len(agents))
	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.runAgent(ctx, agent, logger)
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runAgent(ctx context.Context, agent courier.ExecutionAgent, logger *slog.Logger) (res courier.ExecutionResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("agent panicked", "agent", agent.ID(), "panic", p, "stack", string(debug.Stack()))
			res = courier.ExecutionResult{
				AgentID:  agent.ID(),
				Task:     agent.Task(),
				Status:   courier.StatusError,
				Output:   courier.FallbackReply,
				Logs:     []string{fmt.Sprintf("panic: %v", p)},
				Metadata: map[string]any{"elapsed_ms": time.Since(start).Milliseconds()},
			}
		}
	}()
	if o.agentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.agentTimeout)
		defer cancel()
	}
	res = agent.Execute(ctx)
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	if _, ok := res.Metadata["elapsed_ms"]; !ok {
		res.Metadata["elapsed_ms"] = time.Since(start).Milliseconds()
	}
	logger.Debug("agent finished", "agent", res.AgentID, "status", res.Status, "elapsed_ms", res.Metadata["elapsed_ms"])
	return res
}

const synthesisPrompt = `You are writing one text-message reply to a user.
Several helpers each answered part of the user's message. Merge their answers into one natural, friendly reply.
Do not mention helpers, tasks, agents or any internal process. Drop repetition. Keep it concise and plain text.`

// synthesize merges results in task order. Failure or an empty answer
// falls back to the first result's output.
func (o *Orchestrator) synthesize(ctx context.Context, text string, tasks []courier.Task, results []courier.ExecutionResult, logger *slog.Logger) (string, bool) {
	first := results[0].Output
	if o.synth == nil {
		return first, false
	}
	resp, err := o.synth.Chat(ctx, courier.ChatRequest{
		Messages: []courier.ChatMessage{
			courier.SystemMessage(synthesisPrompt),
			courier.UserMessage(SynthesisInput(text, tasks, results)),
		},
		GenerationParams: o.params,
	})
	if err != nil {
		logger.Warn("synthesis failed, using first result", "error", err)
		return first, false
	}
	if strings.TrimSpace(resp.Content) == "" || resp.Blocked() {
		logger.Warn("synthesis returned nothing usable, using first result", "finish_reason", resp.FinishReason)
		return first, false
	}
	return resp.Content, true
}

// SynthesisInput renders the user text and every result in task order.
func SynthesisInput(text string, tasks []courier.Task, results []courier.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user asked:\n%s\n\n", text)
	fmt.Fprintf(&b, "Here are %d answers, in order:\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] (%s", i+1, tasks[i].Description)
		if r.Status != courier.StatusSuccess {
			fmt.Fprintf(&b, "; %s", r.Status)
		}
		fmt.Fprintf(&b, ")\n%s\n", r.Output)
	}
	return b.String()
}

func (o *Orchestrator) enter(turn *Turn, s State) {
	turn.States = append(turn.States, s)
	if o.onState != nil {
		o.onState(turn.ID, s)
	}
}
