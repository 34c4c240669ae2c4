// Package app wires the coalescer, orchestrator and stores into the
// webhook-facing turn pipeline.
package app

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nevindra/courier"
	"github.com/nevindra/courier/coalesce"
	"github.com/nevindra/courier/internal/config"
	"github.com/nevindra/courier/observer"
	"github.com/nevindra/courier/orchestrator"
)

// extractTimeout bounds background memory extraction, which outlives the
// request that triggered it.
const extractTimeout = 45 * time.Second

// TurnRunner processes one coalesced message; *orchestrator.Orchestrator
// satisfies it.
type TurnRunner interface {
	Process(ctx context.Context, text string, actx courier.AgentContext) orchestrator.Turn
}

// Deps holds injected dependencies for the App.
type Deps struct {
	Turns     TurnRunner
	Coalescer *coalesce.Coalescer
	Store     courier.Store
	MemoryLLM courier.Provider      // nil disables memory extraction
	Observer  *observer.Instruments // nil disables turn metrics
	Logger    *slog.Logger
}

// App is the courier application: it turns inbound messages into replies.
type App struct {
	turns     TurnRunner
	coalescer *coalesce.Coalescer
	store     courier.Store
	memoryLLM courier.Provider
	inst      *observer.Instruments
	logger    *slog.Logger
	pipeline  config.PipelineConfig
	retry     courier.RetryPolicy

	mu     sync.Mutex // guards closed and bg.Add
	closed bool
	bg     sync.WaitGroup
}

// New creates an App.
func New(cfg config.Config, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = courier.NopLogger
	}
	retry := courier.DefaultRetryPolicy()
	if cfg.Pipeline.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Pipeline.RetryAttempts
	}
	a := &App{
		turns:     deps.Turns,
		coalescer: deps.Coalescer,
		store:     deps.Store,
		inst:      deps.Observer,
		logger:    logger.With("component", "app"),
		pipeline:  cfg.Pipeline,
		retry:     retry,
	}
	if cfg.Pipeline.ExtractMemory {
		a.memoryLLM = deps.MemoryLLM
	}
	return a
}

// Respond runs one turn for sender: it loads the sender's context, runs
// the orchestrator, persists the exchange and schedules memory extraction.
// It always returns a reply.
func (a *App) Respond(ctx context.Context, sender, text string) string {
	logger := a.logger.With("sender", sender)
	actx := a.loadContext(ctx, sender, logger)

	turn := a.turns.Process(ctx, text, actx)
	logger = logger.With("turn", turn.ID)
	if a.inst != nil {
		a.inst.RecordTurn(ctx, turn)
	}
	if turn.Err != nil {
		logger.Error("turn failed", "error", turn.Err, "elapsed", turn.Elapsed)
	} else {
		logger.Info("turn done", "tasks", len(turn.Tasks), "synthesized", turn.Synthesized, "elapsed", turn.Elapsed)
	}

	// The exchange is recorded even if the caller hung up.
	persistCtx := context.WithoutCancel(ctx)
	a.persist(persistCtx, sender, text, turn.Reply, logger)

	if turn.Err == nil && a.memoryLLM != nil {
		a.background(logger, func() {
			xctx, cancel := context.WithTimeout(persistCtx, extractTimeout)
			defer cancel()
			a.extractMemories(xctx, sender, text, turn.Reply, actx.Memories, logger)
		})
	}
	return turn.Reply
}

// background runs fn detached from the reply. Panics are logged and
// dropped. After Shutdown, fn is skipped.
func (a *App) background(logger *slog.Logger, fn func()) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		logger.Debug("shutting down, background work skipped")
		return
	}
	a.bg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.bg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("background work panicked", "panic", p, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// loadContext builds the agent context. Store failures are logged and the
// turn proceeds with whatever loaded.
func (a *App) loadContext(ctx context.Context, sender string, logger *slog.Logger) courier.AgentContext {
	profile, err := a.store.GetProfile(ctx, sender)
	if err != nil {
		logger.Error("load profile failed", "error", err)
		profile = nil
	}
	var memories []courier.Memory
	if a.pipeline.MemoryLimit > 0 {
		memories, err = a.store.ListMemories(ctx, sender, a.pipeline.MemoryLimit)
		if err != nil {
			logger.Error("load memories failed", "error", err)
			memories = nil
		}
	}
	limit := a.pipeline.HistoryLimit
	if limit <= 0 {
		limit = courier.DefaultHistoryLimit
	}
	history, err := a.store.RecentMessages(ctx, sender, limit)
	if err != nil {
		logger.Error("load history failed", "error", err)
		history = nil
	}
	return courier.NewAgentContext(sender, profile, memories, courier.HistoryMessages(history), limit)
}

func (a *App) persist(ctx context.Context, sender, text, reply string, logger *slog.Logger) {
	msgs := []courier.Message{
		{ID: courier.NewID(), SenderKey: sender, Role: "user", Content: text, CreatedAt: courier.NowUnix()},
		{ID: courier.NewID(), SenderKey: sender, Role: "assistant", Content: reply, CreatedAt: courier.NowUnix()},
	}
	for _, m := range msgs {
		if err := a.store.AppendMessage(ctx, m); err != nil {
			logger.Error("persist message failed", "role", m.Role, "error", err)
		}
	}
}

// Flush resolves every open coalescer buffer so waiting requests run
// their turns now. Later submissions are not merged.
func (a *App) Flush() {
	if a.coalescer != nil {
		a.coalescer.Close()
	}
}

// Shutdown flushes the coalescer, stops accepting background work and
// waits for what is running, up to ctx's deadline. Turns that finish
// afterwards still reply but skip memory extraction.
func (a *App) Shutdown(ctx context.Context) error {
	a.Flush()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
