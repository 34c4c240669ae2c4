package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nevindra/courier"
	"github.com/nevindra/courier/coalesce"
	"github.com/nevindra/courier/decompose"
	"github.com/nevindra/courier/internal/app"
	"github.com/nevindra/courier/internal/config"
	"github.com/nevindra/courier/observer"
	"github.com/nevindra/courier/orchestrator"
	"github.com/nevindra/courier/provider/resolve"
	"github.com/nevindra/courier/store/postgres"
	"github.com/nevindra/courier/store/sqlite"
	"github.com/nevindra/courier/tools/profile"
	"github.com/nevindra/courier/tools/remember"
	"github.com/nevindra/courier/tools/search"
)

// runtime is everything a command needs, plus the teardown for it.
type runtime struct {
	app      *app.App
	store    courier.Store
	shutdown []func(context.Context) error
}

func (r *runtime) close(ctx context.Context) error {
	var errs []error
	if r.app != nil {
		errs = append(errs, r.app.Shutdown(ctx))
	}
	for i := len(r.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, r.shutdown[i](ctx))
	}
	return errors.Join(errs...)
}

// build wires providers, store, tools and the orchestrator from cfg.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			_ = rt.close(context.WithoutCancel(ctx))
		}
	}()

	// 1. Observer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			return nil, fmt.Errorf("init observer: %w", err)
		}
		rt.shutdown = append(rt.shutdown, shutdown)
	}

	// 2. Providers
	chatLLM, err := newProvider(cfg.LLM, cfg.Pipeline.RetryAttempts, logger, inst)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	// Same endpoint and key share one client so rate limits are not doubled.
	taskLLM := chatLLM
	if !sameEndpoint(cfg.LLM, cfg.Decompose) {
		taskLLM, err = newProvider(cfg.Decompose, cfg.Pipeline.RetryAttempts, logger, inst)
		if err != nil {
			return nil, fmt.Errorf("decompose provider: %w", err)
		}
	}

	// 3. Store
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.shutdown = append(rt.shutdown, func(context.Context) error { return store.Close() })
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	// 4. Tools
	var searchTool courier.Tool
	if cfg.Search.BraveAPIKey != "" {
		policy := courier.DefaultRetryPolicy()
		if cfg.Pipeline.RetryAttempts > 0 {
			policy.MaxAttempts = cfg.Pipeline.RetryAttempts
		}
		searchTool = search.New(cfg.Search.BraveAPIKey, search.WithLogger(logger), search.WithRetryPolicy(policy))
	} else {
		logger.Warn("search.brave_api_key not set, web search disabled")
	}
	var profileTool, rememberTool courier.Tool = profile.New(store), remember.New(store)
	if inst != nil {
		searchTool = observer.WrapTool(searchTool, inst)
		profileTool = observer.WrapTool(profileTool, inst)
		rememberTool = observer.WrapTool(rememberTool, inst)
	}

	// 5. Orchestrator
	kit := orchestrator.AgentKit{
		Provider: chatLLM,
		Search:   searchTool,
		Profile:  profileTool,
		Remember: rememberTool,
		MaxIter:  cfg.Pipeline.MaxToolIter,
		Logger:   logger,
	}
	if inst != nil {
		kit.Wrap = observer.AgentWrapper(inst)
	}
	dec := decompose.New(taskLLM,
		decompose.WithMaxTasks(cfg.Pipeline.MaxTasks),
		decompose.WithLogger(logger),
	)
	opts := append(kit.Options(), orchestrator.WithLogger(logger))
	if cfg.Pipeline.AgentTimeout > 0 {
		opts = append(opts, orchestrator.WithAgentTimeout(cfg.Pipeline.AgentTimeout.D()))
	}
	orch := orchestrator.New(dec, chatLLM, opts...)

	// 6. Coalescer + app
	coalesceOpts := []coalesce.Option{
		coalesce.WithLogger(logger),
		coalesce.WithMaxParts(cfg.Pipeline.MaxParts),
	}
	if inst != nil {
		coalesceOpts = append(coalesceOpts, coalesce.WithFlushHook(inst.FlushHook()))
	}
	rt.app = app.New(cfg, app.Deps{
		Turns:     orch,
		Coalescer: coalesce.New(cfg.Pipeline.DebounceWindow.D(), coalesceOpts...),
		Store:     store,
		MemoryLLM: taskLLM,
		Observer:  inst,
		Logger:    logger,
	})
	return rt, nil
}

func newProvider(lc config.LLMConfig, attempts int, logger *slog.Logger, inst *observer.Instruments) (courier.Provider, error) {
	p, err := resolve.Provider(resolve.Config{
		Provider:    lc.Provider,
		APIKey:      lc.APIKey,
		Model:       lc.Model,
		BaseURL:     lc.BaseURL,
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if inst != nil {
		p = observer.WrapProvider(p, lc.Model, inst)
	}
	if lc.RPM > 0 || lc.TPM > 0 {
		p = courier.WithRateLimit(p, courier.RateLimit{RPM: lc.RPM, TPM: lc.TPM})
	}
	retryOpts := []courier.RetryOption{courier.RetryLogger(logger)}
	if attempts > 0 {
		retryOpts = append(retryOpts, courier.RetryMaxAttempts(attempts))
	}
	if lc.Timeout > 0 {
		retryOpts = append(retryOpts, courier.RetryAttemptTimeout(lc.Timeout.D()))
	}
	return courier.WithRetry(p, retryOpts...), nil
}

func sameEndpoint(a, b config.LLMConfig) bool {
	return a.Provider == b.Provider && a.Model == b.Model && a.BaseURL == b.BaseURL && a.APIKey == b.APIKey
}

func openStore(ctx context.Context, dc config.DatabaseConfig, logger *slog.Logger) (courier.Store, error) {
	switch dc.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, dc.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	case "sqlite", "":
		return sqlite.New(dc.Path, sqlite.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", dc.Driver)
	}
}
