package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Twilio webhook",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+cfg.Server.Path, rt.app.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(cmd.OutOrStdout(), "courier listening on %s%s\n", cfg.Server.Addr, cfg.Server.Path)
	logger.Info("server started", "addr", cfg.Server.Addr, "path", cfg.Server.Path, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = rt.close(context.Background())
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
	defer cancel()
	// Release coalesced requests, let their handlers finish, then drain
	// background work they started.
	rt.app.Flush()
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if err := rt.app.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain app: %w", err))
	}
	if err := rt.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
