package main

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nevindra/courier/internal/app"
	"github.com/nevindra/courier/twiml"
)

var chatFrom string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot from the terminal",
	Long: `Runs turns against the configured provider and store without the
webhook or the debounce window. History and memories are shared with
the sender's SMS conversation.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatFrom, "from", "15550100", "sender phone number")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	sender := app.NormalizeSender(chatFrom)
	if sender == "" {
		return fmt.Errorf("--from %q has no digits", chatFrom)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
		defer cancel()
		if err := rt.close(closeCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	cyan.Fprintf(out, "courier chat as %s (%s/%s). Ctrl-D to quit.\n", sender, cfg.LLM.Provider, cfg.LLM.Model)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cyan.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		start := time.Now()
		reply := twiml.PlainText(rt.app.Respond(ctx, sender, line))
		if ctx.Err() != nil {
			return nil
		}
		green.Fprintln(out, reply)
		dim.Fprintf(out, "(%s)\n", time.Since(start).Round(time.Millisecond))
	}
}
