// Command courier runs the SMS/WhatsApp companion bot.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nevindra/courier/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "SMS and WhatsApp companion bot",
	Long: `Courier answers Twilio SMS and WhatsApp webhooks. Bursts of messages
from one sender are merged into a single turn, split into tasks, run by
specialised agents and returned as carrier-sized TwiML segments.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("COURIER_CONFIG"), "path to courier.toml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config and builds the process logger from it.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	return cfg, logger, nil
}
