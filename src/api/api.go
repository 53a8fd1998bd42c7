package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stake-plus/stratomai-agents/src/api/config"
	"github.com/stake-plus/stratomai-agents/src/api/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stratomai-api",
	Short: "Agent registry and task intake API",
	Long: `Serves the agent registry and turns free-text instructions into
persisted tasks with a parsed intent and an execution plan.

Without a subcommand the HTTP server is started.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration and builds the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.Debug)
	slog.SetDefault(log)
	return cfg, log, nil
}
