package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-health/rulesmith/internal/domain"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "rulesmith",
	Short:        "Pricing-rule designer for TPA health insurance",
	Long:         `Rulesmith compiles pricing-rule forms into create-rule payloads and submits them to the TPA backend.`,
	SilenceUsage: true,
}

func init() {
	def := domain.DefaultConfig()
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", def.Logging.Level, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", def.Logging.Format, "log format (json, text)")
}

// setupLogger installs the process-wide slog logger.
func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
