package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cwbudde/invsizer/internal/config"
	"github.com/cwbudde/invsizer/internal/metrics"
)

var (
	logger *slog.Logger

	// appConfig is loaded before every command runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "invsizer",
	Short: "CMOS inverter transistor sizing",
	Long: `invsizer sizes a CMOS inverter (Wn, Wp, L) by minimizing a weighted sum of
propagation delay, power and area. The analytical model drives a mayfly or
Nelder-Mead search; an external SPICE simulator backs the grid search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger(viper.GetString("log-level"))

		cfg, err := loadConfig(viper.GetString("config"))
		if err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("metrics-file")
		if path == "" {
			return nil
		}
		if err := metrics.WriteFile(path); err != nil {
			return err
		}
		slog.Debug("Metrics written", "path", path)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file (defaults are used when empty)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("data-dir", "./data", "Base directory for run records")
	flags.String("metrics-file", "", "Write a Prometheus textfile snapshot here on exit")

	for _, name := range []string{"config", "log-level", "data-dir", "metrics-file"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("INVSIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupLogger(levelName string) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Debug("Configuration loaded", "path", path)
	return cfg, nil
}

// currentConfig returns the loaded configuration, or the defaults when a
// command runs without the root pre-run (tests).
func currentConfig() *config.Config {
	if appConfig == nil {
		return config.Default()
	}
	return appConfig
}

func dataDir() string {
	return viper.GetString("data-dir")
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd == nil || cmd.Context() == nil {
		return context.Background()
	}
	return cmd.Context()
}
