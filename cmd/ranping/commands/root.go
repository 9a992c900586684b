package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/ranping/internal/config"
)

var (
	// cfg is the loaded configuration, initialized in PersistentPreRunE.
	cfg *config.Config

	// logger writes structured logs to stderr so stdout stays parseable.
	logger *slog.Logger

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// configPath is the YAML configuration file. Empty uses defaults and
	// environment variables only.
	configPath string

	// logLevel overrides the configured log level when set.
	logLevel string
)

// rootCmd is the top-level cobra command for ranping.
var rootCmd = &cobra.Command{
	Use:   "ranping",
	Short: "End-to-end ping scenarios for a cellular testbed",
	Long: "ranping drives a gNB, an EPC and UEs through configure, network start, " +
		"attach, ping and teardown, and reports a verdict per scenario.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}

		cfg = loaded
		logger = newLogger(cfg.Log)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatTable,
		"output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level override: debug, info, warn, error")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(adhocCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// newLogger builds the stderr logger for the configured level and format.
func newLogger(lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(lc.Level)}

	var handler slog.Handler
	switch lc.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
