package main

import (
	"fmt"
	"os"
	"strings"

	"pitfall/internal/config"
	"pitfall/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	rulesPath  string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pitfall",
	Short: "pitfall - Prolog-driven game agent",
	Long: `pitfall plays a grid cave game by handing every tick to a Prolog rule base.

The game reports status and percepts, the rule base picks a goal and an
action, and the agent sends the matching command back. Every tick can be
journaled to SQLite and zstd JSONL for later analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if rulesPath != "" {
			cfg.Rules.Path = rulesPath
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Initialize(logger, cfg.Logging.Categories)
		logging.BootDebug("config loaded from %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync()
		}
	},
}

// buildLogger turns the logging section into a zap logger.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	level, err := zapcore.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", lc.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if lc.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, lc.File)
	}
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pitfall.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Rule base file (default: embedded)")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalAnalyzeCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
