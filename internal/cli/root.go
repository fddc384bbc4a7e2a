// Package cli provides the command-line interface for flowsim.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/db"
	"github.com/raphaelgruber/flowsim-go/internal/llm"
	"github.com/raphaelgruber/flowsim-go/internal/metrics"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	runConfigPath string
	verbose       bool

	// Global state shared by subcommands
	cfg       config.Config
	runCfg    config.RunConfig
	dbClient  *db.Client
	logger    *slog.Logger
	closeLog  func() error
	collector *metrics.Collector
	factory   *llm.Factory
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "flowsim",
	Short: "Workflow agent simulation and evaluation",
	Long: `Flowsim simulates conversations between an LLM user, a workflow-following
bot, and simulated APIs, records them, and judges the recorded transcripts.

Experiments are described by a YAML run configuration; process-level
settings (store connection, provider credentials) come from the
environment.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Version and help run without config or store access.
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		collector = metrics.NewCollector()

		var err error
		runCfg, err = config.LoadRunConfig(runConfigPath)
		if err != nil {
			return fmt.Errorf("load run config: %w", err)
		}

		ctx := context.Background()
		dbClient, err = db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger, collector)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		factory = llm.NewFactory(cfg, collector)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&runConfigPath, "config", "c", "config/default.yaml", "run configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(judgeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(showCmd)
}
