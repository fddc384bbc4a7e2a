package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/flowsim-go/internal/analyze"
	"github.com/raphaelgruber/flowsim-go/internal/models"
)

var analyzeVersion string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate the evaluations of an experiment version",
	Long: `Aggregate every stored evaluation of an experiment version into summary
statistics: session pass rate, task progress and API precision/recall, or
per-turn scores broken down by intention type.

Examples:
  flowsim analyze -c config/hotel.yaml
  flowsim analyze -c config/hotel.yaml --exp-version pdl-gpt4o-v2`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeVersion, "exp-version", "", "experiment version (default: run config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	version := analyzeVersion
	if version == "" {
		version = runCfg.ExpVersion
	}

	report, err := analyze.Run(context.Background(), dbClient, version)
	if err != nil {
		return err
	}
	fmt.Print(report.String())
	return nil
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a recorded conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := dbClient.QueryConversation(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		if len(msgs) == 0 {
			return fmt.Errorf("conversation %s not found", args[0])
		}
		conv, err := models.FromMessages(msgs)
		if err != nil {
			return err
		}
		fmt.Print(renderTranscript(conv))
		return nil
	},
}
