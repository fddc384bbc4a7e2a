package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/registry"
	"github.com/raphaelgruber/flowsim-go/internal/roles"
	"github.com/raphaelgruber/flowsim-go/internal/sim"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

var (
	simulateWorkflowID string
	simulatePersona    int
	simulateForce      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a single conversation",
	Long: `Simulate one conversation for a single workflow and persona, record it,
and print the transcript.

The workflow defaults to the one in the run configuration; a unit that was
already recorded under the same experiment version is skipped unless
--force clears it first.

Examples:
  flowsim simulate -c config/hotel.yaml
  flowsim simulate -c config/hotel.yaml --workflow 002 --persona 3 --force`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateWorkflowID, "workflow", "", "workflow id (default: run config)")
	simulateCmd.Flags().IntVar(&simulatePersona, "persona", 0, "persona index")
	simulateCmd.Flags().BoolVar(&simulateForce, "force", false, "re-run even if already recorded")
}

// buildEnv assembles the role environment for one workflow/persona unit.
func buildEnv(cfg config.RunConfig, personaID int) (*roles.Env, error) {
	ds, err := workflow.LoadDataset(cfg.DataDir, cfg.WorkflowDataset)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	w, err := workflow.Load(ds, cfg)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", cfg.WorkflowID, err)
	}
	return &roles.Env{
		Cfg:       cfg,
		Workflow:  w,
		Conv:      models.NewConversation(""),
		Models:    factory,
		PersonaID: personaID,
		Log:       logger,
	}, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg := runCfg
	if simulateWorkflowID != "" {
		cfg.WorkflowID = simulateWorkflowID
	}
	if cfg.WorkflowID == "" {
		return fmt.Errorf("no workflow id in run config, pass --workflow")
	}
	cfg.ForceRerun = cfg.ForceRerun || simulateForce

	env, err := buildEnv(cfg, simulatePersona)
	if err != nil {
		return err
	}

	reg := registry.New(dbClient, logger)
	convID, skipped, err := sim.RunUnit(ctx, env, reg, collector)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	if skipped {
		fmt.Printf("Conversation %s already recorded, printing stored transcript.\n\n", convID)
		msgs, err := dbClient.QueryConversation(ctx, convID)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		conv, err := models.FromMessages(msgs)
		if err != nil {
			return err
		}
		fmt.Print(renderTranscript(conv))
		return nil
	}

	fmt.Printf("Conversation %s recorded (%d messages).\n\n", convID, env.Conv.Len())
	fmt.Print(renderTranscript(env.Conv))
	return nil
}
