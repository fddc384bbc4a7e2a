package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/flowsim-go/internal/analyze"
	"github.com/raphaelgruber/flowsim-go/internal/registry"
	"github.com/raphaelgruber/flowsim-go/internal/runner"
	"github.com/raphaelgruber/flowsim-go/internal/sim"
)

var (
	runForce        bool
	runSimulateOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a whole experiment: simulate, judge, analyze",
	Long: `Expand the run configuration into simulation units, one per workflow and
persona, drain them over a worker pool, judge the recorded conversations,
and print the aggregate report.

Units already recorded under the experiment version are skipped, so an
interrupted batch resumes where it stopped. --force clears previous
records first; --simulate-only stops after the simulation phase.

Examples:
  flowsim run -c config/hotel.yaml
  flowsim run -c config/hotel.yaml --force
  flowsim run -c config/hotel.yaml --simulate-only`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-run units that are already recorded")
	runCmd.Flags().BoolVar(&runSimulateOnly, "simulate-only", false, "skip the judge and analyze phases")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg := runCfg
	cfg.ForceRerun = cfg.ForceRerun || runForce

	units, err := runner.ExpandSimulations(cfg, logger)
	if err != nil {
		return fmt.Errorf("expand simulations: %w", err)
	}
	if len(units) == 0 {
		fmt.Println("Nothing to simulate.")
		return nil
	}

	reg := registry.New(dbClient, logger)
	do := func(ctx context.Context, unit runner.Unit) (string, bool, error) {
		env, err := buildEnv(unit.Cfg, unit.PersonaID)
		if err != nil {
			return "", false, err
		}
		return sim.RunUnit(ctx, env, reg, collector)
	}

	summary := runBatch(ctx, "simulating", units, cfg.SimulateMaxWorkers, do)
	if !isTTY() {
		fmt.Print(renderSummary(defaultTheme, summary))
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d simulation units failed", summary.Failed, summary.Total)
	}
	if runSimulateOnly {
		fmt.Print(renderStats(defaultTheme, collector.Snapshot()))
		return nil
	}

	judgeSummary, err := judgeBatch(ctx, cfg)
	if err != nil {
		return err
	}
	if !isTTY() {
		fmt.Print(renderSummary(defaultTheme, judgeSummary))
	}
	if judgeSummary.Failed > 0 {
		return fmt.Errorf("%d of %d judge units failed", judgeSummary.Failed, judgeSummary.Total)
	}

	report, err := analyze.Run(ctx, dbClient, cfg.ExpVersion)
	if err != nil {
		return err
	}
	fmt.Print(report.String())
	fmt.Print(renderStats(defaultTheme, collector.Snapshot()))
	return nil
}
