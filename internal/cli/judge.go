package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/judge"
	"github.com/raphaelgruber/flowsim-go/internal/runner"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

var (
	judgeConversation string
	judgeForce        bool
)

var judgeCmd = &cobra.Command{
	Use:   "judge",
	Short: "Judge the recorded conversations of an experiment",
	Long: `Evaluate every conversation recorded under the experiment version.

Session-mode conversations get an LLM verdict over the user's goals plus
deterministic API precision/recall; turn-mode conversations get a score
per bot turn against the reference. Conversations already judged are
skipped unless --force re-judges them.

Examples:
  flowsim judge -c config/hotel.yaml
  flowsim judge -c config/hotel.yaml --conversation 3f2a... --force`,
	Args: cobra.NoArgs,
	RunE: runJudge,
}

func init() {
	judgeCmd.Flags().StringVar(&judgeConversation, "conversation", "", "judge a single conversation id")
	judgeCmd.Flags().BoolVar(&judgeForce, "force", false, "re-judge conversations that already have an evaluation")
}

// workflowCache shares loaded workflows between judge workers; every unit
// of a version uses the same dataset and format, so the key is just the
// workflow id and mode.
type workflowCache struct {
	mu        sync.Mutex
	workflows map[string]*workflow.Workflow
}

func (c *workflowCache) get(cfg config.RunConfig) (*workflow.Workflow, error) {
	key := cfg.WorkflowID + "/" + cfg.ExpMode
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workflows[key]; ok {
		return w, nil
	}

	ds, err := workflow.LoadDataset(cfg.DataDir, cfg.WorkflowDataset)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	w, err := workflow.Load(ds, cfg)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", cfg.WorkflowID, err)
	}
	if c.workflows == nil {
		c.workflows = map[string]*workflow.Workflow{}
	}
	c.workflows[key] = w
	return w, nil
}

// judgeBatch judges every recorded conversation of cfg's experiment
// version over the worker pool.
func judgeBatch(ctx context.Context, cfg config.RunConfig) (*runner.Summary, error) {
	units, err := runner.ExpandJudgeTasks(ctx, dbClient, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("expand judge tasks: %w", err)
	}

	model, err := factory.Get(ctx, cfg.JudgeModel, cfg.JudgeRetryLimit)
	if err != nil {
		return nil, fmt.Errorf("init judge model: %w", err)
	}

	cache := &workflowCache{}
	do := func(ctx context.Context, unit runner.Unit) (string, bool, error) {
		w, err := cache.get(unit.Cfg)
		if err != nil {
			return "", false, err
		}
		j := judge.New(dbClient, model, w, unit.Cfg, logger, collector)
		skipped, err := j.Judge(ctx, unit.ConversationID, unit.PersonaID)
		return unit.ConversationID, skipped, err
	}

	return runBatch(ctx, "judging", units, cfg.JudgeMaxWorkers, do), nil
}

func runJudge(cmd *cobra.Command, args []string) error {
	cfg := runCfg
	if judgeConversation != "" {
		cfg.JudgeConversationID = judgeConversation
	}
	cfg.ForceRejudge = cfg.ForceRejudge || judgeForce

	summary, err := judgeBatch(context.Background(), cfg)
	if err != nil {
		return err
	}
	if !isTTY() {
		fmt.Print(renderSummary(defaultTheme, summary))
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", summary.Failed, summary.Total)
	}
	fmt.Print(renderStats(defaultTheme, collector.Snapshot()))
	return nil
}
