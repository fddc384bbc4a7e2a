// Package runner fans experiment units out over a bounded worker pool.
// A unit is either one simulated conversation (workflow x persona) or the
// judging of one recorded conversation.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

// Kind distinguishes the two unit types.
type Kind string

const (
	KindSimulate Kind = "simulate"
	KindJudge    Kind = "judge"
)

// Unit is one schedulable piece of work. Cfg carries the per-unit run
// configuration with WorkflowID already resolved.
type Unit struct {
	Kind Kind
	Cfg  config.RunConfig

	// PersonaID selects the persona for simulation units.
	PersonaID int
	// ConversationID identifies the recorded conversation for judge units.
	ConversationID string
}

func (u Unit) String() string {
	if u.Kind == KindJudge {
		return fmt.Sprintf("judge %s", u.ConversationID)
	}
	return fmt.Sprintf("simulate %s/%s persona %d", u.Cfg.WorkflowDataset, u.Cfg.WorkflowID, u.PersonaID)
}

// Outcome is the terminal result of one unit.
type Outcome struct {
	Unit           Unit
	ConversationID string
	Skipped        bool
	Err            error
}

// Summary aggregates a whole batch.
type Summary struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Errors    []string
	Elapsed   time.Duration
}

// Do executes one unit. The skipped flag marks units short-circuited by
// the run registry or an existing evaluation.
type Do func(ctx context.Context, unit Unit) (conversationID string, skipped bool, err error)

// Progress is called after every finished unit with running totals.
type Progress func(done, total, failed int)

// ExpandSimulations enumerates simulation units for a run: every workflow
// in the dataset (or just the configured one) crossed with its personas.
// SimulateNumPersona caps personas per workflow; -1 means all of them.
func ExpandSimulations(cfg config.RunConfig, log *slog.Logger) ([]Unit, error) {
	ds, err := workflow.LoadDataset(cfg.DataDir, cfg.WorkflowDataset)
	if err != nil {
		return nil, err
	}

	ids := ds.TaskIDs()
	if cfg.WorkflowID != "" {
		ids = []string{cfg.WorkflowID}
	}

	var units []Unit
	for _, id := range ids {
		ucfg := cfg
		ucfg.WorkflowID = id
		w, err := workflow.Load(ds, ucfg)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", id, err)
		}
		personas := w.NumPersonas()
		if cfg.SimulateNumPersona >= 0 && personas > cfg.SimulateNumPersona {
			personas = cfg.SimulateNumPersona
		}
		for p := 0; p < personas; p++ {
			units = append(units, Unit{Kind: KindSimulate, Cfg: ucfg, PersonaID: p})
		}
		log.Debug("expanded workflow", "workflow_id", id, "personas", personas)
	}
	log.Info("expanded simulation units", "exp_version", cfg.ExpVersion, "units", len(units))
	return units, nil
}

// RecordSource is the run-record lookup judge expansion needs.
type RecordSource interface {
	QueryRunRecords(ctx context.Context, filter map[string]any) ([]models.RunRecord, error)
}

// ExpandJudgeTasks enumerates judge units from the recorded runs of an
// experiment version. Every record of a version must come from the same
// dataset and workflow format; a mixed version is a configuration error.
func ExpandJudgeTasks(ctx context.Context, src RecordSource, cfg config.RunConfig, log *slog.Logger) ([]Unit, error) {
	if cfg.JudgeConversationID != "" {
		ucfg := cfg
		return []Unit{{Kind: KindJudge, Cfg: ucfg, ConversationID: cfg.JudgeConversationID}}, nil
	}

	records, err := src.QueryRunRecords(ctx, map[string]any{"exp_version": cfg.ExpVersion})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no run records for exp_version %q", cfg.ExpVersion)
	}

	first := records[0]
	units := make([]Unit, 0, len(records))
	for _, rec := range records {
		if rec.WorkflowDataset != first.WorkflowDataset || rec.WorkflowFormat != first.WorkflowFormat {
			return nil, fmt.Errorf("exp_version %q mixes datasets or formats: %s/%s vs %s/%s",
				cfg.ExpVersion, first.WorkflowDataset, first.WorkflowFormat, rec.WorkflowDataset, rec.WorkflowFormat)
		}
		ucfg := cfg
		ucfg.WorkflowDataset = rec.WorkflowDataset
		ucfg.WorkflowFormat = rec.WorkflowFormat
		ucfg.WorkflowID = rec.WorkflowID
		ucfg.ExpMode = rec.ExpMode
		units = append(units, Unit{
			Kind:           KindJudge,
			Cfg:            ucfg,
			PersonaID:      rec.PersonaID,
			ConversationID: rec.ConversationID,
		})
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Cfg.WorkflowID != units[j].Cfg.WorkflowID {
			return units[i].Cfg.WorkflowID < units[j].Cfg.WorkflowID
		}
		return units[i].PersonaID < units[j].PersonaID
	})
	log.Info("expanded judge units", "exp_version", cfg.ExpVersion, "units", len(units))
	return units, nil
}

// unitAttempts is how often a failing unit is retried before it counts as
// failed. Transient LLM or storage errors usually clear within a retry.
const unitAttempts = 3

// RunAll drains the units over a fixed pool of workers and aggregates the
// outcomes. A cancelled context stops workers between units; in-flight
// units finish.
func RunAll(ctx context.Context, units []Unit, workers int, do Do, progress Progress, log *slog.Logger) *Summary {
	if workers <= 0 {
		workers = 1
	}
	start := time.Now()

	var (
		done    atomic.Int32
		skipped atomic.Int32
		failed  atomic.Int32
		errsMu  sync.Mutex
		errs    []string
	)

	workChan := make(chan Unit, len(units))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for unit := range workChan {
				if ctx.Err() != nil {
					return
				}

				out := runOne(ctx, unit, do, log)
				if out.Err != nil {
					failed.Add(1)
					errsMu.Lock()
					errs = append(errs, fmt.Sprintf("%s: %v", unit, out.Err))
					errsMu.Unlock()
					log.Error("unit failed", "worker", workerID, "unit", unit.String(), "error", out.Err)
				} else if out.Skipped {
					skipped.Add(1)
				}

				d := done.Add(1)
				log.Info("unit finished",
					"worker", workerID,
					"unit", unit.String(),
					"conversation_id", out.ConversationID,
					"progress", fmt.Sprintf("%d/%d", d, len(units)))
				if progress != nil {
					progress(int(d), len(units), int(failed.Load()))
				}
			}
		}(i)
	}

	for _, unit := range units {
		workChan <- unit
	}
	close(workChan)
	wg.Wait()

	summary := &Summary{
		Total:     len(units),
		Completed: int(done.Load()) - int(failed.Load()) - int(skipped.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		Errors:    errs,
		Elapsed:   time.Since(start),
	}
	log.Info("batch complete",
		"total", summary.Total,
		"completed", summary.Completed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.Round(time.Millisecond))
	return summary
}

func runOne(ctx context.Context, unit Unit, do Do, log *slog.Logger) Outcome {
	var lastErr error
	for attempt := 1; attempt <= unitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Unit: unit, Err: err}
		}
		convID, wasSkipped, err := do(ctx, unit)
		if err == nil {
			return Outcome{Unit: unit, ConversationID: convID, Skipped: wasSkipped}
		}
		lastErr = err
		if attempt < unitAttempts {
			log.Warn("unit attempt failed, retrying",
				"unit", unit.String(),
				"attempt", fmt.Sprintf("%d/%d", attempt, unitAttempts),
				"error", err)
		}
	}
	return Outcome{Unit: unit, Err: fmt.Errorf("after %d attempts: %w", unitAttempts, lastErr)}
}
