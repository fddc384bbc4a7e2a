// Package judge evaluates recorded conversations: an LLM session verdict
// plus deterministic API statistics in session mode, per-turn reference
// scores in turn mode. Each conversation is judged at most once.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/db"
	"github.com/raphaelgruber/flowsim-go/internal/metrics"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/prompt"
	"github.com/raphaelgruber/flowsim-go/internal/retry"
	"github.com/raphaelgruber/flowsim-go/internal/roles"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

// Store is the persistence surface judging needs.
type Store interface {
	QueryConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	QueryEvaluations(ctx context.Context, filter map[string]any) ([]models.JudgeRecord, error)
	DeleteEvaluations(ctx context.Context, filter map[string]any) (int, error)
	InsertEvaluation(ctx context.Context, rec models.JudgeRecord) error
}

// Generator produces one judge completion. Satisfied by llm.Model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Judger evaluates conversations of one workflow.
type Judger struct {
	store     Store
	model     Generator
	wf        *workflow.Workflow
	cfg       config.RunConfig
	log       *slog.Logger
	collector *metrics.Collector
}

// New creates a judger bound to a workflow and its run configuration.
func New(store Store, model Generator, wf *workflow.Workflow, cfg config.RunConfig, log *slog.Logger, collector *metrics.Collector) *Judger {
	return &Judger{store: store, model: model, wf: wf, cfg: cfg, log: log, collector: collector}
}

// Judge evaluates one conversation. An existing evaluation short-circuits
// unless force-rejudge clears it first; the skipped flag reports which
// path ran.
func (j *Judger) Judge(ctx context.Context, conversationID string, personaID int) (skipped bool, err error) {
	start := time.Now()
	defer func() {
		if j.collector != nil {
			j.collector.RecordTiming(metrics.OpJudge, time.Since(start))
		}
	}()

	filter := map[string]any{"conversation_id": conversationID}
	if j.cfg.ForceRejudge {
		if _, err := j.store.DeleteEvaluations(ctx, filter); err != nil {
			return false, fmt.Errorf("clear previous evaluation: %w", err)
		}
	} else {
		existing, err := j.store.QueryEvaluations(ctx, filter)
		if err != nil {
			return false, fmt.Errorf("look up evaluation: %w", err)
		}
		if len(existing) > 0 {
			j.log.Info("conversation already judged", "conversation_id", conversationID)
			return true, nil
		}
	}

	msgs, err := j.store.QueryConversation(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("load conversation: %w", err)
	}
	if len(msgs) == 0 {
		return false, fmt.Errorf("conversation %s has no messages", conversationID)
	}
	conv, err := models.FromMessages(msgs)
	if err != nil {
		return false, err
	}

	rec := models.JudgeRecord{
		ConversationID:  conversationID,
		ExpVersion:      j.cfg.ExpVersion,
		WorkflowDataset: j.cfg.WorkflowDataset,
		WorkflowFormat:  j.cfg.WorkflowFormat,
		WorkflowID:      j.cfg.WorkflowID,
		Mode:            j.cfg.ExpMode,
		NumMessages:     conv.Len(),
		JudgeModel:      j.model.Model(),
		CreatedAt:       time.Now().UTC(),
	}

	switch j.cfg.ExpMode {
	case config.ExpModeSession:
		err = j.judgeSession(ctx, conv, personaID, &rec)
	case config.ExpModeTurn:
		err = j.judgeTurns(ctx, conv, &rec)
	default:
		err = fmt.Errorf("unknown experiment mode %q", j.cfg.ExpMode)
	}
	if err != nil {
		return false, err
	}

	if err := j.store.InsertEvaluation(ctx, rec); err != nil {
		// A concurrent judge of the same conversation won the insert.
		if errors.Is(err, db.ErrAlreadyExists) {
			j.log.Warn("evaluation already stored", "conversation_id", conversationID)
			return true, nil
		}
		return false, fmt.Errorf("store evaluation: %w", err)
	}
	j.log.Info("conversation judged", "conversation_id", conversationID, "mode", rec.Mode)
	return false, nil
}

// Session-verdict slot labels.
const (
	slotResult       = "Result"
	slotGoalsTotal   = "Total number of goals"
	slotGoalsReached = "Number of accomplished goals"
	slotReason       = "Reason"
	slotScore        = "Score"
)

func (j *Judger) judgeSession(ctx context.Context, conv *models.Conversation, personaID int, rec *models.JudgeRecord) error {
	if personaID < 0 || personaID >= len(j.wf.Profiles) {
		return fmt.Errorf("persona %d out of range, workflow has %d profiles", personaID, len(j.wf.Profiles))
	}
	profile := j.wf.Profiles[personaID]

	text, err := prompt.Render(prompt.JudgeSession, map[string]string{
		"WorkflowInfo": j.wf.String(),
		"UserTarget":   profile.String(),
		"Session":      conv.String(),
	})
	if err != nil {
		return err
	}

	type sessionOut struct {
		raw     string
		verdict models.SessionVerdict
	}
	out, err := retry.Do(ctx, j.cfg.JudgeRetryLimit, "judge session", j.log, func() (sessionOut, error) {
		raw, err := j.model.Generate(ctx, text)
		if err != nil {
			return sessionOut{}, err
		}
		verdict, err := parseSessionVerdict(raw)
		if err != nil {
			return sessionOut{raw: raw}, err
		}
		return sessionOut{raw: raw, verdict: verdict}, nil
	})
	if err != nil {
		return err
	}

	rec.Session = &out.verdict
	rec.SessionStat = APIStat(profile.RequiredAPIs, conv.CalledAPIs())
	rec.RawResponse = out.raw
	return nil
}

func parseSessionVerdict(raw string) (models.SessionVerdict, error) {
	slots := roles.ExtractSlots(roles.StripCodeFence(raw),
		[]string{slotResult, slotGoalsTotal, slotGoalsReached, slotReason})

	result := strings.ToLower(strings.TrimSpace(slots[slotResult]))
	if result != "yes" && result != "no" {
		return models.SessionVerdict{}, fmt.Errorf("verdict Result must be yes or no, got %q", slots[slotResult])
	}
	total, err := parseSlotInt(slots, slotGoalsTotal)
	if err != nil {
		return models.SessionVerdict{}, err
	}
	reached, err := parseSlotInt(slots, slotGoalsReached)
	if err != nil {
		return models.SessionVerdict{}, err
	}

	return models.SessionVerdict{
		Pass:              result == "yes",
		GoalsTotal:        total,
		GoalsAccomplished: reached,
		Reason:            strings.TrimSpace(slots[slotReason]),
	}, nil
}

func parseSlotInt(slots map[string]string, name string) (int, error) {
	v, ok := slots[name]
	if !ok {
		return 0, fmt.Errorf("verdict is missing %q", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("verdict %q is not an integer: %q", name, v)
	}
	return n, nil
}

func (j *Judger) judgeTurns(ctx context.Context, conv *models.Conversation, rec *models.JudgeRecord) error {
	var raws []string
	for i := 0; i < conv.Len(); i++ {
		msg := conv.At(i)
		if msg.Role != models.RoleBot {
			continue
		}

		text, err := prompt.Render(prompt.JudgeTurn, map[string]string{
			"WorkflowInfo": j.wf.String(),
			"Session":      conv.Slice(i).String(),
			"Reference":    msg.Content,
			"Predicted":    msg.ContentPredict,
		})
		if err != nil {
			return err
		}

		type turnOut struct {
			raw   string
			score int
		}
		out, err := retry.Do(ctx, j.cfg.JudgeRetryLimit, "judge turn", j.log, func() (turnOut, error) {
			raw, err := j.model.Generate(ctx, text)
			if err != nil {
				return turnOut{}, err
			}
			score, err := parseTurnScore(raw)
			if err != nil {
				return turnOut{raw: raw}, err
			}
			return turnOut{raw: raw, score: score}, nil
		})
		if err != nil {
			return fmt.Errorf("utterance %d: %w", msg.UtteranceID, err)
		}

		score := models.TurnScore{UtteranceID: msg.UtteranceID, Score: out.score}
		if i > 0 {
			score.Type = conv.At(i - 1).Type
		}
		rec.Turns = append(rec.Turns, score)
		rec.TurnStat = append(rec.TurnStat, turnAPIPair(msg))
		raws = append(raws, out.raw)
	}
	if len(rec.Turns) == 0 {
		return fmt.Errorf("conversation %s has no bot turns to judge", conv.ID)
	}
	rec.RawResponse = strings.Join(raws, "\n---\n")
	return nil
}

func parseTurnScore(raw string) (int, error) {
	slots := roles.ExtractSlots(roles.StripCodeFence(raw), []string{slotScore})
	score, err := parseSlotInt(slots, slotScore)
	if err != nil {
		return 0, err
	}
	if score < 1 || score > 10 {
		return 0, fmt.Errorf("turn score %d out of range 1..10", score)
	}
	return score, nil
}

// turnAPIPair extracts the ground-truth API call annotated on a reference
// bot turn and the call the live bot predicted at the same position.
// Either side is nil when that turn was a plain response.
func turnAPIPair(msg models.Message) models.TurnAPIPair {
	var pair models.TurnAPIPair
	if len(msg.APIs) > 0 {
		gt := msg.APIs[0]
		pair.GT = &gt
	}
	if strings.HasPrefix(msg.ContentPredict, models.APICallPrefix) {
		if name, params, err := models.ParseAPICall(msg.ContentPredict); err == nil {
			pair.Pred = &models.APICall{Name: name, Params: params}
		}
	}
	return pair
}
