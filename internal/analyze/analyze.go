// Package analyze aggregates stored evaluations of one experiment version
// into summary statistics.
package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/flowsim-go/internal/judge"
	"github.com/raphaelgruber/flowsim-go/internal/models"
)

// Source is the evaluation lookup analysis needs.
type Source interface {
	QueryEvaluations(ctx context.Context, filter map[string]any) ([]models.JudgeRecord, error)
}

// SessionReport summarizes session-mode evaluations.
type SessionReport struct {
	Conversations int
	PassRate      float64
	// TaskProgress is the mean accomplished/total goal ratio.
	TaskProgress float64
	Precision    float64
	Recall       float64
	F1           float64
	AvgMessages  float64
}

// TurnTypeStats breaks turn scores down by the preceding user turn's
// intention type. The empty type collects untagged turns.
type TurnTypeStats struct {
	Type      string
	Turns     int
	MeanScore float64
	PassRate  float64
}

// TurnReport summarizes turn-mode evaluations.
type TurnReport struct {
	Conversations int
	Turns         int
	MeanScore     float64
	PassRate      float64
	// APIAccuracy is the fraction of bot turns where the predicted API
	// call name matches the reference, counting two plain responses as
	// a match.
	APIAccuracy float64
	ByType      []TurnTypeStats
}

// Report is the aggregate over every evaluation of one experiment version.
type Report struct {
	ExpVersion      string
	Mode            string
	WorkflowDataset string
	Session         *SessionReport
	Turn            *TurnReport
}

// passScore is the minimum turn score counted as passing. Turns are
// scored 1 to 10 and only a 9 or 10 counts as a pass.
const passScore = 9

// Run aggregates all evaluations recorded under an experiment version.
func Run(ctx context.Context, src Source, expVersion string) (*Report, error) {
	records, err := src.QueryEvaluations(ctx, map[string]any{"exp_version": expVersion})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no evaluations for exp_version %q", expVersion)
	}

	mode := records[0].Mode
	for _, rec := range records {
		if rec.Mode != mode {
			return nil, fmt.Errorf("exp_version %q mixes modes %q and %q", expVersion, mode, rec.Mode)
		}
	}

	report := &Report{
		ExpVersion:      expVersion,
		Mode:            mode,
		WorkflowDataset: records[0].WorkflowDataset,
	}
	switch mode {
	case "session":
		report.Session = sessionReport(records)
	case "turn":
		report.Turn = turnReport(records)
	default:
		return nil, fmt.Errorf("unknown evaluation mode %q", mode)
	}
	return report, nil
}

func sessionReport(records []models.JudgeRecord) *SessionReport {
	rep := &SessionReport{Conversations: len(records)}
	var passed int
	var progress, precision, recall, f1, messages float64
	for _, rec := range records {
		messages += float64(rec.NumMessages)
		if rec.Session != nil {
			if rec.Session.Pass {
				passed++
			}
			if rec.Session.GoalsTotal > 0 {
				progress += float64(rec.Session.GoalsAccomplished) / float64(rec.Session.GoalsTotal)
			}
		}
		if rec.SessionStat != nil {
			precision += rec.SessionStat.Precision
			recall += rec.SessionStat.Recall
			f1 += rec.SessionStat.F1
		}
	}

	n := float64(len(records))
	rep.PassRate = float64(passed) / n
	rep.TaskProgress = progress / n
	rep.Precision = precision / n
	rep.Recall = recall / n
	rep.F1 = f1 / n
	rep.AvgMessages = messages / n
	return rep
}

func turnReport(records []models.JudgeRecord) *TurnReport {
	rep := &TurnReport{Conversations: len(records)}

	type bucket struct {
		turns  int
		score  int
		passed int
	}
	byType := map[string]*bucket{}
	var totalScore, totalPassed int
	var pairs []models.TurnAPIPair

	for _, rec := range records {
		for _, turn := range rec.Turns {
			rep.Turns++
			totalScore += turn.Score
			if turn.Score >= passScore {
				totalPassed++
			}

			b := byType[turn.Type]
			if b == nil {
				b = &bucket{}
				byType[turn.Type] = b
			}
			b.turns++
			b.score += turn.Score
			if turn.Score >= passScore {
				b.passed++
			}
		}
		pairs = append(pairs, rec.TurnStat...)
	}

	if rep.Turns > 0 {
		rep.MeanScore = float64(totalScore) / float64(rep.Turns)
		rep.PassRate = float64(totalPassed) / float64(rep.Turns)
	}
	rep.APIAccuracy = judge.MetricAcc(pairs)

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		b := byType[t]
		rep.ByType = append(rep.ByType, TurnTypeStats{
			Type:      t,
			Turns:     b.turns,
			MeanScore: float64(b.score) / float64(b.turns),
			PassRate:  float64(b.passed) / float64(b.turns),
		})
	}
	return rep
}

// String renders the report as an aligned plain-text table.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exp_version: %s\n", r.ExpVersion)
	fmt.Fprintf(&b, "dataset:     %s\n", r.WorkflowDataset)
	fmt.Fprintf(&b, "mode:        %s\n", r.Mode)

	if r.Session != nil {
		s := r.Session
		fmt.Fprintf(&b, "conversations:  %d\n", s.Conversations)
		fmt.Fprintf(&b, "pass rate:      %.3f\n", s.PassRate)
		fmt.Fprintf(&b, "task progress:  %.3f\n", s.TaskProgress)
		fmt.Fprintf(&b, "api precision:  %.3f\n", s.Precision)
		fmt.Fprintf(&b, "api recall:     %.3f\n", s.Recall)
		fmt.Fprintf(&b, "api f1:         %.3f\n", s.F1)
		fmt.Fprintf(&b, "avg messages:   %.1f\n", s.AvgMessages)
	}
	if r.Turn != nil {
		t := r.Turn
		fmt.Fprintf(&b, "conversations:  %d\n", t.Conversations)
		fmt.Fprintf(&b, "turns:          %d\n", t.Turns)
		fmt.Fprintf(&b, "mean score:     %.3f\n", t.MeanScore)
		fmt.Fprintf(&b, "pass rate:      %.3f\n", t.PassRate)
		fmt.Fprintf(&b, "api accuracy:   %.3f\n", t.APIAccuracy)
		for _, ts := range t.ByType {
			name := ts.Type
			if name == "" {
				name = "(untyped)"
			}
			fmt.Fprintf(&b, "  %-20s turns=%-4d mean=%.3f pass=%.3f\n", name, ts.Turns, ts.MeanScore, ts.PassRate)
		}
	}
	return b.String()
}
