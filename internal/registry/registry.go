// Package registry tracks which run units have already been simulated,
// making batch runs idempotent and safe to resume.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/db"
	"github.com/raphaelgruber/flowsim-go/internal/models"
)

// Store is the persistence surface the registry needs.
type Store interface {
	InsertMessages(ctx context.Context, msgs []models.Message) error
	DeleteConversation(ctx context.Context, conversationID string) (int, error)
	InsertRunRecord(ctx context.Context, rec models.RunRecord) error
	QueryRunRecords(ctx context.Context, filter map[string]any) ([]models.RunRecord, error)
	DeleteRunRecords(ctx context.Context, filter map[string]any) (int, error)
}

// Registry decides whether a unit needs to run and records completed runs.
type Registry struct {
	store Store
	log   *slog.Logger
}

// New creates a registry backed by the given store.
func New(store Store, log *slog.Logger) *Registry {
	return &Registry{store: store, log: log}
}

// IdentityFilter projects the fields that identify one simulation unit.
// Everything else in the run configuration (models, retry limits,
// logging) may differ between retries of the same unit.
func IdentityFilter(cfg config.RunConfig, personaID int) map[string]any {
	return map[string]any{
		"exp_version":      cfg.ExpVersion,
		"exp_mode":         cfg.ExpMode,
		"workflow_dataset": cfg.WorkflowDataset,
		"workflow_format":  cfg.WorkflowFormat,
		"workflow_id":      cfg.WorkflowID,
		"persona_id":       personaID,
	}
}

// HasRun reports whether the unit has a recorded run. With forceRerun the
// existing record and its conversation are deleted first, so the unit
// always reports as not run.
func (r *Registry) HasRun(ctx context.Context, cfg config.RunConfig, personaID int, forceRerun bool) (*models.RunRecord, error) {
	filter := IdentityFilter(cfg, personaID)

	if forceRerun {
		if err := r.ForceClear(ctx, cfg, personaID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	recs, err := r.store.QueryRunRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("checking run registry: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// ForceClear removes the unit's recorded runs so the next HasRun reports
// it as fresh.
func (r *Registry) ForceClear(ctx context.Context, cfg config.RunConfig, personaID int) error {
	return r.clear(ctx, IdentityFilter(cfg, personaID))
}

// clear removes the unit's run records along with their conversations.
func (r *Registry) clear(ctx context.Context, filter map[string]any) error {
	recs, err := r.store.QueryRunRecords(ctx, filter)
	if err != nil {
		return fmt.Errorf("clearing run registry: %w", err)
	}
	for _, rec := range recs {
		if _, err := r.store.DeleteConversation(ctx, rec.ConversationID); err != nil {
			return fmt.Errorf("clearing conversation %s: %w", rec.ConversationID, err)
		}
	}
	if _, err := r.store.DeleteRunRecords(ctx, filter); err != nil {
		return fmt.Errorf("clearing run registry: %w", err)
	}
	if len(recs) > 0 {
		r.log.Info("cleared previous runs", "count", len(recs))
	}
	return nil
}

// Record persists the finished conversation and then marks the unit as
// run. When another worker recorded the same identity first, the local
// conversation is removed again and the unit counts as already run.
func (r *Registry) Record(ctx context.Context, cfg config.RunConfig, personaID int, conv *models.Conversation) error {
	if err := r.store.InsertMessages(ctx, conv.Msgs); err != nil {
		return fmt.Errorf("recording conversation: %w", err)
	}

	rec := models.RunRecord{
		ExpVersion:      cfg.ExpVersion,
		ExpMode:         cfg.ExpMode,
		WorkflowDataset: cfg.WorkflowDataset,
		WorkflowFormat:  cfg.WorkflowFormat,
		WorkflowID:      cfg.WorkflowID,
		PersonaID:       personaID,
		ConversationID:  conv.ID,
		Config:          cfg.Map(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := r.store.InsertRunRecord(ctx, rec); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			r.log.Warn("unit was recorded concurrently, discarding local conversation",
				"conversation_id", conv.ID, "persona_id", personaID)
			if _, delErr := r.store.DeleteConversation(ctx, conv.ID); delErr != nil {
				return fmt.Errorf("discarding duplicate conversation: %w", delErr)
			}
			return nil
		}
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}
