package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/nlu"
)

// ModelStore persists trained models.
type ModelStore interface {
	SaveModel(ctx context.Context, model *database.StoredModel) error
	GetModel(ctx context.Context, botID, modelID string) (*database.StoredModel, error)
	ListModels(ctx context.Context, botID, language string) ([]*database.StoredModel, error)
	PruneModels(ctx context.Context, botID, language string, keep int) (int64, error)
}

// ModelRepository is a ModelStore scoped to one bot.
type ModelRepository struct {
	botID  string
	store  ModelStore
	keep   int
	logger *slog.Logger
}

// NewModelRepository scopes store to botID. Prune keeps the newest keep
// models of a language.
func NewModelRepository(botID string, store ModelStore, keep int, log *slog.Logger) *ModelRepository {
	if keep < 1 {
		keep = 1
	}
	return &ModelRepository{botID: botID, store: store, keep: keep, logger: log}
}

// Get returns the stored model with id, or nil if this bot has none.
func (r *ModelRepository) Get(ctx context.Context, id nlu.ModelID) (*nlu.Model, error) {
	stored, err := r.store.GetModel(ctx, r.botID, id.String())
	if err != nil || stored == nil {
		return nil, err
	}
	return &nlu.Model{
		ID:        id,
		BotID:     stored.BotID,
		StartedAt: stored.StartedAt,
		Finished:  stored.FinishedAt,
		Data:      stored.Artifact,
	}, nil
}

// Save stores model under this bot.
func (r *ModelRepository) Save(ctx context.Context, model *nlu.Model) error {
	return r.store.SaveModel(ctx, &database.StoredModel{
		ID:          model.ID.String(),
		BotID:       r.botID,
		Language:    model.ID.LanguageCode,
		ContentHash: model.ID.ContentHash,
		SpecHash:    model.ID.SpecificationHash,
		Seed:        model.ID.Seed,
		Artifact:    model.Data,
		StartedAt:   model.StartedAt,
		FinishedAt:  model.Finished,
	})
}

// List returns the ids of the stored models of language, newest first.
func (r *ModelRepository) List(ctx context.Context, language string) ([]nlu.ModelID, error) {
	stored, err := r.store.ListModels(ctx, r.botID, language)
	if err != nil {
		return nil, err
	}
	ids := make([]nlu.ModelID, 0, len(stored))
	for _, m := range stored {
		id, err := nlu.ParseModelID(m.ID)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping stored model with malformed id", "model_id", m.ID, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Prune deletes all but the newest models of language.
func (r *ModelRepository) Prune(ctx context.Context, language string) (int64, error) {
	deleted, err := r.store.PruneModels(ctx, r.botID, language, r.keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune models of %s/%s: %w", r.botID, language, err)
	}
	return deleted, nil
}
