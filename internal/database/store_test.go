package database_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/errs"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestBotConfigLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	got, err := store.GetBotConfig(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	cfg := &database.BotConfig{
		ID:              "b1",
		Name:            "Bot One",
		DefaultLanguage: "en",
		Languages:       database.StringList{"en", "fr"},
		NLUSeed:         sql.NullInt64{Int64: 7, Valid: true},
	}
	require.NoError(t, store.SaveBotConfig(ctx, cfg))

	got, err = store.GetBotConfig(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bot One", got.Name)
	assert.Equal(t, database.StringList{"en", "fr"}, got.Languages)
	assert.Equal(t, int64(7), got.NLUSeed.Int64)

	cfg.Languages = database.StringList{"en"}
	cfg.NLUSeed = sql.NullInt64{}
	require.NoError(t, store.SaveBotConfig(ctx, cfg))

	got, err = store.GetBotConfig(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, database.StringList{"en"}, got.Languages)
	assert.False(t, got.NLUSeed.Valid)

	all, err := store.ListBotConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteBotConfig(ctx, "b1"))
	got, err = store.GetBotConfig(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveBotConfigValidation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	err := store.SaveBotConfig(context.Background(), &database.BotConfig{ID: "b1"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = store.GetBotConfig(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestModelsListAndPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.SaveModel(ctx, &database.StoredModel{
			ID:          fmt.Sprintf("h%d.s.1.en", i),
			BotID:       "b1",
			Language:    "en",
			ContentHash: fmt.Sprintf("h%d", i),
			SpecHash:    "s",
			Seed:        1,
			Artifact:    []byte("artifact"),
			StartedAt:   base,
			FinishedAt:  base,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.SaveModel(ctx, &database.StoredModel{
		ID: "x.s.1.fr", BotID: "b1", Language: "fr", ContentHash: "x", SpecHash: "s", Seed: 1,
		Artifact: []byte("fr"), StartedAt: base, FinishedAt: base,
	}))

	ok, err := store.HasModel(ctx, "b1", "h2.s.1.en")
	require.NoError(t, err)
	assert.True(t, ok)

	model, err := store.GetModel(ctx, "b1", "h2.s.1.en")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, []byte("artifact"), model.Artifact)

	models, err := store.ListModels(ctx, "b1", "en")
	require.NoError(t, err)
	require.Len(t, models, 4)
	assert.Equal(t, "h3.s.1.en", models[0].ID)
	assert.Nil(t, models[0].Artifact)

	deleted, err := store.PruneModels(ctx, "b1", "en", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	models, err = store.ListModels(ctx, "b1", "en")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "h3.s.1.en", models[0].ID)
	assert.Equal(t, "h2.s.1.en", models[1].ID)

	ok, err = store.HasModel(ctx, "b1", "x.s.1.fr")
	require.NoError(t, err)
	assert.True(t, ok, "pruning one language must not touch another")

	require.NoError(t, store.DeleteBotModels(ctx, "b1"))
	missing, err := store.GetModel(ctx, "b1", "h3.s.1.en")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestModelsAreScopedByBot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, botID := range []string{"b1", "b2"} {
		require.NoError(t, store.SaveModel(ctx, &database.StoredModel{
			ID: "h.s.42.en", BotID: botID, Language: "en", ContentHash: "h", SpecHash: "s", Seed: 42,
			Artifact: []byte(botID), StartedAt: base, FinishedAt: base,
		}))
	}

	for _, botID := range []string{"b1", "b2"} {
		model, err := store.GetModel(ctx, botID, "h.s.42.en")
		require.NoError(t, err)
		require.NotNil(t, model, botID)
		assert.Equal(t, botID, model.BotID)
		assert.Equal(t, []byte(botID), model.Artifact)

		models, err := store.ListModels(ctx, botID, "en")
		require.NoError(t, err)
		assert.Len(t, models, 1, botID)
	}

	deleted, err := store.PruneModels(ctx, "b1", "en", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	ok, err := store.HasModel(ctx, "b2", "h.s.42.en")
	require.NoError(t, err)
	assert.True(t, ok, "pruning one bot must not touch another")
	ok, err = store.HasModel(ctx, "b1", "h.s.42.en")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrainingSessionUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	session := &database.TrainingSession{ID: "s1", BotID: "b1", Language: "en", Status: "training-pending"}
	require.NoError(t, store.SaveTrainingSession(ctx, session))
	require.NoError(t, store.SaveTrainingSession(ctx, &database.TrainingSession{ID: "s2", BotID: "b1", Language: "fr", Status: "done", Progress: 1}))

	session.Status = "training"
	session.Progress = 0.5
	require.NoError(t, store.SaveTrainingSession(ctx, session))

	got, err := store.GetTrainingSession(ctx, "b1", "en")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "training", got.Status)
	assert.InDelta(t, 0.5, got.Progress, 1e-9)

	active, err := store.ListTrainingSessions(ctx, "training", "training-pending")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "en", active[0].Language)

	all, err := store.ListTrainingSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := store.GetTrainingSession(ctx, "b2", "en")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.RunSQLMaintenance(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.RunSQLMaintenance(ctx), context.Canceled)
}
