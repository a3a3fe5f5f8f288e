package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/engine"
)

type recordingSaver struct {
	saved []*database.BotConfig
}

func (r *recordingSaver) SaveBotConfig(_ context.Context, cfg *database.BotConfig) error {
	r.saved = append(r.saved, cfg)
	return nil
}

func TestSeedBotConfigs(t *testing.T) {
	t.Parallel()

	seed := 12
	saver := &recordingSaver{}
	err := seedBotConfigs(context.Background(), saver, []config.BotSeed{
		{ID: "b1", Name: "One", DefaultLanguage: "en", Languages: []string{"en", "fr"}, Seed: &seed},
		{ID: "b2", DefaultLanguage: "fr", Languages: []string{"fr"}},
	})
	require.NoError(t, err)
	require.Len(t, saver.saved, 2)

	assert.Equal(t, database.StringList{"en", "fr"}, saver.saved[0].Languages)
	assert.True(t, saver.saved[0].NLUSeed.Valid)
	assert.Equal(t, int64(12), saver.saved[0].NLUSeed.Int64)
	assert.False(t, saver.saved[1].NLUSeed.Valid)
}

func TestCollectStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	botsDir := t.TempDir()
	intents := filepath.Join(botsDir, "b1", "intents")
	require.NoError(t, os.MkdirAll(intents, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(intents, "greet.json"), []byte(`{"utterances":{"en":["hello"],"fr":["bonjour"]}}`), 0o644))

	require.NoError(t, seedBotConfigs(ctx, store, []config.BotSeed{
		{ID: "b1", DefaultLanguage: "en", Languages: []string{"en", "fr", "de"}},
	}))

	eng := engine.NewLocal(config.EngineConfig{Version: "1", Classifier: "overlap", Languages: []string{"en", "fr"}}, nil)

	rows, err := collectStatus(ctx, store, eng, botsDir)
	require.NoError(t, err)
	require.Len(t, rows, 2, "unsupported languages are skipped")
	for _, r := range rows {
		assert.NotEmpty(t, r.ModelID)
		assert.False(t, r.Stored)
		assert.Equal(t, "idle", r.Training)
	}

	require.NoError(t, store.SaveModel(ctx, &database.StoredModel{
		ID: rows[0].ModelID, BotID: "b1", Language: "en", ContentHash: "c", SpecHash: "s", Artifact: []byte("{}"),
	}))
	require.NoError(t, store.SaveTrainingSession(ctx, &database.TrainingSession{ID: "s1", BotID: "b1", Language: "fr", Status: "training"}))

	rows, err = collectStatus(ctx, store, eng, botsDir)
	require.NoError(t, err)
	assert.True(t, rows[0].Stored)
	assert.Equal(t, "training", rows[1].Training)

	var out bytes.Buffer
	renderStatus(&out, rows)
	assert.Contains(t, out.String(), rows[0].ModelID)
}
