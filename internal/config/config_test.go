package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, config.DefaultEngineLanguages, cfg.Engine.Languages)
	assert.Equal(t, "overlap", cfg.Engine.Classifier)
	assert.Equal(t, config.DefaultTrainingTimeout, cfg.Training.Timeout)
	assert.Equal(t, config.DefaultModelsKeepPerLanguage, cfg.Models.KeepPerLanguage)
	assert.True(t, cfg.Scheduler.Tasks["training_dispatch"].Enabled)
}

func TestLoadBotsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  languages: [en, fr, de]
training:
  auto_train: true
  timeout: 90s
bots:
  - id: welcome-bot
    default_language: en
    languages: [en, fr]
    seed: 7
  - id: support-bot
    default_language: fr
    languages: [fr]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "fr", "de"}, cfg.Engine.Languages)
	assert.True(t, cfg.Training.AutoTrain)
	assert.Equal(t, 90*time.Second, cfg.Training.Timeout)
	require.Len(t, cfg.Bots, 2)
	require.NotNil(t, cfg.Bots[0].Seed)
	assert.Equal(t, 7, *cfg.Bots[0].Seed)
	assert.Nil(t, cfg.Bots[1].Seed)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NLUD_LOG_LEVEL", "warn")

	cfg, err := config.Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad log level", "log:\n  level: loud\n"},
		{"gemini without key", "engine:\n  classifier: gemini\n"},
		{"unknown classifier", "engine:\n  classifier: magic\n"},
		{"telegram without admin", "telegram:\n  token: abc\n"},
		{"bot without languages", "bots:\n  - id: b1\n    default_language: en\n"},
		{"default language not configured", "bots:\n  - id: b1\n    default_language: de\n    languages: [en]\n"},
		{"duplicate bot", "bots:\n  - id: b1\n    default_language: en\n    languages: [en]\n  - id: b1\n    default_language: en\n    languages: [en]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}
