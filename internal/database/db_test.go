package database_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/database"
)

func TestNewDBCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "nlud.db")
	db, err := database.NewDB(path)
	require.NoError(t, err)
	defer database.CloseDB(db)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	// Reopening an up-to-date schema is a no-op.
	again, err := database.NewDB(path)
	require.NoError(t, err)
	database.CloseDB(again)
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"nlud.db":                     "nlud.db",
		"file:data/nlud.db":           "data/nlud.db",
		"file:nlud.db?_pragma=foo(1)": "nlud.db",
		"data/my%20bots.db":           "data/my bots.db",
	}
	for in, want := range tests {
		assert.Equal(t, want, database.ExtractDBNameFromPath(in), in)
	}
}
