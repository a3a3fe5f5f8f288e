package definitions_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/definitions"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/nlu"
)

func TestRepositoryMissingDirectoriesAreEmpty(t *testing.T) {
	t.Parallel()

	defs, err := definitions.NewRepository(filepath.Join(t.TempDir(), "nope"), nil).TrainDefinitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs.Intents)
	assert.Empty(t, defs.Entities)
}

func TestRepositoryReadsDefinitions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "intents", "b.json"), nlu.Intent{Utterances: map[string][]string{"en": {"b"}}})
	writeJSON(t, filepath.Join(dir, "intents", "a.json"), nlu.Intent{Name: "alpha"})
	writeJSON(t, filepath.Join(dir, "entities", "colors.json"), nlu.Entity{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intents", "notes.txt"), []byte("ignored"), 0o644))

	defs, err := definitions.NewRepository(dir, nil).TrainDefinitions(context.Background())
	require.NoError(t, err)

	require.Len(t, defs.Intents, 2)
	assert.Equal(t, "alpha", defs.Intents[0].Name)
	assert.Equal(t, "b", defs.Intents[1].Name, "name defaults to the file name")
	require.Len(t, defs.Entities, 1)
	assert.Equal(t, "colors", defs.Entities[0].Name)
	assert.Equal(t, nlu.EntityTypeList, defs.Entities[0].Type)
}

func TestRepositoryRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "entities"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entities", "bad.json"), []byte("{"), 0o644))

	_, err := definitions.NewRepository(dir, nil).TrainDefinitions(context.Background())
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRepositoryReadsYAMLDefinitions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "intents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "entities"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intents", "greet.yaml"), []byte(`contexts: [global]
utterances:
  en:
    - hello
    - hi there
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entities", "cities.yml"), []byte(`occurrences:
  - name: Paris
    synonyms: [paname]
`), 0o644))

	defs, err := definitions.NewRepository(dir, nil).TrainDefinitions(context.Background())
	require.NoError(t, err)

	require.Len(t, defs.Intents, 1)
	assert.Equal(t, "greet", defs.Intents[0].Name)
	assert.Equal(t, []string{"hello", "hi there"}, defs.Intents[0].Utterances["en"])
	require.Len(t, defs.Entities, 1)
	assert.Equal(t, "cities", defs.Entities[0].Name)
	assert.Equal(t, []string{"paname"}, defs.Entities[0].Occurrences[0].Synonyms)
}

func TestRepositoryRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "intents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intents", "bad.yaml"), []byte("utterances: [unclosed"), 0o644))

	_, err := definitions.NewRepository(dir, nil).TrainDefinitions(context.Background())
	assert.ErrorIs(t, err, errs.ErrValidation)
}
