package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/nlu"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Version:               "1.0.0",
		Languages:             []string{"en", "fr"},
		Classifier:            "overlap",
		Dimensions:            300,
		Domain:                "bp",
		LanguageServerVersion: "1.0.0",
	}
}

func trainingSet(lang string) nlu.TrainingSet {
	return nlu.TrainingSet{
		Intents: []nlu.Intent{
			{
				Name:       "greet",
				Utterances: map[string][]string{"en": {"hello there", "hi"}, "fr": {"bonjour"}},
			},
			{
				Name:       "book_flight",
				Slots:      []nlu.Slot{{Name: "city", Entities: []string{"cities"}}},
				Utterances: map[string][]string{"en": {"book a flight to [Paris](city)"}},
			},
		},
		Entities: []nlu.Entity{
			{Name: "cities", Type: nlu.EntityTypeList, Occurrences: []nlu.Occurrence{{Name: "Paris", Synonyms: []string{"lutece"}}}},
		},
		LanguageCode: lang,
		Seed:         1,
	}
}

func trainAndLoad(t *testing.T, e *engine.Local, set nlu.TrainingSet) *nlu.Model {
	t.Helper()
	model, err := e.Train(context.Background(), set, nil)
	require.NoError(t, err)
	require.NoError(t, e.LoadModel(model))
	return model
}

func TestTrainLoadPredict(t *testing.T) {
	t.Parallel()

	e := engine.NewLocal(testConfig(), nil)

	var progress []float64
	model, err := e.Train(context.Background(), trainingSet("en"), func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)

	want, err := nlu.ComputeModelID(trainingSet("en"), e.Specifications())
	require.NoError(t, err)
	assert.Equal(t, want, model.ID)
	assert.False(t, e.HasModel(model.ID), "training does not load")
	require.NotEmpty(t, progress)
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)

	require.NoError(t, e.LoadModel(model))
	assert.True(t, e.HasModel(model.ID))

	tests := []struct {
		text   string
		intent string
	}{
		{"hello", "greet"},
		{"book a flight to lutece", "book_flight"},
		{"xyzzy", engine.NoneIntent},
	}
	for _, tt := range tests {
		prediction, err := e.Predict(context.Background(), model.ID, tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.intent, prediction.Intent.Name, tt.text)
		assert.Equal(t, "en", prediction.Language)
		assert.Len(t, prediction.Ranking, 2)
	}
}

func TestTrainSkipsIntentsWithoutUtterancesInLanguage(t *testing.T) {
	t.Parallel()

	e := engine.NewLocal(testConfig(), nil)
	model := trainAndLoad(t, e, trainingSet("fr"))

	prediction, err := e.Predict(context.Background(), model.ID, "bonjour")
	require.NoError(t, err)
	assert.Equal(t, "greet", prediction.Intent.Name)
	assert.Len(t, prediction.Ranking, 1)
}

func TestTrainRejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	e := engine.NewLocal(testConfig(), nil)
	_, err := e.Train(context.Background(), trainingSet("de"), nil)
	assert.ErrorIs(t, err, errs.ErrEngine)
}

func TestTrainHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.NewLocal(testConfig(), nil).Train(ctx, trainingSet("en"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnloadModel(t *testing.T) {
	t.Parallel()

	e := engine.NewLocal(testConfig(), nil)
	model := trainAndLoad(t, e, trainingSet("en"))

	assert.True(t, e.UnloadModel(model.ID))
	assert.False(t, e.UnloadModel(model.ID))
	assert.False(t, e.HasModel(model.ID))

	_, err := e.Predict(context.Background(), model.ID, "hello")
	assert.ErrorIs(t, err, errs.ErrEngine)
}

func TestSharedModelStaysLoadedUntilLastRelease(t *testing.T) {
	t.Parallel()

	e := engine.NewLocal(testConfig(), nil)
	model := trainAndLoad(t, e, trainingSet("en"))
	require.NoError(t, e.LoadModel(model))
	assert.True(t, e.RetainModel(model.ID))

	assert.True(t, e.UnloadModel(model.ID))
	assert.True(t, e.UnloadModel(model.ID))
	assert.True(t, e.HasModel(model.ID), "one holder is left")
	_, err := e.Predict(context.Background(), model.ID, "hello")
	require.NoError(t, err)

	assert.True(t, e.UnloadModel(model.ID))
	assert.False(t, e.HasModel(model.ID))
	assert.False(t, e.RetainModel(model.ID), "released models cannot be retained")
}

func TestSpecificationsDependOnClassifier(t *testing.T) {
	t.Parallel()

	overlap := engine.NewLocal(testConfig(), nil)
	cfg := testConfig()
	cfg.Classifier = "gemini"
	gemini := engine.NewLocal(cfg, nil)

	assert.NotEqual(t, overlap.Specifications(), gemini.Specifications())
	assert.Equal(t, engine.Health{IsEnabled: true, ValidLanguages: []string{"en", "fr"}}, overlap.Health())
}

type fakeClassifier struct {
	choice nlu.IntentScore
	err    error
	got    engine.ClassifyRequest
}

func (f *fakeClassifier) Classify(_ context.Context, req engine.ClassifyRequest) (nlu.IntentScore, error) {
	f.got = req
	return f.choice, f.err
}

func TestPredictWithClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fake   *fakeClassifier
		intent string
	}{
		{"classifier choice wins", &fakeClassifier{choice: nlu.IntentScore{Name: "book_flight", Confidence: 0.9}}, "book_flight"},
		{"classifier error falls back", &fakeClassifier{err: errors.New("quota")}, "greet"},
		{"unknown intent ignored", &fakeClassifier{choice: nlu.IntentScore{Name: "weather", Confidence: 0.9}}, "greet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := engine.NewLocal(testConfig(), nil, engine.WithClassifier(tt.fake))
			model := trainAndLoad(t, e, trainingSet("en"))

			prediction, err := e.Predict(context.Background(), model.ID, "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.intent, prediction.Intent.Name)
			assert.Equal(t, "hello", tt.fake.got.Text)
			assert.Len(t, tt.fake.got.Intents, 2)
		})
	}
}
