package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/app"
	"github.com/edgard/nlud/internal/bot"
	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/events"
	"github.com/edgard/nlud/internal/nlu"
	"github.com/edgard/nlud/internal/queue"
)

const waitFor = 5 * time.Second

type fixture struct {
	app     *app.Application
	store   database.Store
	bus     *events.Bus
	botsDir string
}

func newFixture(t *testing.T, autoTrain bool) *fixture {
	t.Helper()
	return newFixtureWithQueue(t, autoTrain, nil)
}

// newFixtureWithQueue uses q, or a real queue over the fixture store when q is nil.
func newFixtureWithQueue(t *testing.T, autoTrain bool, q app.TrainingQueue) *fixture {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	eng := engine.NewLocal(config.EngineConfig{
		Version:    "1.0.0",
		Languages:  []string{"en", "fr"},
		Classifier: "overlap",
		Dimensions: 300,
	}, nil)
	bus := events.NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	f := &fixture{store: store, bus: bus, botsDir: t.TempDir()}
	factory := bot.NewFactory(bot.FactoryDeps{
		Configs:    store,
		Models:     store,
		Engine:     eng,
		Publisher:  bus.Publisher(),
		BotsDir:    f.botsDir,
		KeepModels: 2,
	})

	if q == nil {
		q = queue.New(store, queue.Config{MaxConcurrent: 2, Timeout: time.Minute}, nil)
	}
	f.app = app.New(app.Deps{
		Factory:   app.FromFactory(factory),
		Queue:     q,
		Events:    bus,
		Engine:    eng,
		AutoTrain: autoTrain,
	})
	require.NoError(t, f.app.Initialize(context.Background()))
	t.Cleanup(func() { _ = f.app.Teardown(context.Background()) })
	return f
}

func (f *fixture) addBot(t *testing.T, id string, languages ...string) {
	t.Helper()
	require.NoError(t, f.store.SaveBotConfig(context.Background(), &database.BotConfig{
		ID:              id,
		DefaultLanguage: languages[0],
		Languages:       languages,
	}))

	intent := nlu.Intent{
		Name:       "greet",
		Utterances: map[string][]string{"en": {"hello"}, "fr": {"bonjour"}},
	}
	data, err := json.Marshal(intent)
	require.NoError(t, err)
	dir := filepath.Join(f.botsDir, id, "intents")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.json"), data, 0o644))
}

func (f *fixture) eventuallyStatus(t *testing.T, botID, language string, want queue.Status) {
	t.Helper()
	assert.Eventually(t, func() bool {
		s, err := f.app.GetTraining(context.Background(), botID, language)
		return err == nil && s.Status == want
	}, waitFor, 20*time.Millisecond, "%s/%s want %s", botID, language, want)
}

func TestMountBotTwiceFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en")
	ctx := context.Background()

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	assert.True(t, f.app.HasBot("b1"))

	err := f.app.MountBot(ctx, "b1")
	assert.ErrorIs(t, err, errs.ErrBotAlreadyMounted)
	assert.Equal(t, []string{"b1"}, f.app.MountedBots())
}

func TestConcurrentMountsOfSameBot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en")

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.app.MountBot(context.Background(), "b1")
		}()
	}
	wg.Wait()
	close(results)

	var mounted, rejected int
	for err := range results {
		switch {
		case err == nil:
			mounted++
		case errors.Is(err, errs.ErrBotAlreadyMounted):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, mounted)
	assert.Equal(t, attempts-1, rejected)
}

func TestMountBotWithoutConfiguration(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	err := f.app.MountBot(context.Background(), "ghost")
	assert.ErrorIs(t, err, errs.ErrConfigurationNotFound)
	assert.False(t, f.app.HasBot("ghost"))
}

func TestUnmountBot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en")
	ctx := context.Background()

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	require.NoError(t, f.app.UnmountBot(ctx, "b1"))
	assert.False(t, f.app.HasBot("b1"))

	assert.ErrorIs(t, f.app.UnmountBot(ctx, "b1"), errs.ErrBotNotMounted)

	require.NoError(t, f.app.MountBot(ctx, "b1"), "an unmounted bot can be mounted again")
}

func TestRoutingRequiresMountedBot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en")
	ctx := context.Background()

	_, err := f.app.GetBot("b1")
	assert.ErrorIs(t, err, errs.ErrBotNotMounted)
	assert.ErrorIs(t, f.app.QueueTraining(ctx, "b1", "en"), errs.ErrBotNotMounted)
	assert.ErrorIs(t, f.app.CancelTraining(ctx, "b1", "en"), errs.ErrBotNotMounted)
	_, err = f.app.GetTraining(ctx, "b1", "en")
	assert.ErrorIs(t, err, errs.ErrBotNotMounted)

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	assert.ErrorIs(t, f.app.QueueTraining(ctx, "b1", "fr"), errs.ErrValidation)
}

func TestDirtyModelsNeedTraining(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en", "fr")

	require.NoError(t, f.app.MountBot(context.Background(), "b1"))

	f.eventuallyStatus(t, "b1", "en", queue.StatusNeedsTraining)
	f.eventuallyStatus(t, "b1", "fr", queue.StatusNeedsTraining)
}

func TestQueueTrainingThenPredict(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en")
	ctx := context.Background()

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	require.NoError(t, f.app.QueueTraining(ctx, "b1", "en"))
	f.eventuallyStatus(t, "b1", "en", queue.StatusDone)

	predictor, err := f.app.GetBot("b1")
	require.NoError(t, err)
	prediction, err := predictor.Predict(ctx, "hello", "en")
	require.NoError(t, err)
	assert.Equal(t, "greet", prediction.Intent.Name)
}

func TestAutoTrainTrainsDirtyModels(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.addBot(t, "b1", "en", "fr")

	require.NoError(t, f.app.MountBot(context.Background(), "b1"))

	f.eventuallyStatus(t, "b1", "en", queue.StatusDone)
	f.eventuallyStatus(t, "b1", "fr", queue.StatusDone)
}

func TestEventsOfUnmountedBotsAreDropped(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	require.NoError(t, events.PublishDirtyModel(f.bus.Publisher(), events.DirtyModel{BotID: "ghost", Language: "en", ModelID: "a.b.1.en"}))

	assert.Never(t, func() bool {
		s, err := f.store.GetTrainingSession(context.Background(), "ghost", "en")
		return err != nil || s != nil
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestTeardownUnmountsEveryBot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addBot(t, "b1", "en")
	f.addBot(t, "b2", "fr")
	ctx := context.Background()

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	require.NoError(t, f.app.MountBot(ctx, "b2"))
	require.NoError(t, f.app.Teardown(ctx))

	assert.Empty(t, f.app.MountedBots())
}

func TestGetHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	assert.Equal(t, engine.Health{IsEnabled: true, ValidLanguages: []string{"en", "fr"}}, f.app.GetHealth())
}

// heldQueue records queued trainers without running them.
type heldQueue struct {
	mu       sync.Mutex
	trainers map[queue.Key]queue.Trainer
}

func (q *heldQueue) Initialize(context.Context) error                { return nil }
func (q *heldQueue) NeedsTraining(context.Context, queue.Key) error  { return nil }
func (q *heldQueue) CancelTraining(context.Context, queue.Key) error { return nil }
func (q *heldQueue) Teardown(context.Context) error                  { return nil }
func (q *heldQueue) GetTraining(context.Context, queue.Key) (queue.Session, error) {
	return queue.Session{}, nil
}

func (q *heldQueue) QueueTraining(_ context.Context, key queue.Key, trainer queue.Trainer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.trainers == nil {
		q.trainers = make(map[queue.Key]queue.Trainer)
	}
	q.trainers[key] = trainer
	return nil
}

func (q *heldQueue) trainer(key queue.Key) queue.Trainer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.trainers[key]
}

func TestQueuedTrainingUsesRemountedBot(t *testing.T) {
	t.Parallel()
	q := &heldQueue{}
	f := newFixtureWithQueue(t, false, q)
	f.addBot(t, "b1", "en")
	ctx := context.Background()

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	require.NoError(t, f.app.QueueTraining(ctx, "b1", "en"))
	trainer := q.trainer(queue.Key{BotID: "b1", Language: "en"})
	require.NotNil(t, trainer)

	require.NoError(t, f.app.UnmountBot(ctx, "b1"))
	assert.ErrorIs(t, trainer.Train(ctx, "en", nil), errs.ErrBotNotMounted)

	require.NoError(t, f.app.MountBot(ctx, "b1"))
	require.NoError(t, trainer.Train(ctx, "en", nil))

	predictor, err := f.app.GetBot("b1")
	require.NoError(t, err)
	prediction, err := predictor.Predict(ctx, "hello", "en")
	require.NoError(t, err)
	assert.Equal(t, "greet", prediction.Intent.Name)
}
