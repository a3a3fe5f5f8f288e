// Package app orchestrates the mounted bots of the daemon: it mounts and
// unmounts them, routes training requests to the queue and relays dirty
// model events from the bots' definitions services to the queue.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/nlud/internal/bot"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/events"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/nlu"
	"github.com/edgard/nlud/internal/queue"
)

// Bot is a bot built by a BotFactory.
type Bot interface {
	bot.Predictor
	queue.Trainer
	Definition() nlu.BotDefinition
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error
	PruneModels(ctx context.Context) (int64, error)
}

// BotFactory builds unmounted bots.
type BotFactory interface {
	MakeBot(ctx context.Context, botID string) (Bot, error)
}

// FactoryFunc adapts a function to BotFactory.
type FactoryFunc func(ctx context.Context, botID string) (Bot, error)

func (f FactoryFunc) MakeBot(ctx context.Context, botID string) (Bot, error) {
	return f(ctx, botID)
}

// FromFactory adapts a bot.Factory to BotFactory.
func FromFactory(f *bot.Factory) BotFactory {
	return FactoryFunc(func(ctx context.Context, botID string) (Bot, error) {
		b, err := f.MakeBot(ctx, botID)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

// TrainingQueue schedules trainings per bot language.
type TrainingQueue interface {
	Initialize(ctx context.Context) error
	NeedsTraining(ctx context.Context, key queue.Key) error
	QueueTraining(ctx context.Context, key queue.Key, trainer queue.Trainer) error
	CancelTraining(ctx context.Context, key queue.Key) error
	GetTraining(ctx context.Context, key queue.Key) (queue.Session, error)
	Teardown(ctx context.Context) error
}

// Subscriber delivers the messages of a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Engine is the part of the engine the application reports on.
type Engine interface {
	HasModel(id nlu.ModelID) bool
	Health() engine.Health
}

// Deps holds the collaborators of an Application.
type Deps struct {
	Factory BotFactory
	Queue   TrainingQueue
	Events  Subscriber
	Engine  Engine
	// AutoTrain queues a training for every dirty model instead of only
	// marking it as needing training.
	AutoTrain bool
	Logger    *slog.Logger
}

// Application owns the registry of mounted bots.
type Application struct {
	deps   Deps
	logger *slog.Logger

	locks *keyedMutex

	botsMu sync.RWMutex
	bots   map[string]Bot

	relayCancel context.CancelFunc
	relayDone   chan struct{}
}

// New creates an Application. Call Initialize before mounting bots.
func New(deps Deps) *Application {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &Application{
		deps:   deps,
		logger: deps.Logger.With("component", "application"),
		locks:  newKeyedMutex(),
		bots:   make(map[string]Bot),
	}
}

// Initialize initializes the training queue and starts relaying dirty model
// events to it.
func (a *Application) Initialize(ctx context.Context) error {
	if a.relayDone != nil {
		return fmt.Errorf("application is already initialized")
	}

	if err := a.deps.Queue.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize training queue: %w", err)
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	messages, err := a.deps.Events.Subscribe(relayCtx, events.TopicDirtyModel)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to dirty models: %w", err)
	}

	a.relayCancel = cancel
	a.relayDone = make(chan struct{})
	go a.relay(relayCtx, messages)

	a.logger.InfoContext(ctx, "Application initialized", "auto_train", a.deps.AutoTrain)
	return nil
}

// Teardown tears down the training queue, unmounts every bot, then stops the
// relay. Unmount failures are joined into the returned error.
func (a *Application) Teardown(ctx context.Context) error {
	var queueErr error
	if err := a.deps.Queue.Teardown(ctx); err != nil {
		queueErr = fmt.Errorf("failed to tear down training queue: %w", err)
		a.logger.ErrorContext(ctx, "Training queue teardown failed", "error", err)
	}

	var g errgroup.Group
	for _, id := range a.MountedBots() {
		g.Go(func() error {
			err := a.UnmountBot(ctx, id)
			if err != nil {
				a.logger.ErrorContext(ctx, "Failed to unmount bot", "bot_id", id, "error", err)
			}
			return err
		})
	}
	unmountErr := g.Wait()

	if a.relayCancel != nil {
		a.relayCancel()
		<-a.relayDone
	}

	a.logger.InfoContext(ctx, "Application torn down")
	if queueErr != nil {
		return queueErr
	}
	return unmountErr
}

// MountBot builds and mounts botID. Mounting a mounted bot fails with
// errs.ErrBotAlreadyMounted; a bot without configuration fails with
// errs.ErrConfigurationNotFound.
func (a *Application) MountBot(ctx context.Context, botID string) error {
	unlock := a.locks.Lock(botID)
	defer unlock()

	if a.HasBot(botID) {
		return errs.BotAlreadyMounted(botID)
	}

	b, err := a.deps.Factory.MakeBot(ctx, botID)
	if err != nil {
		return err
	}
	if err := b.Mount(ctx); err != nil {
		return err
	}

	a.botsMu.Lock()
	a.bots[botID] = b
	a.botsMu.Unlock()

	a.logger.InfoContext(ctx, "Bot mounted", "bot_id", botID, "languages", b.Definition().Languages)
	return nil
}

// UnmountBot unmounts botID. It fails with errs.ErrBotNotMounted if the bot
// is not mounted. Trainings of the bot are left to the queue.
func (a *Application) UnmountBot(ctx context.Context, botID string) error {
	unlock := a.locks.Lock(botID)
	defer unlock()

	b, ok := a.bot(botID)
	if !ok {
		return errs.BotNotMounted(botID)
	}

	err := b.Unmount(ctx)

	a.botsMu.Lock()
	delete(a.bots, botID)
	a.botsMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to unmount bot %q: %w", botID, err)
	}
	a.logger.InfoContext(ctx, "Bot unmounted", "bot_id", botID)
	return nil
}

// HasBot reports whether botID is mounted.
func (a *Application) HasBot(botID string) bool {
	_, ok := a.bot(botID)
	return ok
}

// GetBot returns the predictor of a mounted bot.
func (a *Application) GetBot(botID string) (bot.Predictor, error) {
	b, ok := a.bot(botID)
	if !ok {
		return nil, errs.BotNotMounted(botID)
	}
	return b, nil
}

// MountedBots returns the ids of the mounted bots, sorted.
func (a *Application) MountedBots() []string {
	a.botsMu.RLock()
	defer a.botsMu.RUnlock()

	ids := make([]string, 0, len(a.bots))
	for id := range a.bots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (a *Application) bot(botID string) (Bot, bool) {
	a.botsMu.RLock()
	defer a.botsMu.RUnlock()
	b, ok := a.bots[botID]
	return b, ok
}

func (a *Application) servedBot(botID, language string) (Bot, error) {
	b, ok := a.bot(botID)
	if !ok {
		return nil, errs.BotNotMounted(botID)
	}
	if !slices.Contains(b.Definition().Languages, language) {
		return nil, errs.NewValidationError(fmt.Sprintf("bot %q does not serve language %q", botID, language), nil)
	}
	return b, nil
}

// QueueTraining queues the training of a language of a mounted bot.
func (a *Application) QueueTraining(ctx context.Context, botID, language string) error {
	if _, err := a.servedBot(botID, language); err != nil {
		return err
	}
	return a.deps.Queue.QueueTraining(ctx, queue.Key{BotID: botID, Language: language}, a.trainerFor(botID))
}

// CancelTraining cancels the training of a language of a mounted bot.
func (a *Application) CancelTraining(ctx context.Context, botID, language string) error {
	if _, err := a.servedBot(botID, language); err != nil {
		return err
	}
	return a.deps.Queue.CancelTraining(ctx, queue.Key{BotID: botID, Language: language})
}

// GetTraining returns the training session of a language of a mounted bot.
func (a *Application) GetTraining(ctx context.Context, botID, language string) (queue.Session, error) {
	if _, err := a.servedBot(botID, language); err != nil {
		return queue.Session{}, err
	}
	return a.deps.Queue.GetTraining(ctx, queue.Key{BotID: botID, Language: language})
}

// GetHealth returns the health of the engine.
func (a *Application) GetHealth() engine.Health {
	return a.deps.Engine.Health()
}

// PruneModels prunes the stored models of every mounted bot.
func (a *Application) PruneModels(ctx context.Context) (int64, error) {
	var total int64
	for _, id := range a.MountedBots() {
		b, ok := a.bot(id)
		if !ok {
			continue
		}
		n, err := b.PruneModels(ctx)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
