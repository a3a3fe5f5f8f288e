// Package definitions watches the training definitions of a bot and reports
// the languages whose latest model is not held by the engine.
package definitions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/edgard/nlud/internal/events"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/nlu"
	"github.com/edgard/nlud/internal/watcher"
)

// DefinitionsRepository provides the training definitions of one bot.
type DefinitionsRepository interface {
	TrainDefinitions(ctx context.Context) (nlu.Definitions, error)
}

// ModelChecker is the part of the engine staleness is evaluated against.
type ModelChecker interface {
	HasModel(id nlu.ModelID) bool
	Specifications() nlu.Specifications
}

// Notifier reports file changes under the bot directory.
type Notifier interface {
	OnFileChanged(handler watcher.Handler) (watcher.Subscription, error)
}

// Service tracks the definitions of one bot. A language is dirty when the
// engine does not hold the model of its latest ModelID; each dirty language
// found by a scan is published as an events.DirtyModel.
type Service struct {
	bot       nlu.BotDefinition
	engine    ModelChecker
	notifier  Notifier
	repo      DefinitionsRepository
	publisher message.Publisher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sub      watcher.Subscription
	started  bool
	closed   bool
	scanning bool
	rescan   bool
	inflight sync.WaitGroup
}

// NewService creates the definitions service of bot.
func NewService(
	bot nlu.BotDefinition,
	engine ModelChecker,
	notifier Notifier,
	repo DefinitionsRepository,
	publisher message.Publisher,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		bot:       bot,
		engine:    engine,
		notifier:  notifier,
		repo:      repo,
		publisher: publisher,
		logger:    log.With("component", "definitions", "bot_id", bot.BotID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Initialize subscribes to definition file changes, then scans every language
// of the bot. It returns once the initial scan is done. Per-language
// evaluation failures are logged and do not fail Initialize.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("definitions service of bot %q is torn down", s.bot.BotID)
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("definitions service of bot %q is already initialized", s.bot.BotID)
	}

	sub, err := s.notifier.OnFileChanged(s.onFileChanged)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to watch definitions of bot %q: %w", s.bot.BotID, err)
	}
	s.sub = sub
	s.started = true
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.scan(scanCtx)
	return nil
}

// Teardown removes the file subscription and waits for running scans. No
// event is published by the service once Teardown returns. It is idempotent.
func (s *Service) Teardown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.cancel()

	var err error
	if sub != nil {
		if err = sub.Remove(); err != nil {
			s.logger.Warn("Failed to remove definitions watcher", "error", err)
		}
	}
	s.inflight.Wait()

	s.logger.Debug("Definitions service torn down")
	return err
}

// LatestModelID returns the ModelID the current definitions would train
// for language.
func (s *Service) LatestModelID(ctx context.Context, language string) (nlu.ModelID, error) {
	set, err := s.TrainSet(ctx, language)
	if err != nil {
		return nlu.ModelID{}, err
	}
	return nlu.ComputeModelID(set, s.engine.Specifications())
}

// TrainSet returns the current definitions with the language and the bot seed.
func (s *Service) TrainSet(ctx context.Context, language string) (nlu.TrainingSet, error) {
	defs, err := s.repo.TrainDefinitions(ctx)
	if err != nil {
		return nlu.TrainingSet{}, fmt.Errorf("failed to read definitions of bot %q: %w", s.bot.BotID, err)
	}
	return nlu.TrainingSet{
		Intents:      defs.Intents,
		Entities:     defs.Entities,
		LanguageCode: language,
		Seed:         s.bot.Seed,
	}, nil
}

// onFileChanged scans the bot after a change. Changes arriving while a scan
// runs are folded into a single rescan by the goroutine already scanning.
func (s *Service) onFileChanged(path string) {
	if !isPotentialChange(path) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.scanning {
		s.rescan = true
		s.mu.Unlock()
		s.logger.Debug("Definitions changed during scan", "path", path)
		return
	}
	s.scanning = true
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.logger.Debug("Definitions changed", "path", path)
	for {
		s.scan(s.ctx)

		s.mu.Lock()
		again := s.rescan && !s.closed
		s.rescan = false
		s.scanning = again
		s.mu.Unlock()
		if !again {
			return
		}
	}
}

// isPotentialChange reports whether a changed path can affect training: it
// has an intents or entities segment, which covers the directories themselves.
func isPotentialChange(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment == IntentsDir || segment == EntitiesDir {
			return true
		}
	}
	return false
}

func (s *Service) scan(ctx context.Context) {
	for _, lang := range s.bot.Languages {
		if ctx.Err() != nil {
			return
		}
		if err := s.evaluate(ctx, lang); err != nil {
			s.logger.ErrorContext(ctx, "Evaluation failure", "language", lang, "error", err)
		}
	}
}

func (s *Service) evaluate(ctx context.Context, language string) error {
	id, err := s.LatestModelID(ctx, language)
	if err != nil {
		return err
	}
	if s.engine.HasModel(id) {
		s.logger.DebugContext(ctx, "Model up to date", "language", language, "model_id", id.String())
		return nil
	}

	s.logger.InfoContext(ctx, "Model is dirty", "language", language, "model_id", id.String())
	return events.PublishDirtyModel(s.publisher, events.DirtyModel{
		BotID:    s.bot.BotID,
		Language: language,
		ModelID:  id.String(),
	})
}
