// Package bot builds and runs the NLU side of a bot: its definitions
// service, its stored models and the engine models it serves predictions from.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/nlu"
)

// DefinitionsService is the per-bot definitions service.
type DefinitionsService interface {
	Initialize(ctx context.Context) error
	Teardown() error
	LatestModelID(ctx context.Context, language string) (nlu.ModelID, error)
	TrainSet(ctx context.Context, language string) (nlu.TrainingSet, error)
}

// Predictor classifies utterances with the models of a mounted bot.
type Predictor interface {
	Predict(ctx context.Context, text, language string) (*nlu.Prediction, error)
}

// Bot is the NLU runtime of one bot. It is created unmounted by a Factory.
type Bot struct {
	def    nlu.BotDefinition
	engine engine.Engine
	defs   DefinitionsService
	models *ModelRepository
	logger *slog.Logger

	mu        sync.RWMutex
	loaded    map[string]nlu.ModelID
	unmounted bool
}

func newBot(def nlu.BotDefinition, eng engine.Engine, defs DefinitionsService, models *ModelRepository, log *slog.Logger) *Bot {
	return &Bot{
		def:    def,
		engine: eng,
		defs:   defs,
		models: models,
		logger: log,
		loaded: make(map[string]nlu.ModelID),
	}
}

// Definition returns the effective definition of the bot.
func (b *Bot) Definition() nlu.BotDefinition {
	def := b.def
	def.Languages = slices.Clone(b.def.Languages)
	return def
}

// Mount loads the stored model of each language matching the current
// definitions, then starts watching the definitions. Languages without such
// a model are reported dirty by the definitions service.
func (b *Bot) Mount(ctx context.Context) error {
	for _, lang := range b.def.Languages {
		if err := b.loadLatest(ctx, lang); err != nil {
			b.logger.WarnContext(ctx, "Failed to load stored model", "language", lang, "error", err)
		}
	}

	if err := b.defs.Initialize(ctx); err != nil {
		b.unloadAll()
		return fmt.Errorf("failed to initialize definitions of bot %q: %w", b.def.BotID, err)
	}

	b.logger.InfoContext(ctx, "Bot mounted", "languages", b.def.Languages)
	return nil
}

func (b *Bot) loadLatest(ctx context.Context, language string) error {
	id, err := b.defs.LatestModelID(ctx, language)
	if err != nil {
		return err
	}
	held, err := b.hold(language, id, func() (*nlu.Model, error) { return b.models.Get(ctx, id) })
	if err != nil {
		return err
	}
	if !held {
		b.logger.DebugContext(ctx, "No stored model for current definitions", "language", language, "model_id", id.String())
	}
	return nil
}

// Unmount stops watching the definitions and unloads the bot's models. An
// unmounted bot loads no model; Train fails with errs.ErrBotNotMounted once
// the model is stored.
func (b *Bot) Unmount(ctx context.Context) error {
	err := b.defs.Teardown()
	b.mu.Lock()
	b.unmounted = true
	b.mu.Unlock()
	b.unloadAll()
	b.logger.InfoContext(ctx, "Bot unmounted")
	return err
}

func (b *Bot) unloadAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for lang, id := range b.loaded {
		b.engine.UnloadModel(id)
		delete(b.loaded, lang)
	}
}

// hold makes id the model served for language and releases the one it
// replaces. The bot holds one engine reference per language. load is called
// only when the engine does not have id loaded; a nil model leaves language
// unchanged and hold reports false.
func (b *Bot) hold(language string, id nlu.ModelID, load func() (*nlu.Model, error)) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unmounted {
		return false, errs.BotNotMounted(b.def.BotID)
	}
	prev, ok := b.loaded[language]
	if ok && prev == id {
		return true, nil
	}
	if !b.engine.RetainModel(id) {
		model, err := load()
		if err != nil || model == nil {
			return false, err
		}
		if err := b.engine.LoadModel(model); err != nil {
			return false, err
		}
	}
	if ok {
		b.engine.UnloadModel(prev)
	}
	b.loaded[language] = id
	return true, nil
}

// Predict classifies text with the model of language. Languages the bot does
// not serve fall back to its default language.
func (b *Bot) Predict(ctx context.Context, text, language string) (*nlu.Prediction, error) {
	if !slices.Contains(b.def.Languages, language) {
		language = b.def.DefaultLanguage
	}

	b.mu.RLock()
	id, ok := b.loaded[language]
	b.mu.RUnlock()
	if !ok {
		return nil, errs.NewEngineError(fmt.Sprintf("bot %q has no model for language %q", b.def.BotID, language), nil)
	}

	return b.engine.Predict(ctx, id, text)
}

// Train trains, stores and loads the model of language for the current
// definitions, then prunes older models of that language. A stored model
// with the same ModelID is loaded instead of retrained.
func (b *Bot) Train(ctx context.Context, language string, progress engine.ProgressFunc) error {
	if !slices.Contains(b.def.Languages, language) {
		return errs.NewValidationError(fmt.Sprintf("bot %q does not serve language %q", b.def.BotID, language), nil)
	}
	if progress == nil {
		progress = func(float64) {}
	}
	log := b.logger.With("language", language)

	set, err := b.defs.TrainSet(ctx, language)
	if err != nil {
		return err
	}
	id, err := nlu.ComputeModelID(set, b.engine.Specifications())
	if err != nil {
		return err
	}

	model, err := b.models.Get(ctx, id)
	if err != nil {
		return err
	}
	if model != nil {
		log.InfoContext(ctx, "Reusing stored model", "model_id", id.String())
	} else {
		model, err = b.engine.Train(ctx, set, progress)
		if err != nil {
			return err
		}
		model.BotID = b.def.BotID
		if err := b.models.Save(ctx, model); err != nil {
			return err
		}
		log.InfoContext(ctx, "Model trained", "model_id", model.ID.String(), "duration", model.Finished.Sub(model.StartedAt))
	}

	if _, err := b.hold(language, model.ID, func() (*nlu.Model, error) { return model, nil }); err != nil {
		return err
	}
	progress(1)

	if _, err := b.models.Prune(ctx, language); err != nil {
		log.WarnContext(ctx, "Failed to prune old models", "error", err)
	}
	return nil
}

// LoadedModels returns the model served for each language.
func (b *Bot) LoadedModels() map[string]nlu.ModelID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]nlu.ModelID, len(b.loaded))
	for lang, id := range b.loaded {
		out[lang] = id
	}
	return out
}

// PruneModels prunes the stored models of every language of the bot.
func (b *Bot) PruneModels(ctx context.Context) (int64, error) {
	var total int64
	for _, lang := range b.def.Languages {
		n, err := b.models.Prune(ctx, lang)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
