package bot

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/definitions"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/errs"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/nlu"
	"github.com/edgard/nlud/internal/watcher"
)

const maxDerivedSeed = 10000

// ConfigStore provides bot configurations. It returns nil, nil for an
// unknown bot.
type ConfigStore interface {
	GetBotConfig(ctx context.Context, botID string) (*database.BotConfig, error)
}

// SeedFunc picks the training seed of a bot from its configuration.
type SeedFunc func(cfg *database.BotConfig) int

// PickSeed returns the configured seed, or one derived from the bot id so
// that every bot gets a stable seed.
func PickSeed(cfg *database.BotConfig) int {
	if cfg.NLUSeed.Valid {
		return int(cfg.NLUSeed.Int64)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(cfg.ID))
	return int(h.Sum32() % maxDerivedSeed)
}

// FactoryDeps holds the dependencies shared by every bot built by a Factory.
type FactoryDeps struct {
	Configs   ConfigStore
	Models    ModelStore
	Engine    engine.Engine
	Publisher message.Publisher
	// BotsDir holds one definitions directory per bot id.
	BotsDir string
	// KeepModels is the number of stored models kept per bot language.
	KeepModels int
	PickSeed   SeedFunc
	Logger     *slog.Logger
}

// Factory builds unmounted bots from their stored configuration.
type Factory struct {
	deps   FactoryDeps
	logger *slog.Logger
}

// NewFactory creates a Factory. A nil PickSeed defaults to PickSeed.
func NewFactory(deps FactoryDeps) *Factory {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if deps.PickSeed == nil {
		deps.PickSeed = PickSeed
	}
	return &Factory{deps: deps, logger: deps.Logger.With("component", "bot_factory")}
}

// MakeBot builds the bot botID. The bot serves the configured languages the
// engine supports; the others are reported in a warning.
func (f *Factory) MakeBot(ctx context.Context, botID string) (*Bot, error) {
	if err := validateBotID(botID); err != nil {
		return nil, err
	}

	cfg, err := f.deps.Configs.GetBotConfig(ctx, botID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errs.ConfigurationNotFound(botID)
	}

	supported := f.deps.Engine.Languages()
	var languages, notSupported []string
	for _, lang := range cfg.Languages {
		if slices.Contains(supported, lang) {
			languages = append(languages, lang)
		} else {
			notSupported = append(notSupported, lang)
		}
	}
	if len(notSupported) > 0 {
		f.logger.WarnContext(ctx, "Bot languages not supported by the engine",
			"bot_id", botID, "not_supported", notSupported, "supported", supported)
	}

	def := nlu.BotDefinition{
		BotID:           botID,
		DefaultLanguage: cfg.DefaultLanguage,
		Languages:       languages,
		Seed:            f.deps.PickSeed(cfg),
	}

	log := f.deps.Logger.With("component", "bot", "bot_id", botID)
	botDir := filepath.Join(f.deps.BotsDir, botID)

	repo := definitions.NewRepository(botDir, f.deps.Logger)
	notifier := watcher.New(botDir, f.deps.Logger)
	service := definitions.NewService(def, f.deps.Engine, notifier, repo, f.deps.Publisher, f.deps.Logger)
	models := NewModelRepository(botID, f.deps.Models, f.deps.KeepModels, log)

	f.logger.DebugContext(ctx, "Bot created", "bot_id", botID, "languages", languages, "seed", def.Seed)
	return newBot(def, f.deps.Engine, service, models, log), nil
}

func validateBotID(botID string) error {
	if botID == "" || botID == "." || botID == ".." || strings.ContainsAny(botID, `/\`) {
		return errs.NewValidationError(fmt.Sprintf("invalid bot id %q", botID), nil)
	}
	return nil
}
