package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/edgard/nlud/internal/app"
	"github.com/edgard/nlud/internal/bot"
	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/events"
	"github.com/edgard/nlud/internal/gemini"
	"github.com/edgard/nlud/internal/logger"
	"github.com/edgard/nlud/internal/queue"
	"github.com/edgard/nlud/internal/scheduler"
	"github.com/edgard/nlud/internal/scheduler/tasks"
	"github.com/edgard/nlud/internal/telegram"
	"github.com/edgard/nlud/internal/telegram/handlers"
)

const teardownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
}

// serve wires config, logger, storage, engine, queue, application, scheduler
// and the optional admin bot, then blocks until ctx is canceled.
func serve(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("Failed to load configuration", "path", path, "error", err)
		return err
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize engine", "error", err)
		return err
	}

	bus := events.NewBus(log)
	defer bus.Close()

	trainingQueue := queue.New(store, queue.Config{
		MaxConcurrent: cfg.Training.MaxConcurrent,
		Timeout:       cfg.Training.Timeout,
	}, log)

	factory := bot.NewFactory(bot.FactoryDeps{
		Configs:    store,
		Models:     store,
		Engine:     eng,
		Publisher:  bus.Publisher(),
		BotsDir:    cfg.Storage.BotsDir,
		KeepModels: cfg.Models.KeepPerLanguage,
		PickSeed:   bot.PickSeed,
		Logger:     log,
	})

	application := app.New(app.Deps{
		Factory:   app.FromFactory(factory),
		Queue:     trainingQueue,
		Events:    bus,
		Engine:    eng,
		AutoTrain: cfg.Training.AutoTrain,
		Logger:    log,
	})
	if err := application.Initialize(ctx); err != nil {
		log.Error("Failed to initialize application", "error", err)
		return err
	}
	teardown := func() {
		tCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := application.Teardown(tCtx); err != nil {
			log.Error("Failed to tear down application", "error", err)
		}
	}

	if err := seedBotConfigs(ctx, store, cfg.Bots); err != nil {
		log.Error("Failed to seed bot configurations", "error", err)
		teardown()
		return err
	}
	for _, seed := range cfg.Bots {
		if err := application.MountBot(ctx, seed.ID); err != nil {
			log.Error("Failed to mount bot", "bot_id", seed.ID, "error", err)
		}
	}

	sched, err := scheduler.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Queue:  trainingQueue,
		Models: application,
		Config: cfg,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		teardown()
		return err
	}

	var listener app.Listener
	if cfg.Telegram.Token != "" {
		tg, err := newAdminBot(cfg, log, application)
		if err != nil {
			log.Error("Failed to create Telegram admin bot", "error", err)
			teardown()
			return err
		}
		listener = tg
	} else {
		log.Info("Telegram token not set, admin bot disabled")
	}

	return app.NewRunner(log, application, sched, listener).Run(ctx)
}

// newEngine builds the local engine, refined by Gemini when configured.
func newEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*engine.Local, error) {
	var opts []engine.Option
	if cfg.Engine.Classifier == "gemini" {
		gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		opts = append(opts, engine.WithClassifier(gemClient))
	}
	return engine.NewLocal(cfg.Engine, log, opts...), nil
}

func newAdminBot(cfg *config.Config, log *slog.Logger, admin handlers.Admin) (*tgbot.Bot, error) {
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		return nil, err
	}

	hDeps := handlers.HandlerDeps{Logger: log, Config: cfg, App: admin}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		return nil, err
	}
	return tg, nil
}

// BotConfigSaver persists bot configurations.
type BotConfigSaver interface {
	SaveBotConfig(ctx context.Context, cfg *database.BotConfig) error
}

// seedBotConfigs upserts the bots declared in the configuration file.
func seedBotConfigs(ctx context.Context, store BotConfigSaver, seeds []config.BotSeed) error {
	for _, seed := range seeds {
		botCfg := &database.BotConfig{
			ID:              seed.ID,
			Name:            seed.Name,
			DefaultLanguage: seed.DefaultLanguage,
			Languages:       database.StringList(seed.Languages),
		}
		if seed.Seed != nil {
			botCfg.NLUSeed = sql.NullInt64{Int64: int64(*seed.Seed), Valid: true}
		}
		if err := store.SaveBotConfig(ctx, botCfg); err != nil {
			return fmt.Errorf("failed to seed bot %q: %w", seed.ID, err)
		}
	}
	return nil
}
