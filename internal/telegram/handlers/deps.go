package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/nlud/internal/bot"
	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/queue"
)

// Admin is the part of the application the admin commands drive.
type Admin interface {
	MountBot(ctx context.Context, botID string) error
	UnmountBot(ctx context.Context, botID string) error
	MountedBots() []string
	GetBot(botID string) (bot.Predictor, error)
	QueueTraining(ctx context.Context, botID, language string) error
	CancelTraining(ctx context.Context, botID, language string) error
	GetTraining(ctx context.Context, botID, language string) (queue.Session, error)
	GetHealth() engine.Health
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	App    Admin
}
