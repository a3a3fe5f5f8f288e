// Package tasks implements the scheduled tasks of the daemon.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/database"
	"github.com/edgard/nlud/internal/queue"
)

// Dispatcher starts pending trainings and reports the running ones.
type Dispatcher interface {
	Dispatch(ctx context.Context) int
	Running() []queue.Key
}

// ModelPruner prunes the stored models of the mounted bots.
type ModelPruner interface {
	PruneModels(ctx context.Context) (int64, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Queue  Dispatcher
	Models ModelPruner
	Config *config.Config
}
