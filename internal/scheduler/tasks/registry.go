package tasks

import (
	"context"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names, matching the keys of the scheduler.tasks configuration.
const (
	TrainingDispatch = "training_dispatch"
	ModelPruning     = "model_pruning"
	SQLMaintenance   = "sql_maintenance"
)

// RegisterAllTasks initializes and returns a map of all registered scheduled tasks.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		TrainingDispatch: newTrainingDispatchTask(deps),
		ModelPruning:     newModelPruningTask(deps),
		SQLMaintenance:   newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
