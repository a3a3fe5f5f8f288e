package tasks

import (
	"context"
)

// newTrainingDispatchTask starts queued trainings left waiting for a free slot.
func newTrainingDispatchTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", TrainingDispatch)

	return func(ctx context.Context) error {
		if started := deps.Queue.Dispatch(ctx); started > 0 {
			log.InfoContext(ctx, "Dispatched queued trainings", "started", started)
		}
		return nil
	}
}
