package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const modelPruningTimeout = 2 * time.Minute

// newModelPruningTask deletes stored models beyond the retention of each
// mounted bot language.
func newModelPruningTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", ModelPruning)

	return func(ctx context.Context) error {
		timeoutCtx, cancel := context.WithTimeout(ctx, modelPruningTimeout)
		defer cancel()

		startTime := time.Now()
		deleted, err := deps.Models.PruneModels(timeoutCtx)
		duration := time.Since(startTime)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "Model pruning timed out or was cancelled", "error", err, "deleted", deleted, "duration", duration)
			return fmt.Errorf("model pruning timed out or was cancelled: %w", err)
		}
		if err != nil {
			log.ErrorContext(ctx, "Model pruning failed", "error", err, "deleted", deleted, "duration", duration)
			return fmt.Errorf("model pruning failed: %w", err)
		}

		if deleted > 0 {
			log.InfoContext(ctx, "Pruned stored models", "deleted", deleted, "duration", duration)
		}
		return nil
	}
}
