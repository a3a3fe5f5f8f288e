package app

import (
	"context"
	"errors"

	"github.com/edgard/nlud/internal/engine"
	"github.com/edgard/nlud/internal/errs"
)

// mountedTrainer trains with the bot registered under botID when the
// training runs, not the one registered when it was queued.
type mountedTrainer struct {
	app   *Application
	botID string
}

func (a *Application) trainerFor(botID string) mountedTrainer {
	return mountedTrainer{app: a, botID: botID}
}

// Train retries on the remounted bot when the bot it started with is
// unmounted before the model is loaded. The retry reuses the stored model.
func (t mountedTrainer) Train(ctx context.Context, language string, progress engine.ProgressFunc) error {
	for {
		b, ok := t.app.bot(t.botID)
		if !ok {
			return errs.BotNotMounted(t.botID)
		}

		err := b.Train(ctx, language, progress)
		if !errors.Is(err, errs.ErrBotNotMounted) {
			return err
		}
		if current, ok := t.app.bot(t.botID); !ok || current == b {
			return err
		}
		t.app.logger.InfoContext(ctx, "Bot remounted during training, retrying", "bot_id", t.botID, "language", language)
	}
}
