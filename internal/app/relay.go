package app

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/edgard/nlud/internal/events"
	"github.com/edgard/nlud/internal/nlu"
	"github.com/edgard/nlud/internal/queue"
)

// relay hands every dirty model event to the training queue until ctx is
// done or the subscription closes. Events are acked once handled, including
// events that are dropped.
func (a *Application) relay(ctx context.Context, messages <-chan *message.Message) {
	defer close(a.relayDone)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			a.handleDirtyModel(ctx, msg)
			msg.Ack()
		}
	}
}

func (a *Application) handleDirtyModel(ctx context.Context, msg *message.Message) {
	ev, err := events.DecodeDirtyModel(msg)
	if err != nil {
		a.logger.WarnContext(ctx, "Dropping malformed dirty model event", "error", err)
		return
	}
	log := a.logger.With("bot_id", ev.BotID, "language", ev.Language, "model_id", ev.ModelID)

	// waits for a mount of the bot in progress to register it
	unlock := a.locks.Lock(ev.BotID)
	defer unlock()

	if !a.HasBot(ev.BotID) {
		log.DebugContext(ctx, "Dropping dirty model event of unmounted bot")
		return
	}
	if id, err := nlu.ParseModelID(ev.ModelID); err == nil && a.deps.Engine.HasModel(id) {
		log.DebugContext(ctx, "Dropping dirty model event, model already loaded")
		return
	}

	key := queue.Key{BotID: ev.BotID, Language: ev.Language}
	if a.deps.AutoTrain {
		err = a.deps.Queue.QueueTraining(ctx, key, a.trainerFor(ev.BotID))
	} else {
		err = a.deps.Queue.NeedsTraining(ctx, key)
	}
	if err != nil {
		log.WarnContext(ctx, "Failed to record dirty model", "error", err)
	}
}
