package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
)

// NewTrainHandler returns a handler for the /train command.
func NewTrainHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "train", 2, trainingHandler{deps}.train)
}

// NewCancelHandler returns a handler for the /cancel command.
func NewCancelHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "cancel", 2, trainingHandler{deps}.cancel)
}

// NewStatusHandler returns a handler for the /status command.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "status", 2, trainingHandler{deps}.status)
}

type trainingHandler struct {
	deps HandlerDeps
}

func (h trainingHandler) train(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: /train <bot> <lang>"
	}
	if err := h.deps.App.QueueTraining(ctx, args[0], args[1]); err != nil {
		h.deps.Logger.WarnContext(ctx, "Train command failed", "bot_id", args[0], "language", args[1], "error", err)
		return errorReply(err)
	}
	return fmt.Sprintf("⏳ Training of %s/%s queued.", args[0], args[1])
}

func (h trainingHandler) cancel(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: /cancel <bot> <lang>"
	}
	session, err := h.deps.App.GetTraining(ctx, args[0], args[1])
	if err != nil {
		return errorReply(err)
	}
	if !session.Status.Active() {
		return fmt.Sprintf("Nothing to cancel for %s/%s (%s).", args[0], args[1], session.Status)
	}
	if err := h.deps.App.CancelTraining(ctx, args[0], args[1]); err != nil {
		h.deps.Logger.WarnContext(ctx, "Cancel command failed", "bot_id", args[0], "language", args[1], "error", err)
		return errorReply(err)
	}
	return fmt.Sprintf("🛑 Training of %s/%s canceled.", args[0], args[1])
}

func (h trainingHandler) status(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: /status <bot> <lang>"
	}
	session, err := h.deps.App.GetTraining(ctx, args[0], args[1])
	if err != nil {
		return errorReply(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s: %s (%.0f%%)", args[0], args[1], session.Status, session.Progress*100)
	if session.Error != "" {
		fmt.Fprintf(&sb, "\nError: %s", session.Error)
	}
	return sb.String()
}
