package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/edgard/nlud/internal/errs"
)

// NewBotsHandler returns a handler for the /bots command.
func NewBotsHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "bots", 0, botsHandler{deps}.reply)
}

// NewMountHandler returns a handler for the /mount command.
func NewMountHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "mount", 1, mountHandler{deps}.reply)
}

// NewUnmountHandler returns a handler for the /unmount command.
func NewUnmountHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "unmount", 1, unmountHandler{deps}.reply)
}

type botsHandler struct {
	deps HandlerDeps
}

func (h botsHandler) reply(_ context.Context, _ []string) string {
	ids := h.deps.App.MountedBots()
	if len(ids) == 0 {
		return msgNoBots
	}
	return "Mounted bots:\n" + strings.Join(ids, "\n")
}

type mountHandler struct {
	deps HandlerDeps
}

func (h mountHandler) reply(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /mount <bot>"
	}
	if err := h.deps.App.MountBot(ctx, args[0]); err != nil {
		h.deps.Logger.WarnContext(ctx, "Mount command failed", "bot_id", args[0], "error", err)
		return errorReply(err)
	}
	return fmt.Sprintf("✅ Bot %s mounted.", args[0])
}

type unmountHandler struct {
	deps HandlerDeps
}

func (h unmountHandler) reply(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /unmount <bot>"
	}
	if err := h.deps.App.UnmountBot(ctx, args[0]); err != nil {
		h.deps.Logger.WarnContext(ctx, "Unmount command failed", "bot_id", args[0], "error", err)
		return errorReply(err)
	}
	return fmt.Sprintf("✅ Bot %s unmounted.", args[0])
}

func errorReply(err error) string {
	return fmt.Sprintf("❌ %s: %v", errs.Code(err), err)
}
