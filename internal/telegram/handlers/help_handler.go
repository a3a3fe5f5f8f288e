package handlers

import (
	"context"

	"github.com/go-telegram/bot"
)

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "help", 0, func(context.Context, []string) string { return msgHelp })
}
