package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its middleware.
// It encapsulates all information needed to register a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available admin commands.
// Every command but /help requires the configured admin user.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}

	adminMiddleware := []tgbot.Middleware{AdminOnly(deps)}

	admin := map[string]func(HandlerDeps) tgbot.HandlerFunc{
		"bots":    NewBotsHandler,
		"mount":   NewMountHandler,
		"unmount": NewUnmountHandler,
		"train":   NewTrainHandler,
		"cancel":  NewCancelHandler,
		"status":  NewStatusHandler,
		"predict": NewPredictHandler,
		"health":  NewHealthHandler,
	}
	for pattern, newHandler := range admin {
		handlers["/"+pattern] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     newHandler(deps),
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  adminMiddleware,
		}
	}

	return handlers
}
