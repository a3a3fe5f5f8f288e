package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
)

// NewHealthHandler returns a handler for the /health command.
func NewHealthHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "health", 0, healthHandler{deps}.reply)
}

type healthHandler struct {
	deps HandlerDeps
}

func (h healthHandler) reply(_ context.Context, _ []string) string {
	health := h.deps.App.GetHealth()
	state := "disabled"
	if health.IsEnabled {
		state = "enabled"
	}
	return fmt.Sprintf("Engine: %s\nLanguages: %s", state, strings.Join(health.ValidLanguages, ", "))
}
