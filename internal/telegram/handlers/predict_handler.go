package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
)

const maxRankingLines = 5

// NewPredictHandler returns a handler for the /predict command.
func NewPredictHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler(deps, "predict", 3, predictHandler{deps}.reply)
}

type predictHandler struct {
	deps HandlerDeps
}

func (h predictHandler) reply(ctx context.Context, args []string) string {
	if len(args) != 3 {
		return "Usage: /predict <bot> <lang> <text>"
	}

	predictor, err := h.deps.App.GetBot(args[0])
	if err != nil {
		return errorReply(err)
	}
	prediction, err := predictor.Predict(ctx, args[2], args[1])
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Predict command failed", "bot_id", args[0], "language", args[1], "error", err)
		return errorReply(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Intent: %s (%.2f)\nLanguage: %s\nModel: %s",
		prediction.Intent.Name, prediction.Intent.Confidence, prediction.Language, prediction.ModelID)
	for i, score := range prediction.Ranking {
		if i == maxRankingLines {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s %.2f", i+1, score.Name, score.Confidence)
	}
	return sb.String()
}
