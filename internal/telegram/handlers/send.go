package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// replyFunc computes the answer to the arguments of a command.
type replyFunc func(ctx context.Context, args []string) string

// commandHandler adapts a replyFunc to a bot.HandlerFunc.
func commandHandler(deps HandlerDeps, name string, maxArgs int, reply replyFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", name)

		if update.Message == nil || update.Message.From == nil {
			log.WarnContext(ctx, "Handler received update with nil message or sender", "update_id", update.ID)
			return
		}

		chatID := update.Message.Chat.ID
		log.InfoContext(ctx, "Handling command", "chat_id", chatID, "user_id", update.Message.From.ID)

		send(ctx, b, log, chatID, reply(ctx, commandArgs(update.Message.Text, maxArgs)))
	}
}

func send(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
		return
	}
	log.DebugContext(ctx, "Successfully sent message", "chat_id", chatID)
}
