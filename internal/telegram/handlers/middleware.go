// Package handlers contains the Telegram admin command handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly creates a middleware that checks if the message sender is the configured admin user.
// If not, it sends a "Not Authorized" message and stops processing.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				next(ctx, b, update)
				return
			}

			if !isAdmin(deps, update.Message.From.ID) {
				chatID := update.Message.Chat.ID
				log := deps.Logger.With("middleware", "AdminOnly")
				log.WarnContext(ctx, "Unauthorized access attempt", "user_id", update.Message.From.ID, "chat_id", chatID)
				send(ctx, b, log, chatID, msgUnauthorized)
				return
			}

			next(ctx, b, update)
		}
	}
}

func isAdmin(deps HandlerDeps, userID int64) bool {
	return deps.Config != nil && deps.Config.Telegram.AdminUserID != 0 && userID == deps.Config.Telegram.AdminUserID
}

// commandArgs splits the text of a command message into its arguments,
// dropping the command itself. The last argument keeps the remainder of
// the text once max arguments are reached.
func commandArgs(text string, max int) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	args := fields[1:]
	if max > 0 && len(args) > max {
		rest := strings.Join(args[max-1:], " ")
		args = append(args[:max-1:max-1], rest)
	}
	return args
}
