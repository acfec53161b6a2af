// Package bot provides middleware for the Telegram bot.
package bot

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"besitos-bot/internal/config"
)

// WhitelistMiddleware drops updates from chats outside the configured
// whitelist. An empty whitelist allows all chats.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil {
				return nil
			}
			if chat.Type == tele.ChatPrivate || cfg.IsChatAllowed(chat.ID) {
				return next(c)
			}
			log.Debug().Int64("chat_id", chat.ID).Msg("Update from non-whitelisted chat ignored")
			return nil
		}
	}
}

// AdminMiddleware restricts a handler group to configured admin IDs.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || !cfg.IsAdmin(sender.ID) {
				return c.Reply("❌ Solo para administradores")
			}
			return next(c)
		}
	}
}
