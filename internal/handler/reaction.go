package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"besitos-bot/internal/config"
	"besitos-bot/internal/service"
)

// ReactionHandler credits message authors when someone replies with a
// reaction token (e.g. 💋). The service enforces dedup per message and the
// per-day ceiling.
type ReactionHandler struct {
	cfg       *config.Config
	reactions *service.ReactionService
}

// NewReactionHandler creates a new ReactionHandler.
func NewReactionHandler(cfg *config.Config, reactions *service.ReactionService) *ReactionHandler {
	return &ReactionHandler{cfg: cfg, reactions: reactions}
}

// HandleText inspects plain text messages for reaction tokens sent as a
// reply. Non-reaction messages are ignored.
func (h *ReactionHandler) HandleText(c tele.Context) error {
	msg := c.Message()
	sender := c.Sender()
	if msg == nil || sender == nil {
		return nil
	}
	if msg.ReplyTo == nil || msg.ReplyTo.Sender == nil {
		return nil
	}
	if !h.cfg.IsReactionToken(msg.Text) {
		return nil
	}
	if msg.ReplyTo.Sender.IsBot {
		return nil
	}

	ctx := context.Background()
	result, err := h.reactions.React(ctx, sender.ID, msg.ReplyTo.Sender.ID, int64(msg.ReplyTo.ID))
	if err != nil {
		if errors.Is(err, service.ErrSelfReaction) {
			return nil
		}
		return nil
	}

	switch {
	case result.Duplicate:
		// Already counted: stay silent, the first reaction was acknowledged.
		return nil
	case result.Limited:
		return c.Reply("⏰ Ya repartiste todos tus besitos de hoy")
	default:
		ack := fmt.Sprintf("💋 +%d besitos para @%s", result.Entry.Amount, msg.ReplyTo.Sender.Username)
		return c.Reply(ack + formatGranted(result.Granted))
	}
}
