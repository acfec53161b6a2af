package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"besitos-bot/internal/model"
	"besitos-bot/internal/service"
)

// AdminHandler handles admin-only commands. Admin authorization is enforced
// by the bot's middleware before these run.
type AdminHandler struct {
	wallet  *service.WalletService
	rewards *service.RewardService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(wallet *service.WalletService, rewards *service.RewardService) *AdminHandler {
	return &AdminHandler{wallet: wallet, rewards: rewards}
}

// HandleGrant handles the /dar command.
// Format: /dar <user_id> <cantidad> [nota], or reply to a user with /dar <cantidad> [nota]
func (h *AdminHandler) HandleGrant(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, note, err := parseAdminArgs(c)
	if err != nil {
		return c.Reply(err.Error())
	}
	if note == "" {
		note = "Regalo de administración"
	}

	entry, err := h.wallet.Credit(ctx, targetID, amount, model.KindAdminGrant, note,
		map[string]any{"admin_id": sender.ID})
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			return c.Reply("❌ La cantidad debe ser positiva")
		}
		return c.Reply("❌ No pude completar la operación")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Str("operation", "admin_grant").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ +%d besitos para %d", entry.Amount, targetID))
}

// HandleDebit handles the /quitar command.
// Format: /quitar <user_id> <cantidad> [nota], or reply with /quitar <cantidad> [nota]
func (h *AdminHandler) HandleDebit(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, note, err := parseAdminArgs(c)
	if err != nil {
		return c.Reply(err.Error())
	}
	if note == "" {
		note = "Ajuste de administración"
	}

	entry, err := h.wallet.Debit(ctx, targetID, amount, model.KindAdminDebit, note,
		map[string]any{"admin_id": sender.ID})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			return c.Reply("❌ La cantidad debe ser positiva")
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.Reply("❌ El usuario no tiene suficientes besitos")
		default:
			return c.Reply("❌ No pude completar la operación")
		}
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Str("operation", "admin_debit").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ %d besitos retirados a %d", -entry.Amount, targetID))
}

// HandleRewards handles the /premios command: lists active definitions.
func (h *AdminHandler) HandleRewards(c tele.Context) error {
	ctx := context.Background()

	defs, err := h.rewards.ListActive(ctx)
	if err != nil {
		return c.Reply("❌ No pude consultar los premios")
	}
	if len(defs) == 0 {
		return c.Reply("🎁 No hay premios activos")
	}

	var sb strings.Builder
	sb.WriteString("🎁 Premios activos\n\n")
	for _, def := range defs {
		repeat := "única vez"
		if def.IsRepeatable {
			repeat = fmt.Sprintf("cada %dh", def.ClaimWindowHours)
		}
		value := fmt.Sprintf("%d besitos", def.RewardValue)
		if def.RewardKind == model.RewardSubscriptionDays {
			value = fmt.Sprintf("%d días VIP", def.RewardValue)
		}
		sb.WriteString(fmt.Sprintf("#%d %s — %s (%s, %d condiciones)\n",
			def.ID, def.Name, value, repeat, len(def.Conditions)))
	}
	return c.Reply(sb.String())
}

// HandleAddReward handles the /addpremio command. The payload is the
// definition as JSON; validation rejects malformed condition data before it
// is stored.
func (h *AdminHandler) HandleAddReward(c tele.Context) error {
	ctx := context.Background()

	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return c.Reply(`Uso: /addpremio {"name":"...","conditions":[{"group":0,"predicate":"total_earned_gte","operand":100}],"reward_kind":"currency","reward_value":50}`)
	}

	var def model.RewardDefinition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return c.Reply("❌ JSON inválido: " + err.Error())
	}
	def.IsActive = true

	created, err := h.rewards.CreateDefinition(ctx, &def)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRewardDefinition) {
			return c.Reply("❌ Definición inválida: " + err.Error())
		}
		return c.Reply("❌ No pude guardar el premio")
	}

	return c.Reply(fmt.Sprintf("✅ Premio #%d «%s» creado", created.ID, created.Name))
}

// parseAdminArgs resolves the target and amount for /dar and /quitar,
// accepting either an explicit user id or a reply to the target's message.
func parseAdminArgs(c tele.Context) (targetID, amount int64, note string, err error) {
	args := c.Args()

	if reply := c.Message().ReplyTo; reply != nil && reply.Sender != nil {
		if len(args) < 1 {
			return 0, 0, "", errors.New("Uso: responde con /dar <cantidad> [nota]")
		}
		amount, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, 0, "", errors.New("❌ Cantidad inválida")
		}
		return reply.Sender.ID, amount, strings.Join(args[1:], " "), nil
	}

	if len(args) < 2 {
		return 0, 0, "", errors.New("Uso: /dar <user_id> <cantidad> [nota]")
	}
	targetID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, "", errors.New("❌ ID de usuario inválido")
	}
	amount, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, "", errors.New("❌ Cantidad inválida")
	}
	return targetID, amount, strings.Join(args[2:], " "), nil
}
