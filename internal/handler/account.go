package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"besitos-bot/internal/service"
)

// AccountHandler handles wallet-related commands.
type AccountHandler struct {
	wallet   *service.WalletService
	daily    *service.DailyService
	streaks  *service.StreakService
	pageSize int
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(wallet *service.WalletService, daily *service.DailyService, streaks *service.StreakService, pageSize int) *AccountHandler {
	return &AccountHandler{wallet: wallet, daily: daily, streaks: streaks, pageSize: pageSize}
}

// HandleBalance handles the /saldo command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	profile, err := h.wallet.GetProfile(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ No pude consultar tu saldo, inténtalo más tarde")
	}
	streak, err := h.streaks.Get(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ No pude consultar tu saldo, inténtalo más tarde")
	}

	return c.Reply(fmt.Sprintf(
		"💋 Saldo: %d besitos\n"+
			"📈 Ganados: %d | 📉 Gastados: %d\n"+
			"⭐ Nivel %d | 🔥 Racha: %d días",
		profile.Balance, profile.TotalEarned, profile.TotalSpent,
		profile.CachedLevel, streak.CurrentStreakDays,
	))
}

// HandleDaily handles the /diario command.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	result, err := h.daily.Claim(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyClaimedToday) {
			return c.Reply("⏰ Ya reclamaste tus besitos de hoy, vuelve mañana")
		}
		return c.Reply("❌ Algo salió mal, inténtalo más tarde")
	}

	msg := fmt.Sprintf("✅ +%d besitos 💋\n🔥 Racha: %d días", result.Entry.Amount, result.Streak.CurrentStreakDays)
	return c.Reply(msg + formatGranted(result.Granted))
}

// HandleHistory handles the /historial command.
// Format: /historial [página] [tipo]
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	page := 1
	kind := ""
	args := c.Args()
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			page = n
		} else {
			kind = args[0]
		}
	}
	if len(args) > 1 {
		kind = args[1]
	}

	hist, err := h.wallet.GetHistory(ctx, sender.ID, page, h.pageSize, kind)
	if err != nil {
		return c.Reply("❌ No pude consultar tu historial, inténtalo más tarde")
	}
	if len(hist.Entries) == 0 {
		return c.Reply("📋 No hay movimientos en esta página")
	}

	var sb strings.Builder
	pages := (hist.Total + hist.PageSize - 1) / hist.PageSize
	sb.WriteString(fmt.Sprintf("📋 Historial (página %d de %d)\n", hist.Page, pages))
	for _, e := range hist.Entries {
		sb.WriteString(formatEntry(e) + "\n")
	}
	return c.Reply(sb.String())
}

// HandleTop handles the /top command.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	profiles, err := h.wallet.GetTopProfiles(ctx, 10)
	if err != nil {
		return c.Reply("❌ No pude consultar el ranking, inténtalo más tarde")
	}
	if len(profiles) == 0 {
		return c.Reply("📊 Todavía no hay nadie en el ranking")
	}

	var sb strings.Builder
	sb.WriteString("🏆 TOP 10 besitos\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, p := range profiles {
		rank := fmt.Sprintf("%d.", i+1)
		if i < 3 {
			rank = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %d — %d besitos\n", rank, p.UserID, p.Balance))
	}
	return c.Reply(sb.String())
}
