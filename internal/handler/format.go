// Package handler provides Telegram bot command handlers. Handlers are the
// presentation layer: the services return structured outcomes and all
// user-facing text is rendered here.
package handler

import (
	"fmt"
	"strings"

	"besitos-bot/internal/model"
)

// formatGranted renders a list of freshly granted rewards, or "" when empty.
func formatGranted(granted []model.GrantedReward) string {
	if len(granted) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n🎁 ¡Premio desbloqueado!")
	for _, g := range granted {
		switch g.Kind {
		case model.RewardSubscriptionDays:
			sb.WriteString(fmt.Sprintf("\n⭐ %s: +%d días VIP", g.Name, g.Value))
			if g.NewExpiry != nil {
				sb.WriteString(fmt.Sprintf(" (hasta %s)", g.NewExpiry.UTC().Format("2006-01-02")))
			}
		default:
			sb.WriteString(fmt.Sprintf("\n💝 %s: +%d besitos", g.Name, g.Value))
		}
	}
	return sb.String()
}

// formatEntry renders one ledger entry line for the history view.
func formatEntry(e *model.LedgerEntry) string {
	sign := "+"
	if e.Amount < 0 {
		sign = ""
	}
	return fmt.Sprintf("%s | %s%d | %s", e.CreatedAt.UTC().Format("02.01 15:04"), sign, e.Amount, e.Note)
}
