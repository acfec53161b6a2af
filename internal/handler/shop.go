package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"besitos-bot/internal/service"
)

// ShopHandler handles catalog commands.
type ShopHandler struct {
	shop *service.ShopService
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(shop *service.ShopService) *ShopHandler {
	return &ShopHandler{shop: shop}
}

// HandleShop handles the /tienda command.
func (h *ShopHandler) HandleShop(c tele.Context) error {
	items := h.shop.Items()

	var sb strings.Builder
	sb.WriteString("🛒 Tienda de besitos\n\n")
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("• %s — %d besitos\n  %s\n  /comprar %s\n", it.Name, it.Price, it.Description, it.ID))
	}
	return c.Reply(sb.String())
}

// HandlePurchase handles the /comprar command.
// Format: /comprar <artículo>
func (h *ShopHandler) HandlePurchase(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Uso: /comprar <artículo> — mira /tienda para la lista")
	}

	result, err := h.shop.Purchase(ctx, sender.ID, args[0])
	if err != nil {
		switch {
		case errors.Is(err, service.ErrItemNotFound):
			return c.Reply("❌ Ese artículo no existe, mira /tienda")
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.Reply("❌ No te alcanzan los besitos para eso")
		default:
			return c.Reply("❌ Algo salió mal, inténtalo más tarde")
		}
	}

	msg := fmt.Sprintf("✅ Compraste %s por %d besitos", result.Item.Name, result.Item.Price)
	return c.Reply(msg + formatGranted(result.Granted))
}
