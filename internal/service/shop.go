package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"besitos-bot/internal/model"
	"besitos-bot/internal/shop"
)

// ErrItemNotFound is returned when a purchase names an unknown catalog item.
var ErrItemNotFound = errors.New("shop item not found")

// ShopService handles catalog purchases. The debit and its ledger entry are
// one atomic unit in the wallet; a completed purchase fires the purchase
// event into the reward engine.
type ShopService struct {
	wallet  *WalletService
	rewards *RewardService
}

// NewShopService creates a new ShopService instance.
func NewShopService(wallet *WalletService, rewards *RewardService) *ShopService {
	return &ShopService{wallet: wallet, rewards: rewards}
}

// PurchaseResult is the structured outcome of a completed purchase.
type PurchaseResult struct {
	Item    shop.Item
	Entry   *model.LedgerEntry
	Granted []model.GrantedReward
}

// Items returns the catalog.
func (s *ShopService) Items() []shop.Item {
	return shop.GetAll()
}

// Purchase buys one catalog item for the user. Returns
// ErrInsufficientBalance when the wallet cannot cover the price.
func (s *ShopService) Purchase(ctx context.Context, userID int64, itemID string) (*PurchaseResult, error) {
	item, ok := shop.Get(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}

	entry, err := s.wallet.Debit(ctx, userID, item.Price, model.KindShopSpend, "Compra: "+item.Name,
		map[string]any{"item_id": item.ID})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Str("item", item.ID).Int64("price", item.Price).Msg("Shop purchase completed")

	granted, err := s.rewards.OnEvent(ctx, userID, model.EventPurchase)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Reward sweep failed after purchase")
	}

	return &PurchaseResult{Item: item, Entry: entry, Granted: granted}, nil
}
