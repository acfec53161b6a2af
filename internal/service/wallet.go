package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"besitos-bot/internal/model"
	"besitos-bot/internal/repository"
)

// Common errors for wallet operations.
var (
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// WalletService exposes the atomic credit/debit unit and ledger queries.
// Serialization for concurrent mutations of one wallet lives in the
// repository's row lock; this layer owns validation and typed outcomes.
type WalletService struct {
	wallets *repository.WalletRepository
}

// NewWalletService creates a new WalletService instance.
func NewWalletService(wallets *repository.WalletRepository) *WalletService {
	return &WalletService{wallets: wallets}
}

// Credit adds besitos to a user's wallet, writing the paired ledger entry
// atomically.
func (s *WalletService) Credit(ctx context.Context, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := s.wallets.Credit(ctx, userID, amount, kind, note, metadata)
	if err != nil {
		return nil, err
	}
	log.Debug().Int64("user_id", userID).Int64("amount", amount).Str("kind", kind).Msg("Wallet credited")
	return entry, nil
}

// Debit removes besitos from a user's wallet. Returns
// ErrInsufficientBalance when the wallet cannot cover the amount; the
// balance never goes negative.
func (s *WalletService) Debit(ctx context.Context, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := s.wallets.Debit(ctx, userID, amount, kind, note, metadata)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	log.Debug().Int64("user_id", userID).Int64("amount", amount).Str("kind", kind).Msg("Wallet debited")
	return entry, nil
}

// GetBalance returns the user's current balance, creating the profile on
// first touch.
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	profile, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.Balance, nil
}

// GetProfile returns the user's full wallet profile, creating it on first
// touch.
func (s *WalletService) GetProfile(ctx context.Context, userID int64) (*model.WalletProfile, error) {
	return s.wallets.GetOrCreate(ctx, userID)
}

// GetHistory returns one page of the user's ledger. An empty kindFilter
// means all kinds.
func (s *WalletService) GetHistory(ctx context.Context, userID int64, page, pageSize int, kindFilter string) (*model.HistoryPage, error) {
	return s.wallets.GetHistory(ctx, userID, page, pageSize, kindFilter)
}

// Reconcile verifies the balance invariant for one user: the snapshot must
// equal the signed sum of the ledger and total_earned - total_spent.
func (s *WalletService) Reconcile(ctx context.Context, userID int64) error {
	profile, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := s.wallets.SumLedger(ctx, userID)
	if err != nil {
		return err
	}
	if profile.Balance != sum || profile.Balance != profile.TotalEarned-profile.TotalSpent {
		return fmt.Errorf("wallet %d out of balance: snapshot=%d ledger=%d earned=%d spent=%d",
			userID, profile.Balance, sum, profile.TotalEarned, profile.TotalSpent)
	}
	return nil
}

// GetTopProfiles returns the richest wallets for the ranking view.
func (s *WalletService) GetTopProfiles(ctx context.Context, limit int) ([]*model.WalletProfile, error) {
	return s.wallets.GetTopProfiles(ctx, limit)
}
