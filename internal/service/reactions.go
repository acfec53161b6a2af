package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"besitos-bot/internal/model"
	"besitos-bot/internal/pkg/dayclock"
	"besitos-bot/internal/repository"
)

// ErrSelfReaction is returned when a user reacts to their own message.
var ErrSelfReaction = errors.New("cannot react to own message")

// ReactionService credits message authors for reactions they receive.
// Dedup key is (reactor, message, "reaction"): the same user reacting to
// the same message twice is collapsed to the original outcome without
// crediting twice. A per-day ceiling caps how many reactions one user can
// hand out. The dedup record and the author's credit commit in a single
// transaction, so a failed credit never leaves the reaction consumed.
type ReactionService struct {
	pool       *pgxpool.Pool
	wallets    *repository.WalletRepository
	actions    *repository.ActionRepository
	streaks    *StreakService
	rewards    *RewardService
	reward     int64
	dailyLimit int
}

// NewReactionService creates a new ReactionService instance.
func NewReactionService(
	pool *pgxpool.Pool,
	wallets *repository.WalletRepository,
	actions *repository.ActionRepository,
	streaks *StreakService,
	rewards *RewardService,
	reward int64,
	dailyLimit int,
) *ReactionService {
	return &ReactionService{
		pool:       pool,
		wallets:    wallets,
		actions:    actions,
		streaks:    streaks,
		rewards:    rewards,
		reward:     reward,
		dailyLimit: dailyLimit,
	}
}

// ReactionResult is the structured outcome of a reaction attempt. Exactly
// one of Credited, Duplicate or Limited is set.
type ReactionResult struct {
	Credited  bool
	Duplicate bool
	Limited   bool
	Entry     *model.LedgerEntry
	Granted   []model.GrantedReward
}

// React records a reaction by reactorID on authorID's message. Duplicates
// and limit hits are outcomes, not errors: only self-reactions and
// infrastructure failures surface as errors.
func (s *ReactionService) React(ctx context.Context, reactorID, authorID, messageID int64) (*ReactionResult, error) {
	if reactorID == authorID {
		return nil, ErrSelfReaction
	}

	now := time.Now()
	day := dayclock.At(now)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome, err := s.actions.CheckAndRecordTx(ctx, tx, reactorID, messageID, model.EventReaction, day, s.dailyLimit)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case repository.ActionDuplicate:
		return &ReactionResult{Duplicate: true}, nil
	case repository.ActionLimited:
		return &ReactionResult{Limited: true}, nil
	}

	entry, err := s.wallets.CreditTx(ctx, tx, authorID, s.reward, model.KindReaction, "Reacción recibida",
		map[string]any{"message_id": messageID, "from_user_id": reactorID})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reaction: %w", err)
	}

	// Reacting counts as activity for the reactor's streak.
	_, advanced, err := s.streaks.RecordActivity(ctx, reactorID, now)
	if err != nil {
		log.Error().Err(err).Int64("user_id", reactorID).Msg("Failed to record reaction activity")
	}

	granted, err := s.rewards.OnEvent(ctx, authorID, model.EventReaction)
	if err != nil {
		log.Error().Err(err).Int64("user_id", authorID).Msg("Reward sweep failed after reaction")
	}
	if advanced {
		if _, err := s.rewards.OnEvent(ctx, reactorID, model.EventStreak); err != nil {
			log.Error().Err(err).Int64("user_id", reactorID).Msg("Reward sweep failed after streak advance")
		}
	}

	return &ReactionResult{Credited: true, Entry: entry, Granted: granted}, nil
}
