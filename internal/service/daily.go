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

// ErrAlreadyClaimedToday is returned when the daily claim was already made
// on the current UTC day.
var ErrAlreadyClaimedToday = errors.New("daily reward already claimed today")

// DailyService handles the daily besitos claim. The claim is limited to one
// per UTC day key, not a rolling 24 hours, so the handler and the background
// jobs agree on the boundary. The dedup record and the credit commit in a
// single transaction: a failed credit rolls the record back too, and the
// unique key on the record doubles as the concurrency guard against
// double-claiming.
type DailyService struct {
	pool    *pgxpool.Pool
	wallets *repository.WalletRepository
	actions *repository.ActionRepository
	streaks *StreakService
	rewards *RewardService
	reward  int64
}

// NewDailyService creates a new DailyService instance.
func NewDailyService(
	pool *pgxpool.Pool,
	wallets *repository.WalletRepository,
	actions *repository.ActionRepository,
	streaks *StreakService,
	rewards *RewardService,
	reward int64,
) *DailyService {
	return &DailyService{
		pool:    pool,
		wallets: wallets,
		actions: actions,
		streaks: streaks,
		rewards: rewards,
		reward:  reward,
	}
}

// DailyResult is the structured outcome of a successful daily claim.
type DailyResult struct {
	Entry   *model.LedgerEntry
	Streak  *model.StreakState
	Granted []model.GrantedReward
}

// Claim performs the daily claim: dedup by day key and credit in one atomic
// unit, then the streak touch and the reward sweep for the claim and, if the
// streak advanced, the streak event.
func (s *DailyService) Claim(ctx context.Context, userID int64) (*DailyResult, error) {
	now := time.Now()
	day := dayclock.At(now)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome, err := s.actions.CheckAndRecordTx(ctx, tx, userID, int64(day), model.EventDailyClaim, day, 0)
	if err != nil {
		return nil, err
	}
	if outcome == repository.ActionDuplicate {
		return nil, ErrAlreadyClaimedToday
	}

	entry, err := s.wallets.CreditTx(ctx, tx, userID, s.reward, model.KindDaily, "Recompensa diaria",
		map[string]any{"day": day.String()})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit daily claim: %w", err)
	}

	streak, advanced, err := s.streaks.RecordActivity(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	granted, err := s.rewards.OnEvent(ctx, userID, model.EventDailyClaim)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Reward sweep failed after daily claim")
	}
	if advanced {
		more, err := s.rewards.OnEvent(ctx, userID, model.EventStreak)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Reward sweep failed after streak advance")
		}
		granted = append(granted, more...)
	}

	return &DailyResult{Entry: entry, Streak: streak, Granted: granted}, nil
}
