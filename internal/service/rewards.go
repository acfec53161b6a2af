package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"besitos-bot/internal/model"
	"besitos-bot/internal/repository"
)

// Subscriptions is the subscription collaborator the engine needs for the
// subscription-extension reward kind. ExtendTx runs inside the grant's
// transaction so a subscription failure rolls the whole grant back.
type Subscriptions interface {
	ExtendTx(ctx context.Context, tx pgx.Tx, userID int64, days int64, now time.Time) (time.Time, error)
}

// RewardService is the reward rule engine. Every event source that can make
// a user eligible (daily claim, reaction, purchase, streak increment, the
// background sweep) goes through the single OnEvent path.
type RewardService struct {
	pool    *pgxpool.Pool
	rewards *repository.RewardRepository
	wallets *repository.WalletRepository
	streaks *repository.StreakRepository
	subs    Subscriptions
}

// NewRewardService creates a new RewardService instance.
func NewRewardService(
	pool *pgxpool.Pool,
	rewards *repository.RewardRepository,
	wallets *repository.WalletRepository,
	streaks *repository.StreakRepository,
	subs Subscriptions,
) *RewardService {
	return &RewardService{
		pool:    pool,
		rewards: rewards,
		wallets: wallets,
		streaks: streaks,
		subs:    subs,
	}
}

// OnEvent scores every active reward definition against the user's current
// state and grants the ones that are eligible and not cooling down. Each
// grant is its own atomic unit: a failure aborts that reward only, never the
// rest of the batch.
func (s *RewardService) OnEvent(ctx context.Context, userID int64, eventType string) ([]model.GrantedReward, error) {
	now := time.Now()

	state, err := s.userState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user state: %w", err)
	}

	defs, err := s.rewards.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var granted []model.GrantedReward
	for _, def := range defs {
		claim, err := s.rewards.GetClaim(ctx, userID, def.ID)
		if err != nil {
			log.Error().Err(err).Int64("reward_id", def.ID).Msg("Failed to load reward claim")
			continue
		}
		if !windowOpen(def, claim, now) {
			continue
		}

		eligible, err := EvaluateConditions(def.Conditions, *state)
		if err != nil {
			// One malformed definition must not block the rest.
			log.Warn().Err(err).Int64("reward_id", def.ID).Str("name", def.Name).Msg("Reward definition failed evaluation")
			continue
		}
		if !eligible {
			continue
		}

		g, err := s.grant(ctx, userID, def, now)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("reward_id", def.ID).Msg("Reward grant failed")
			continue
		}
		if g != nil {
			log.Info().
				Int64("user_id", userID).
				Int64("reward_id", def.ID).
				Str("name", def.Name).
				Str("event", eventType).
				Msg("Reward granted")
			granted = append(granted, *g)
		}
	}
	return granted, nil
}

// windowOpen applies the repeatability rules: a non-repeatable reward is
// blocked by the claim's existence, a repeatable one by its rolling window
// anchored to last_claimed_at (never first_claimed_at).
func windowOpen(def *model.RewardDefinition, claim *model.RewardClaim, now time.Time) bool {
	if claim == nil {
		return true
	}
	if !def.IsRepeatable {
		return false
	}
	return now.Sub(claim.LastClaimedAt) >= time.Duration(def.ClaimWindowHours)*time.Hour
}

// grant performs one reward grant as a single atomic unit: claim
// reservation, payout, commit. Returns (nil, nil) when a concurrent grant
// won the race; the claim row is reserved before the payout so simultaneous
// grants of the same reward serialize on it.
func (s *RewardService) grant(ctx context.Context, userID int64, def *model.RewardDefinition, now time.Time) (*model.GrantedReward, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	claim, err := s.rewards.GetClaimForUpdate(ctx, tx, userID, def.ID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		inserted, err := s.rewards.InsertClaim(ctx, tx, userID, def.ID, now)
		if err != nil {
			return nil, err
		}
		if !inserted {
			return nil, nil
		}
	} else {
		// Re-check under the row lock: the claim may have moved since the
		// speculative check outside the transaction.
		if !windowOpen(def, claim, now) {
			return nil, nil
		}
		if err := s.rewards.TouchClaim(ctx, tx, userID, def.ID, now); err != nil {
			return nil, err
		}
	}

	g := model.GrantedReward{RewardID: def.ID, Name: def.Name, Kind: def.RewardKind, Value: def.RewardValue}

	switch def.RewardKind {
	case model.RewardCurrency:
		_, err = s.wallets.CreditTx(ctx, tx, userID, def.RewardValue, model.KindReward, def.Name,
			map[string]any{"reward_id": def.ID})
		if err != nil {
			return nil, err
		}
	case model.RewardSubscriptionDays:
		expiry, err := s.subs.ExtendTx(ctx, tx, userID, def.RewardValue, now)
		if err != nil {
			return nil, err
		}
		g.NewExpiry = &expiry
	default:
		return nil, fmt.Errorf("%w: unknown reward kind %q", ErrInvalidRewardDefinition, def.RewardKind)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reward grant: %w", err)
	}
	return &g, nil
}

// userState assembles the snapshot the evaluator scores against.
func (s *RewardService) userState(ctx context.Context, userID int64) (*model.UserState, error) {
	profile, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	streak, err := s.streaks.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.UserState{
		Balance:       profile.Balance,
		TotalEarned:   profile.TotalEarned,
		TotalSpent:    profile.TotalSpent,
		Level:         profile.CachedLevel,
		StreakDays:    streak.CurrentStreakDays,
		LongestStreak: streak.LongestStreakDays,
	}, nil
}

// CreateDefinition validates and stores an admin-configured reward
// definition. Malformed condition data is rejected here, before it can ever
// reach evaluation.
func (s *RewardService) CreateDefinition(ctx context.Context, def *model.RewardDefinition) (*model.RewardDefinition, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidRewardDefinition)
	}
	if def.RewardKind != model.RewardCurrency && def.RewardKind != model.RewardSubscriptionDays {
		return nil, fmt.Errorf("%w: unknown reward kind %q", ErrInvalidRewardDefinition, def.RewardKind)
	}
	if def.RewardValue <= 0 {
		return nil, fmt.Errorf("%w: reward value must be positive", ErrInvalidRewardDefinition)
	}
	if def.IsRepeatable && def.ClaimWindowHours <= 0 {
		return nil, fmt.Errorf("%w: repeatable reward needs a positive claim window", ErrInvalidRewardDefinition)
	}
	if err := ValidateConditions(def.Conditions); err != nil {
		return nil, err
	}
	return s.rewards.Create(ctx, def)
}

// ListActive returns the active reward definitions.
func (s *RewardService) ListActive(ctx context.Context) ([]*model.RewardDefinition, error) {
	return s.rewards.ListActive(ctx)
}
