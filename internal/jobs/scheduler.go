// Package jobs runs the scheduled maintenance tasks: streak sweeps,
// subscription expiry and dedup record cleanup.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"besitos-bot/internal/model"
	"besitos-bot/internal/pkg/dayclock"
	"besitos-bot/internal/repository"
	"besitos-bot/internal/service"
)

// keepActionDays is how long dedup records are retained after their day.
const keepActionDays = 30

// Scheduler owns the cron instance and the sweep jobs.
type Scheduler struct {
	cron    *cron.Cron
	streaks *service.StreakService
	rewards *service.RewardService
	wallets *service.WalletService
	subs    *repository.SubscriptionRepository
	actions *repository.ActionRepository
}

func NewScheduler(
	streaks *service.StreakService,
	rewards *service.RewardService,
	wallets *service.WalletService,
	subs *repository.SubscriptionRepository,
	actions *repository.ActionRepository,
) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		streaks: streaks,
		rewards: rewards,
		wallets: wallets,
		subs:    subs,
		actions: actions,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	// Shortly after the UTC day boundary: break stale streaks, expire
	// subscriptions, drop old dedup records.
	if _, err := s.cron.AddFunc("5 0 * * *", s.dailySweep); err != nil {
		return err
	}
	// Hourly re-evaluation so repeatable rewards whose window opened
	// without user activity still get granted.
	if _, err := s.cron.AddFunc("0 * * * *", s.rewardSweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Msg("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) dailySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	today := dayclock.Today()

	broken, err := s.streaks.ExpireBroken(ctx, today)
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire broken streaks")
	} else if broken > 0 {
		log.Info().Int64("count", broken).Msg("Expired broken streaks")
	}

	expired, err := s.subs.DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("Failed to deactivate expired subscriptions")
	} else if expired > 0 {
		log.Info().Int64("count", expired).Msg("Deactivated expired subscriptions")
	}

	removed, err := s.actions.CleanOld(ctx, today, keepActionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean old action records")
	} else if removed > 0 {
		log.Info().Int64("count", removed).Msg("Cleaned old action records")
	}

	// Audit the wallets of yesterday's active users against their ledgers.
	userIDs, err := s.streaks.ActiveOn(ctx, today.Prev())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users for wallet reconciliation")
		return
	}
	for _, userID := range userIDs {
		if err := s.wallets.Reconcile(ctx, userID); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Wallet reconciliation mismatch")
		}
	}
}

func (s *Scheduler) rewardSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	userIDs, err := s.streaks.ActiveOn(ctx, dayclock.Today())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active users for reward sweep")
		return
	}

	var granted int
	for _, userID := range userIDs {
		rewards, err := s.rewards.OnEvent(ctx, userID, model.EventSweep)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Reward sweep failed for user")
			continue
		}
		granted += len(rewards)
	}
	if granted > 0 {
		log.Info().Int("users", len(userIDs)).Int("granted", granted).Msg("Reward sweep completed")
	}
}
