// Package main is the entry point for the besitos bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"besitos-bot/internal/bot"
	"besitos-bot/internal/config"
	"besitos-bot/internal/jobs"
	"besitos-bot/internal/pkg/db"
	"besitos-bot/internal/repository"
	"besitos-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	walletRepo := repository.NewWalletRepository(dbPool.Pool)
	rewardRepo := repository.NewRewardRepository(dbPool.Pool)
	streakRepo := repository.NewStreakRepository(dbPool.Pool)
	subsRepo := repository.NewSubscriptionRepository(dbPool.Pool)
	actionRepo := repository.NewActionRepository(dbPool.Pool)

	// Initialize services
	walletService := service.NewWalletService(walletRepo)
	rewardService := service.NewRewardService(dbPool.Pool, rewardRepo, walletRepo, streakRepo, subsRepo)
	streakService := service.NewStreakService(streakRepo)
	dailyService := service.NewDailyService(
		dbPool.Pool, walletRepo, actionRepo, streakService, rewardService, cfg.Daily.Reward)
	reactionService := service.NewReactionService(
		dbPool.Pool, walletRepo, actionRepo, streakService, rewardService,
		cfg.Reaction.Reward, cfg.Reaction.DailyLimit)
	shopService := service.NewShopService(walletService, rewardService)

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:          cfg,
		WalletService:   walletService,
		DailyService:    dailyService,
		StreakService:   streakService,
		ShopService:     shopService,
		ReactionService: reactionService,
		RewardService:   rewardService,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Start background sweeps
	scheduler := jobs.NewScheduler(streakService, rewardService, walletService, subsRepo, actionRepo)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	scheduler.Stop()
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: wallet profiles
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_profiles (
			user_id BIGINT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			total_earned BIGINT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			cached_level INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT wallet_balance_nonnegative CHECK (balance >= 0)
		);
		CREATE INDEX IF NOT EXISTS idx_wallet_profiles_balance ON wallet_profiles(balance DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: wallet_profiles table created")

	// Migration 2: ledger entries
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES wallet_profiles(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			note TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_time ON ledger_entries(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_kind_time ON ledger_entries(kind, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: ledger_entries table created")

	// Migration 3: reward definitions and claims
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reward_definitions (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			conditions JSONB NOT NULL DEFAULT '[]',
			is_repeatable BOOLEAN NOT NULL DEFAULT FALSE,
			claim_window_hours INT NOT NULL DEFAULT 0,
			reward_kind VARCHAR(50) NOT NULL,
			reward_value BIGINT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS reward_claims (
			user_id BIGINT NOT NULL,
			reward_id BIGINT NOT NULL REFERENCES reward_definitions(id) ON DELETE CASCADE,
			first_claimed_at TIMESTAMPTZ NOT NULL,
			last_claimed_at TIMESTAMPTZ NOT NULL,
			claim_count INT NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, reward_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: reward tables created")

	// Migration 4: streak states
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS streak_states (
			user_id BIGINT PRIMARY KEY,
			current_streak_days INT NOT NULL DEFAULT 0,
			last_activity_day BIGINT NOT NULL DEFAULT 0,
			longest_streak_days INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_streak_states_day ON streak_states(last_activity_day);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: streak_states table created")

	// Migration 5: subscriptions
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id BIGINT PRIMARY KEY,
			expires_at TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_expires ON subscriptions(expires_at) WHERE is_active;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: subscriptions table created")

	// Migration 6: action dedup records
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS action_records (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content_id BIGINT NOT NULL,
			action_type VARCHAR(50) NOT NULL,
			day_key BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT action_records_dedup UNIQUE (user_id, content_id, action_type)
		);
		CREATE INDEX IF NOT EXISTS idx_action_records_day ON action_records(user_id, action_type, day_key);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 6: action_records table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
