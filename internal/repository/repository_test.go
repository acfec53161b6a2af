// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"besitos-bot/internal/model"
	"besitos-bot/internal/pkg/dayclock"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runTestMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runTestMigrations applies the database schema
func runTestMigrations(ctx context.Context, pool *pgxpool.Pool) error {
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
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES wallet_profiles(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			note TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
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
		CREATE TABLE IF NOT EXISTS streak_states (
			user_id BIGINT PRIMARY KEY,
			current_streak_days INT NOT NULL DEFAULT 0,
			last_activity_day BIGINT NOT NULL DEFAULT 0,
			longest_streak_days INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id BIGINT PRIMARY KEY,
			expires_at TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS action_records (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content_id BIGINT NOT NULL,
			action_type VARCHAR(50) NOT NULL,
			day_key BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT action_records_dedup UNIQUE (user_id, content_id, action_type)
		);
	`)
	return err
}

// ============================================================================
// WalletRepository Tests
// ============================================================================

func TestWalletRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	profile, err := repo.GetOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), profile.UserID)
	assert.Equal(t, int64(0), profile.Balance)
	assert.False(t, profile.CreatedAt.IsZero())

	// Second call returns the same row
	again, err := repo.GetOrCreate(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, profile.CreatedAt, again.CreatedAt)

	// Get for an unknown user fails
	_, err = repo.Get(ctx, 99999)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestWalletRepository_CreditDebit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	entry, err := repo.Credit(ctx, 100, 100, model.KindDaily, "Recompensa diaria", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.Amount)
	assert.Equal(t, model.KindDaily, entry.Kind)

	profile, err := repo.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), profile.Balance)
	assert.Equal(t, int64(100), profile.TotalEarned)
	assert.Equal(t, int64(0), profile.TotalSpent)
	assert.Equal(t, 1, profile.CachedLevel) // floor(sqrt(100/100)) = 1

	entry, err = repo.Debit(ctx, 100, 30, model.KindShopSpend, "Compra: piropo", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), entry.Amount)

	profile, err = repo.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(70), profile.Balance)
	assert.Equal(t, int64(100), profile.TotalEarned)
	assert.Equal(t, int64(30), profile.TotalSpent)
}

func TestWalletRepository_DebitInsufficientFunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	_, err := repo.Credit(ctx, 200, 50, model.KindDaily, "", nil)
	require.NoError(t, err)

	_, err = repo.Debit(ctx, 200, 51, model.KindShopSpend, "", nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Failed debit leaves no trace
	profile, err := repo.Get(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(50), profile.Balance)
	assert.Equal(t, int64(0), profile.TotalSpent)

	sum, err := repo.SumLedger(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(50), sum)
}

func TestWalletRepository_BalanceMatchesLedger(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	amounts := []int64{100, 25, 5, 40}
	for _, a := range amounts {
		_, err := repo.Credit(ctx, 300, a, model.KindReaction, "", nil)
		require.NoError(t, err)
	}
	_, err := repo.Debit(ctx, 300, 60, model.KindShopSpend, "", nil)
	require.NoError(t, err)

	profile, err := repo.Get(ctx, 300)
	require.NoError(t, err)

	sum, err := repo.SumLedger(ctx, 300)
	require.NoError(t, err)

	assert.Equal(t, profile.Balance, sum)
	assert.Equal(t, profile.Balance, profile.TotalEarned-profile.TotalSpent)
}

func TestWalletRepository_GetHistory(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := repo.Credit(ctx, 400, 10, model.KindReaction, "", nil)
		require.NoError(t, err)
	}
	_, err := repo.Credit(ctx, 400, 100, model.KindDaily, "", nil)
	require.NoError(t, err)

	page, err := repo.GetHistory(ctx, 400, 1, 5, "")
	require.NoError(t, err)
	assert.Equal(t, 8, page.Total)
	assert.Len(t, page.Entries, 5)
	// Newest first
	assert.Equal(t, model.KindDaily, page.Entries[0].Kind)

	page, err = repo.GetHistory(ctx, 400, 2, 5, "")
	require.NoError(t, err)
	assert.Len(t, page.Entries, 3)

	// Kind filter applies to both the count and the rows
	page, err = repo.GetHistory(ctx, 400, 1, 5, model.KindReaction)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	for _, e := range page.Entries {
		assert.Equal(t, model.KindReaction, e.Kind)
	}
}

func TestWalletRepository_GetTopProfiles(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool)
	ctx := context.Background()

	balances := map[int64]int64{1: 50, 2: 200, 3: 100}
	for userID, amount := range balances {
		_, err := repo.Credit(ctx, userID, amount, model.KindDaily, "", nil)
		require.NoError(t, err)
	}

	top, err := repo.GetTopProfiles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].UserID)
	assert.Equal(t, int64(3), top[1].UserID)
}

// ============================================================================
// ActionRepository Tests
// ============================================================================

func TestActionRepository_CheckAndRecord(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewActionRepository(pool)
	ctx := context.Background()
	day := dayclock.Key(19000)

	outcome, err := repo.CheckAndRecord(ctx, 1, 555, model.EventReaction, day, 3)
	require.NoError(t, err)
	assert.Equal(t, ActionAllowed, outcome)

	// Same user, same content: benign duplicate
	outcome, err = repo.CheckAndRecord(ctx, 1, 555, model.EventReaction, day, 3)
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, outcome)

	// Different content counts toward the daily ceiling
	for _, contentID := range []int64{556, 557} {
		outcome, err = repo.CheckAndRecord(ctx, 1, contentID, model.EventReaction, day, 3)
		require.NoError(t, err)
		assert.Equal(t, ActionAllowed, outcome)
	}

	// Ceiling reached
	outcome, err = repo.CheckAndRecord(ctx, 1, 558, model.EventReaction, day, 3)
	require.NoError(t, err)
	assert.Equal(t, ActionLimited, outcome)

	// The denied attempt left no record
	count, err := repo.CountForDay(ctx, 1, model.EventReaction, day)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// A later duplicate of a denied action is still deniable, not a duplicate
	outcome, err = repo.CheckAndRecord(ctx, 1, 558, model.EventReaction, day, 3)
	require.NoError(t, err)
	assert.Equal(t, ActionLimited, outcome)
}

func TestActionRepository_LimitZeroDisablesCeiling(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewActionRepository(pool)
	ctx := context.Background()
	day := dayclock.Key(19000)

	for contentID := int64(0); contentID < 20; contentID++ {
		outcome, err := repo.CheckAndRecord(ctx, 2, contentID, model.EventDailyClaim, day, 0)
		require.NoError(t, err)
		assert.Equal(t, ActionAllowed, outcome)
	}
}

func TestActionRepository_ConcurrentDedup(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewActionRepository(pool)
	ctx := context.Background()
	day := dayclock.Key(19000)

	const workers = 10
	outcomes := make([]ActionOutcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = repo.CheckAndRecord(ctx, 3, 999, model.EventReaction, day, 0)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if outcomes[i] == ActionAllowed {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed, "exactly one concurrent attempt may be recorded")

	count, err := repo.CountForDay(ctx, 3, model.EventReaction, day)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActionRepository_ConcurrentCeiling(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewActionRepository(pool)
	ctx := context.Background()
	day := dayclock.Key(19000)

	// Distinct content ids racing against a ceiling of 3: without the
	// per-(user, action type) lock each attempt counts only its own row
	// and the ceiling overshoots.
	const workers = 10
	const limit = 3
	outcomes := make([]ActionOutcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = repo.CheckAndRecord(ctx, 5, int64(1000+i), model.EventReaction, day, limit)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if outcomes[i] == ActionAllowed {
			allowed++
		}
	}
	assert.Equal(t, limit, allowed, "the ceiling must hold under concurrency")

	count, err := repo.CountForDay(ctx, 5, model.EventReaction, day)
	require.NoError(t, err)
	assert.Equal(t, limit, count)
}

func TestActionRepository_CleanOld(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewActionRepository(pool)
	ctx := context.Background()

	old := dayclock.Key(18900)
	today := dayclock.Key(19000)

	_, err := repo.CheckAndRecord(ctx, 4, 1, model.EventReaction, old, 0)
	require.NoError(t, err)
	_, err = repo.CheckAndRecord(ctx, 4, 2, model.EventReaction, today, 0)
	require.NoError(t, err)

	removed, err := repo.CleanOld(ctx, today, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := repo.CountForDay(ctx, 4, model.EventReaction, today)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// ============================================================================
// RewardRepository Tests
// ============================================================================

func TestRewardRepository_DefinitionsAndClaims(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRewardRepository(pool)
	ctx := context.Background()

	def, err := repo.Create(ctx, &model.RewardDefinition{
		Name: "Racha de una semana",
		Conditions: []model.Condition{
			{Group: 0, Predicate: model.PredStreakDaysGTE, Operand: 7},
		},
		IsRepeatable:     true,
		ClaimWindowHours: 168,
		RewardKind:       model.RewardCurrency,
		RewardValue:      500,
		IsActive:         true,
	})
	require.NoError(t, err)
	require.NotZero(t, def.ID)

	got, err := repo.GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, model.PredStreakDaysGTE, got.Conditions[0].Predicate)
	assert.Equal(t, int64(7), got.Conditions[0].Operand)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, repo.SetActive(ctx, def.ID, false))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrRewardNotFound)
}

func TestRewardRepository_ClaimLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRewardRepository(pool)
	ctx := context.Background()

	def, err := repo.Create(ctx, &model.RewardDefinition{
		Name:             "Bono repetible",
		IsRepeatable:     true,
		ClaimWindowHours: 24,
		RewardKind:       model.RewardCurrency,
		RewardValue:      100,
		IsActive:         true,
	})
	require.NoError(t, err)

	claim, err := repo.GetClaim(ctx, 10, def.ID)
	require.NoError(t, err)
	assert.Nil(t, claim)

	first := time.Now().UTC().Truncate(time.Second).Add(-48 * time.Hour)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	inserted, err := repo.InsertClaim(ctx, tx, 10, def.ID, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, tx.Commit(ctx))

	// Second insert is a no-op
	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	inserted, err = repo.InsertClaim(ctx, tx, 10, def.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, tx.Commit(ctx))

	second := first.Add(25 * time.Hour)
	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.TouchClaim(ctx, tx, 10, def.ID, second))
	require.NoError(t, tx.Commit(ctx))

	claim, err = repo.GetClaim(ctx, 10, def.ID)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 2, claim.ClaimCount)
	assert.WithinDuration(t, first, claim.FirstClaimedAt, time.Second)
	assert.WithinDuration(t, second, claim.LastClaimedAt, time.Second)
}

// ============================================================================
// StreakRepository Tests
// ============================================================================

func TestStreakRepository_SaveAndExpire(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewStreakRepository(pool)
	ctx := context.Background()

	// Unknown user reads as zero state
	state, err := repo.Get(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentStreakDays)

	state, err = repo.Save(ctx, 20, 3, dayclock.Key(19000))
	require.NoError(t, err)
	assert.Equal(t, 3, state.CurrentStreakDays)
	assert.Equal(t, 3, state.LongestStreakDays)

	// A shorter streak never lowers the longest
	state, err = repo.Save(ctx, 20, 1, dayclock.Key(19005))
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentStreakDays)
	assert.Equal(t, 3, state.LongestStreakDays)

	users, err := repo.ActiveOn(ctx, dayclock.Key(19005))
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, users)

	// Activity on 19005, sweep on 19007: cutoff 19006 breaks the streak
	broken, err := repo.ExpireBroken(ctx, dayclock.Key(19006))
	require.NoError(t, err)
	assert.Equal(t, int64(1), broken)

	state, err = repo.Get(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentStreakDays)
	assert.Equal(t, 3, state.LongestStreakDays)
}

// ============================================================================
// SubscriptionRepository Tests
// ============================================================================

func extendSub(t *testing.T, pool *pgxpool.Pool, repo *SubscriptionRepository, userID, days int64, now time.Time) time.Time {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	expiry, err := repo.ExtendTx(ctx, tx, userID, days, now)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	return expiry
}

func TestSubscriptionRepository_StackAndRestart(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSubscriptionRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// First grant starts from now
	expiry := extendSub(t, pool, repo, 30, 7, now)
	assert.WithinDuration(t, now.AddDate(0, 0, 7), expiry, time.Second)

	// Active subscription stacks on the current expiry
	expiry = extendSub(t, pool, repo, 30, 3, now)
	assert.WithinDuration(t, now.AddDate(0, 0, 10), expiry, time.Second)

	sub, err := repo.Get(ctx, 30)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, sub.IsActive)

	// Let it lapse, then extend: restarts from now instead of stacking
	expired, err := repo.DeactivateExpired(ctx, expiry.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	later := expiry.Add(48 * time.Hour)
	newExpiry := extendSub(t, pool, repo, 30, 7, later)
	assert.WithinDuration(t, later.AddDate(0, 0, 7), newExpiry, time.Second)

	sub, err = repo.Get(ctx, 30)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, sub.IsActive)
}
