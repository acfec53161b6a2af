package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"besitos-bot/internal/model"
	"besitos-bot/internal/pkg/dayclock"
)

// StreakRepository owns the streak_states table. Day arithmetic never lives
// here: the service computes transitions through the dayclock package and
// this layer only persists them.
type StreakRepository struct {
	pool *pgxpool.Pool
}

// NewStreakRepository creates a new StreakRepository instance.
func NewStreakRepository(pool *pgxpool.Pool) *StreakRepository {
	return &StreakRepository{pool: pool}
}

// Get returns the user's streak state, or a zero state if the user has no
// recorded activity yet.
func (r *StreakRepository) Get(ctx context.Context, userID int64) (*model.StreakState, error) {
	var s model.StreakState
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, current_streak_days, last_activity_day, longest_streak_days, updated_at
		FROM streak_states
		WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.CurrentStreakDays, &s.LastActivityDay, &s.LongestStreakDays, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.StreakState{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get streak state: %w", err)
	}
	return &s, nil
}

// Save upserts the user's streak state. The longest streak only ever grows.
func (r *StreakRepository) Save(ctx context.Context, userID int64, streak int, day dayclock.Key) (*model.StreakState, error) {
	var s model.StreakState
	err := r.pool.QueryRow(ctx, `
		INSERT INTO streak_states (user_id, current_streak_days, last_activity_day, longest_streak_days, updated_at)
		VALUES ($1, $2, $3, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak_days = $2,
			last_activity_day = $3,
			longest_streak_days = GREATEST(streak_states.longest_streak_days, $2),
			updated_at = NOW()
		RETURNING user_id, current_streak_days, last_activity_day, longest_streak_days, updated_at
	`, userID, streak, day).Scan(&s.UserID, &s.CurrentStreakDays, &s.LastActivityDay, &s.LongestStreakDays, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save streak state: %w", err)
	}
	return &s, nil
}

// ExpireBroken zeroes the running streak of every user whose last activity
// is before cutoff. The caller derives cutoff from the day clock, so the
// sweep and interactive updates share one notion of "yesterday".
func (r *StreakRepository) ExpireBroken(ctx context.Context, cutoff dayclock.Key) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE streak_states
		SET current_streak_days = 0, updated_at = NOW()
		WHERE last_activity_day < $1 AND current_streak_days > 0
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire streaks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ActiveOn returns the users whose last activity day is exactly day.
// Used by the sweep that re-evaluates repeatable rewards.
func (r *StreakRepository) ActiveOn(ctx context.Context, day dayclock.Key) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM streak_states WHERE last_activity_day = $1
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}
