package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"besitos-bot/internal/model"
)

// SubscriptionRepository owns the subscriptions table used by the
// subscription-extension reward kind.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository instance.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// Get returns the user's subscription, or nil if they never had one.
func (r *SubscriptionRepository) Get(ctx context.Context, userID int64) (*model.Subscription, error) {
	var s model.Subscription
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, expires_at, is_active, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.ExpiresAt, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &s, nil
}

// ExtendTx grants days of subscription inside a caller-owned transaction
// and returns the new expiry. An active, unexpired subscription stacks the
// days on its current expiry; a lapsed or absent one restarts from now,
// never from a stale past expiry that would short the user days.
func (r *SubscriptionRepository) ExtendTx(ctx context.Context, tx pgx.Tx, userID int64, days int64, now time.Time) (time.Time, error) {
	var expiry time.Time
	err := tx.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, expires_at, is_active, created_at, updated_at)
		VALUES ($1, $2::timestamptz + make_interval(days => $3::int), TRUE, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			expires_at = CASE
				WHEN subscriptions.is_active AND subscriptions.expires_at > $2::timestamptz
					THEN subscriptions.expires_at + make_interval(days => $3::int)
				ELSE $2::timestamptz + make_interval(days => $3::int)
			END,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING expires_at
	`, userID, now, days).Scan(&expiry)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to extend subscription: %w", err)
	}
	return expiry, nil
}

// DeactivateExpired clears the active flag on every subscription whose
// expiry has passed. Run from the background sweep.
func (r *SubscriptionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}
