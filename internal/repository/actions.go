package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"besitos-bot/internal/pkg/dayclock"
)

// ActionOutcome is the result of a rate-limiter check.
type ActionOutcome int

const (
	// ActionAllowed means the action was recorded and may be credited.
	ActionAllowed ActionOutcome = iota
	// ActionDuplicate means the same action was already recorded. Benign:
	// callers collapse it to the original success, nothing counts twice.
	ActionDuplicate
	// ActionLimited means the per-day ceiling for this action type is reached.
	ActionLimited
)

// ActionRepository is the persistence-backed rate limiter and deduplicator.
// Records survive restarts on purpose: an in-memory limiter silently resets
// and lets users bypass daily ceilings.
type ActionRepository struct {
	pool *pgxpool.Pool
}

// NewActionRepository creates a new ActionRepository instance.
func NewActionRepository(pool *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{pool: pool}
}

// CheckAndRecord records one action in its own transaction. See
// CheckAndRecordTx for the dedup and ceiling semantics.
func (r *ActionRepository) CheckAndRecord(ctx context.Context, userID, contentID int64, actionType string, day dayclock.Key, dailyLimit int) (ActionOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ActionLimited, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome, err := r.CheckAndRecordTx(ctx, tx, userID, contentID, actionType, day, dailyLimit)
	if err != nil || outcome != ActionAllowed {
		return outcome, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ActionLimited, fmt.Errorf("failed to commit action record: %w", err)
	}
	return ActionAllowed, nil
}

// CheckAndRecordTx records one action inside a caller-owned transaction, so
// the record and the payout it guards commit or roll back together. The
// unique key on (user_id, content_id, action_type) enforces dedup; the
// day-key count enforces the ceiling. When the outcome is not Allowed the
// caller must roll back, which discards the insert and leaves the denial
// without a trace. A dailyLimit of 0 disables the ceiling.
func (r *ActionRepository) CheckAndRecordTx(ctx context.Context, tx pgx.Tx, userID, contentID int64, actionType string, day dayclock.Key, dailyLimit int) (ActionOutcome, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO action_records (user_id, content_id, action_type, day_key, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, content_id, action_type) DO NOTHING
	`, userID, contentID, actionType, day)
	if err != nil {
		return ActionLimited, fmt.Errorf("failed to record action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ActionDuplicate, nil
	}

	if dailyLimit > 0 {
		// Serialize ceiling checks per (user, action type): concurrent
		// inserts of distinct content ids would otherwise each count only
		// their own row and overshoot the ceiling. The lock is released at
		// transaction end.
		_, err = tx.Exec(ctx, `
			SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2, 0))
		`, userID, actionType)
		if err != nil {
			return ActionLimited, fmt.Errorf("failed to lock action ceiling: %w", err)
		}

		var count int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM action_records
			WHERE user_id = $1 AND action_type = $2 AND day_key = $3
		`, userID, actionType, day).Scan(&count)
		if err != nil {
			return ActionLimited, fmt.Errorf("failed to count actions: %w", err)
		}
		if count > dailyLimit {
			return ActionLimited, nil
		}
	}

	return ActionAllowed, nil
}

// CountForDay returns how many actions of one type a user performed on the
// given day.
func (r *ActionRepository) CountForDay(ctx context.Context, userID int64, actionType string, day dayclock.Key) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM action_records
		WHERE user_id = $1 AND action_type = $2 AND day_key = $3
	`, userID, actionType, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

// CleanOld removes action records older than keepDays. Dedup only ever
// needs recent history; the ledger is the permanent record.
func (r *ActionRepository) CleanOld(ctx context.Context, today dayclock.Key, keepDays int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM action_records WHERE day_key < $1
	`, int64(today)-int64(keepDays))
	if err != nil {
		return 0, fmt.Errorf("failed to clean action records: %w", err)
	}
	return tag.RowsAffected(), nil
}
