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

// RewardRepository owns reward_definitions and reward_claims. Conditions are
// stored as jsonb; they are data interpreted by the evaluator, never code.
type RewardRepository struct {
	pool *pgxpool.Pool
}

// NewRewardRepository creates a new RewardRepository instance.
func NewRewardRepository(pool *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{pool: pool}
}

const definitionColumns = `id, name, conditions, is_repeatable, claim_window_hours, reward_kind, reward_value, is_active, created_at`

// Create inserts a reward definition. Callers validate conditions first;
// malformed definitions must never reach the evaluator.
func (r *RewardRepository) Create(ctx context.Context, def *model.RewardDefinition) (*model.RewardDefinition, error) {
	var out model.RewardDefinition
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reward_definitions (name, conditions, is_repeatable, claim_window_hours, reward_kind, reward_value, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING `+definitionColumns,
		def.Name, def.Conditions, def.IsRepeatable, def.ClaimWindowHours, def.RewardKind, def.RewardValue, def.IsActive,
	).Scan(
		&out.ID, &out.Name, &out.Conditions, &out.IsRepeatable, &out.ClaimWindowHours,
		&out.RewardKind, &out.RewardValue, &out.IsActive, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward definition: %w", err)
	}
	return &out, nil
}

// GetByID retrieves one reward definition.
func (r *RewardRepository) GetByID(ctx context.Context, id int64) (*model.RewardDefinition, error) {
	var def model.RewardDefinition
	err := r.pool.QueryRow(ctx, `SELECT `+definitionColumns+` FROM reward_definitions WHERE id = $1`, id).Scan(
		&def.ID, &def.Name, &def.Conditions, &def.IsRepeatable, &def.ClaimWindowHours,
		&def.RewardKind, &def.RewardValue, &def.IsActive, &def.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("failed to get reward definition: %w", err)
	}
	return &def, nil
}

// ListActive retrieves all active reward definitions, read fresh on every
// event. There is deliberately no in-process cache of definitions.
func (r *RewardRepository) ListActive(ctx context.Context) ([]*model.RewardDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+definitionColumns+` FROM reward_definitions WHERE is_active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward definitions: %w", err)
	}
	defer rows.Close()

	var defs []*model.RewardDefinition
	for rows.Next() {
		var def model.RewardDefinition
		err := rows.Scan(
			&def.ID, &def.Name, &def.Conditions, &def.IsRepeatable, &def.ClaimWindowHours,
			&def.RewardKind, &def.RewardValue, &def.IsActive, &def.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward definition: %w", err)
		}
		defs = append(defs, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward definitions: %w", err)
	}
	return defs, nil
}

// SetActive toggles a definition on or off.
func (r *RewardRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reward_definitions SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update reward definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRewardNotFound
	}
	return nil
}

// GetClaim returns the claim record for (user, reward), or nil if the user
// has never claimed the reward.
func (r *RewardRepository) GetClaim(ctx context.Context, userID, rewardID int64) (*model.RewardClaim, error) {
	return r.getClaim(ctx, r.pool, userID, rewardID, false)
}

// GetClaimForUpdate is GetClaim with a row lock, inside a caller-owned
// transaction. Concurrent grants of the same reward serialize on this lock.
func (r *RewardRepository) GetClaimForUpdate(ctx context.Context, tx pgx.Tx, userID, rewardID int64) (*model.RewardClaim, error) {
	return r.getClaim(ctx, tx, userID, rewardID, true)
}

func (r *RewardRepository) getClaim(ctx context.Context, q Querier, userID, rewardID int64, forUpdate bool) (*model.RewardClaim, error) {
	query := `
		SELECT user_id, reward_id, first_claimed_at, last_claimed_at, claim_count
		FROM reward_claims
		WHERE user_id = $1 AND reward_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c model.RewardClaim
	err := q.QueryRow(ctx, query, userID, rewardID).Scan(
		&c.UserID, &c.RewardID, &c.FirstClaimedAt, &c.LastClaimedAt, &c.ClaimCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reward claim: %w", err)
	}
	return &c, nil
}

// InsertClaim records the first claim of a reward. Returns false without
// error when another transaction inserted the row first; the unique key on
// (user_id, reward_id) is the backstop against double-granting.
func (r *RewardRepository) InsertClaim(ctx context.Context, tx pgx.Tx, userID, rewardID int64, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO reward_claims (user_id, reward_id, first_claimed_at, last_claimed_at, claim_count)
		VALUES ($1, $2, $3, $3, 1)
		ON CONFLICT (user_id, reward_id) DO NOTHING
	`, userID, rewardID, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert reward claim: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TouchClaim records a repeat claim: last_claimed_at moves to now, the claim
// count increments, first_claimed_at stays where it was.
func (r *RewardRepository) TouchClaim(ctx context.Context, tx pgx.Tx, userID, rewardID int64, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE reward_claims
		SET last_claimed_at = $3, claim_count = claim_count + 1
		WHERE user_id = $1 AND reward_id = $2
	`, userID, rewardID, now)
	if err != nil {
		return fmt.Errorf("failed to update reward claim: %w", err)
	}
	return nil
}
