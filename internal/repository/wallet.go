package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"besitos-bot/internal/model"
)

// WalletRepository owns the wallet_profiles and ledger_entries tables.
// Every balance mutation pairs the profile update with exactly one ledger
// insert inside one database transaction, so the balance can never diverge
// from the signed sum of the user's ledger.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new WalletRepository instance.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

const profileColumns = `user_id, balance, total_earned, total_spent, cached_level, created_at, updated_at`

// GetOrCreate returns the user's profile, creating a zero-balance one on
// first touch. The insert-or-ignore-then-select shape is safe under two
// simultaneous first touches: the unique key on user_id is the backstop.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID int64) (*model.WalletProfile, error) {
	return r.getOrCreate(ctx, r.pool, userID)
}

func (r *WalletRepository) getOrCreate(ctx context.Context, q Querier, userID int64) (*model.WalletProfile, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO wallet_profiles (user_id, balance, total_earned, total_spent, cached_level)
		VALUES ($1, 0, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet profile: %w", err)
	}

	var p model.WalletProfile
	err = q.QueryRow(ctx, `SELECT `+profileColumns+` FROM wallet_profiles WHERE user_id = $1`, userID).Scan(
		&p.UserID, &p.Balance, &p.TotalEarned, &p.TotalSpent, &p.CachedLevel, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet profile: %w", err)
	}
	return &p, nil
}

// Get retrieves a user's profile. Returns ErrProfileNotFound if the user has
// never had an economic event.
func (r *WalletRepository) Get(ctx context.Context, userID int64) (*model.WalletProfile, error) {
	var p model.WalletProfile
	err := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM wallet_profiles WHERE user_id = $1`, userID).Scan(
		&p.UserID, &p.Balance, &p.TotalEarned, &p.TotalSpent, &p.CachedLevel, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get wallet profile: %w", err)
	}
	return &p, nil
}

// Credit adds amount to the user's balance and writes the ledger entry in
// one transaction.
func (r *WalletRepository) Credit(ctx context.Context, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := r.CreditTx(ctx, tx, userID, amount, kind, note, metadata)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit credit: %w", err)
	}
	return entry, nil
}

// CreditTx is Credit running inside a caller-owned transaction. Used by the
// reward engine to make a grant and its claim upsert atomic.
func (r *WalletRepository) CreditTx(ctx context.Context, tx pgx.Tx, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	if _, err := r.getOrCreate(ctx, tx, userID); err != nil {
		return nil, err
	}

	// Row lock serializes concurrent mutations of the same wallet.
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM wallet_profiles WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet profile: %w", err)
	}
	if amount > math.MaxInt64-balance {
		return nil, ErrBalanceOverflow
	}

	// cached_level is derived from total_earned in the same statement, so it
	// can never drift from the value it is derived from.
	_, err = tx.Exec(ctx, `
		UPDATE wallet_profiles
		SET balance = balance + $2,
		    total_earned = total_earned + $2,
		    cached_level = FLOOR(SQRT((total_earned + $2) / 100.0))::INT,
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	return r.insertEntry(ctx, tx, userID, amount, kind, note, metadata)
}

// Debit subtracts amount from the user's balance and writes the ledger entry
// in one transaction. Returns ErrInsufficientFunds when balance < amount;
// the balance never goes negative.
func (r *WalletRepository) Debit(ctx context.Context, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := r.DebitTx(ctx, tx, userID, amount, kind, note, metadata)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}
	return entry, nil
}

// DebitTx is Debit running inside a caller-owned transaction.
func (r *WalletRepository) DebitTx(ctx context.Context, tx pgx.Tx, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	if _, err := r.getOrCreate(ctx, tx, userID); err != nil {
		return nil, err
	}

	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM wallet_profiles WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet profile: %w", err)
	}
	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, `
		UPDATE wallet_profiles
		SET balance = balance - $2,
		    total_spent = total_spent + $2,
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	return r.insertEntry(ctx, tx, userID, -amount, kind, note, metadata)
}

func (r *WalletRepository) insertEntry(ctx context.Context, q Querier, userID, amount int64, kind, note string, metadata map[string]any) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := q.QueryRow(ctx, `
		INSERT INTO ledger_entries (user_id, amount, kind, note, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, user_id, amount, kind, note, metadata, created_at
	`, userID, amount, kind, note, metadata).Scan(
		&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.Note, &e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return &e, nil
}

// GetHistory returns one page of a user's ledger, newest first. The filter
// and the pagination parameters are applied to the count query and the data
// query identically; page numbers start at 1.
func (r *WalletRepository) GetHistory(ctx context.Context, userID int64, page, pageSize int, kindFilter string) (*model.HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	const where = `WHERE user_id = $1 AND ($2 = '' OR kind = $2)`

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, userID, kindFilter).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, kind, note, metadata, created_at
		FROM ledger_entries `+where+`
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, userID, kindFilter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.Note, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return &model.HistoryPage{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

// SumLedger returns the signed sum of all ledger entries for a user. Used to
// reconcile the balance snapshot against the ledger.
func (r *WalletRepository) SumLedger(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1
	`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, nil
}

// GetTopProfiles retrieves the top N profiles by balance.
func (r *WalletRepository) GetTopProfiles(ctx context.Context, limit int) ([]*model.WalletProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+` FROM wallet_profiles ORDER BY balance DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.WalletProfile
	for rows.Next() {
		var p model.WalletProfile
		err := rows.Scan(&p.UserID, &p.Balance, &p.TotalEarned, &p.TotalSpent, &p.CachedLevel, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}
