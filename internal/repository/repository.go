// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrProfileNotFound   = errors.New("wallet profile not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrRewardNotFound    = errors.New("reward definition not found")
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx. Methods
// that must run inside a caller-owned transaction accept a Querier so the
// reward engine can compose a credit, a subscription extension and a claim
// upsert into one atomic unit.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
