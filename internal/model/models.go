// Package model defines the data models for the besitos economy bot.
package model

import (
	"time"

	"besitos-bot/internal/pkg/dayclock"
)

// WalletProfile is the per-user balance snapshot. The balance is never
// mutated without a matching LedgerEntry in the same database transaction,
// so balance == total_earned - total_spent == sum of the user's ledger.
type WalletProfile struct {
	UserID      int64     `db:"user_id"`
	Balance     int64     `db:"balance"`
	TotalEarned int64     `db:"total_earned"`
	TotalSpent  int64     `db:"total_spent"`
	CachedLevel int       `db:"cached_level"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// LedgerEntry is one immutable, signed balance change. Entries are never
// updated or deleted; corrections are new reversing entries.
type LedgerEntry struct {
	ID        int64          `db:"id"`
	UserID    int64          `db:"user_id"`
	Amount    int64          `db:"amount"` // positive = earn, negative = spend
	Kind      string         `db:"kind"`
	Note      string         `db:"note"`
	Metadata  map[string]any `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

// Ledger entry kinds.
const (
	KindReaction   = "reaction"
	KindDaily      = "daily_claim"
	KindStreak     = "streak"
	KindReward     = "reward"
	KindAdminGrant = "admin_grant"
	KindAdminDebit = "admin_debit"
	KindShopSpend  = "shop_spend"
)

// HistoryPage is one page of a user's ledger history. Total counts every
// entry matching the same filter as Entries, not just the current page.
type HistoryPage struct {
	Entries  []*LedgerEntry
	Total    int
	Page     int
	PageSize int
}

// Condition is one predicate inside a reward definition. Group 0 conditions
// are a global AND gate; conditions in the same positive group are ANDed,
// and positive groups are ORed against each other.
type Condition struct {
	Group     int    `json:"group"`
	Predicate string `json:"predicate"`
	Operand   int64  `json:"operand"`
}

// Predicates the eligibility evaluator understands. Conditions are data,
// never executable expressions.
const (
	PredBalanceGTE       = "balance_gte"
	PredTotalEarnedGTE   = "total_earned_gte"
	PredTotalSpentGTE    = "total_spent_gte"
	PredStreakDaysGTE    = "streak_days_gte"
	PredLongestStreakGTE = "longest_streak_gte"
	PredLevelGTE         = "level_gte"
)

// RewardDefinition is an admin-configured rule granting besitos or a VIP
// subscription extension when its conditions are met.
type RewardDefinition struct {
	ID               int64       `db:"id" json:"id"`
	Name             string      `db:"name" json:"name"`
	Conditions       []Condition `db:"conditions" json:"conditions"`
	IsRepeatable     bool        `db:"is_repeatable" json:"is_repeatable"`
	ClaimWindowHours int         `db:"claim_window_hours" json:"claim_window_hours"`
	RewardKind       string      `db:"reward_kind" json:"reward_kind"`
	RewardValue      int64       `db:"reward_value" json:"reward_value"`
	IsActive         bool        `db:"is_active" json:"is_active"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// Reward kinds.
const (
	RewardCurrency         = "currency"
	RewardSubscriptionDays = "subscription_days"
)

// RewardClaim tracks how often a user has claimed one reward. For
// non-repeatable rewards the row's existence blocks re-granting; for
// repeatable rewards LastClaimedAt anchors the next claim window.
type RewardClaim struct {
	UserID         int64     `db:"user_id"`
	RewardID       int64     `db:"reward_id"`
	FirstClaimedAt time.Time `db:"first_claimed_at"`
	LastClaimedAt  time.Time `db:"last_claimed_at"`
	ClaimCount     int       `db:"claim_count"`
}

// StreakState tracks consecutive activity days per user. LastActivityDay is
// a dayclock key, not a timestamp.
type StreakState struct {
	UserID            int64        `db:"user_id"`
	CurrentStreakDays int          `db:"current_streak_days"`
	LastActivityDay   dayclock.Key `db:"last_activity_day"`
	LongestStreakDays int          `db:"longest_streak_days"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

// Subscription is a user's VIP subscription. Extensions stack on an active
// subscription; a lapsed one restarts from the moment of the grant.
type Subscription struct {
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GrantedReward is the structured outcome of one successful reward grant.
// User-facing text is rendered by the presentation layer, never here.
type GrantedReward struct {
	RewardID  int64
	Name      string
	Kind      string
	Value     int64
	NewExpiry *time.Time // set for subscription rewards
}

// Event types the reward engine reacts to.
const (
	EventDailyClaim = "daily_claim"
	EventReaction   = "reaction"
	EventPurchase   = "purchase"
	EventStreak     = "streak"
	EventSweep      = "sweep"
)

// UserState is the snapshot the eligibility evaluator scores conditions
// against. It is assembled once per event and never mutated by evaluation.
type UserState struct {
	Balance       int64
	TotalEarned   int64
	TotalSpent    int64
	Level         int
	StreakDays    int
	LongestStreak int
}
