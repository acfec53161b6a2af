// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"

	"besitos-bot/internal/model"
)

// ErrInvalidRewardDefinition is returned when a definition's condition data
// is malformed. Definitions are validated at configuration time so bad data
// never reaches evaluation.
var ErrInvalidRewardDefinition = errors.New("invalid reward definition")

// EvaluateConditions decides whether a condition set is satisfied for the
// given user state. Pure function: no side effects, no I/O, safe to call
// speculatively.
//
// Group 0 is the global gate: all of its conditions must hold, and an empty
// gate is vacuously true. Conditions inside a positive group are ANDed;
// positive groups are ORed against each other. With no positive groups the
// gate alone decides, so a definition with only group-0 conditions is a pure
// AND and a definition with zero conditions is always eligible.
func EvaluateConditions(conds []model.Condition, state model.UserState) (bool, error) {
	gate := true
	positive := make(map[int]bool)

	for _, c := range conds {
		if c.Group < 0 {
			return false, fmt.Errorf("%w: negative group %d", ErrInvalidRewardDefinition, c.Group)
		}
		ok, err := predicateHolds(c, state)
		if err != nil {
			return false, err
		}
		if c.Group == 0 {
			gate = gate && ok
			continue
		}
		if prev, seen := positive[c.Group]; seen {
			positive[c.Group] = prev && ok
		} else {
			positive[c.Group] = ok
		}
	}

	if !gate {
		return false, nil
	}
	if len(positive) == 0 {
		return true, nil
	}
	for _, ok := range positive {
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// predicateHolds interprets one condition against the user state. The
// predicate set is closed: conditions are data, never executable expressions.
func predicateHolds(c model.Condition, state model.UserState) (bool, error) {
	switch c.Predicate {
	case model.PredBalanceGTE:
		return state.Balance >= c.Operand, nil
	case model.PredTotalEarnedGTE:
		return state.TotalEarned >= c.Operand, nil
	case model.PredTotalSpentGTE:
		return state.TotalSpent >= c.Operand, nil
	case model.PredStreakDaysGTE:
		return int64(state.StreakDays) >= c.Operand, nil
	case model.PredLongestStreakGTE:
		return int64(state.LongestStreak) >= c.Operand, nil
	case model.PredLevelGTE:
		return int64(state.Level) >= c.Operand, nil
	default:
		return false, fmt.Errorf("%w: unknown predicate %q", ErrInvalidRewardDefinition, c.Predicate)
	}
}

// ValidateConditions rejects malformed condition sets at configuration time.
func ValidateConditions(conds []model.Condition) error {
	for i, c := range conds {
		if c.Group < 0 {
			return fmt.Errorf("%w: condition %d has negative group %d", ErrInvalidRewardDefinition, i, c.Group)
		}
		if c.Operand < 0 {
			return fmt.Errorf("%w: condition %d has negative operand %d", ErrInvalidRewardDefinition, i, c.Operand)
		}
		if _, err := predicateHolds(c, model.UserState{}); err != nil {
			return fmt.Errorf("%w: condition %d has unknown predicate %q", ErrInvalidRewardDefinition, i, c.Predicate)
		}
	}
	return nil
}
