// Package dayclock is the single authority for calendar-day arithmetic.
// Every component that reasons about "today" or "yesterday" (daily claims,
// streak continuity, background sweeps) converts timestamps through this
// package, so interactive requests and cron jobs can never disagree on where
// a day boundary falls. All day math is UTC.
package dayclock

import "time"

const secondsPerDay = 24 * 60 * 60

// Key identifies one UTC calendar day as the number of whole days since the
// Unix epoch. Keys are stored directly in the database (streak_states,
// action_records), which makes "same day" and "next day" integer comparisons.
type Key int64

// At returns the day key for the given instant.
func At(t time.Time) Key {
	return Key(t.UTC().Unix() / secondsPerDay)
}

// Today returns the day key for the current instant.
func Today() Key {
	return At(time.Now())
}

// IsConsecutive reports whether curr is exactly the day after prev.
func IsConsecutive(prev, curr Key) bool {
	return curr == prev+1
}

// Prev returns the key of the preceding day.
func (k Key) Prev() Key {
	return k - 1
}

// Time returns midnight UTC of the day the key identifies.
func (k Key) Time() time.Time {
	return time.Unix(int64(k)*secondsPerDay, 0).UTC()
}

// String formats the key as a calendar date, e.g. "2026-08-29".
func (k Key) String() string {
	return k.Time().Format("2006-01-02")
}

// NextStreak computes the streak transition for an activity event on day curr,
// given the previous activity day and streak length. A zero prevStreak means
// the user has no streak yet.
//
// Same-day re-triggers are idempotent. A gap of two or more days restarts the
// streak at 1, not 0: the triggering event itself is day one of the new run.
func NextStreak(prevDay Key, prevStreak int, curr Key) (streak int, changed bool) {
	switch {
	case prevStreak > 0 && curr == prevDay:
		return prevStreak, false
	case prevStreak > 0 && IsConsecutive(prevDay, curr):
		return prevStreak + 1, true
	default:
		return 1, true
	}
}
