package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"besitos-bot/internal/model"
	"besitos-bot/internal/pkg/dayclock"
	"besitos-bot/internal/repository"
)

// StreakService records qualifying activity against the day clock. It holds
// no day arithmetic of its own: all transitions go through dayclock, the
// same authority the background sweep uses.
type StreakService struct {
	streaks *repository.StreakRepository
}

// NewStreakService creates a new StreakService instance.
func NewStreakService(streaks *repository.StreakRepository) *StreakService {
	return &StreakService{streaks: streaks}
}

// RecordActivity registers activity at the given instant. Same-day
// re-triggers are idempotent (advanced=false); a consecutive day increments
// the streak; a gap restarts it at 1. Callers fire the streak event into the
// reward engine when advanced is true.
func (s *StreakService) RecordActivity(ctx context.Context, userID int64, at time.Time) (*model.StreakState, bool, error) {
	day := dayclock.At(at)

	state, err := s.streaks.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	next, changed := dayclock.NextStreak(state.LastActivityDay, state.CurrentStreakDays, day)
	if !changed {
		return state, false, nil
	}

	saved, err := s.streaks.Save(ctx, userID, next, day)
	if err != nil {
		return nil, false, err
	}

	log.Debug().
		Int64("user_id", userID).
		Int("streak", saved.CurrentStreakDays).
		Str("day", day.String()).
		Msg("Streak advanced")
	return saved, true, nil
}

// Get returns the user's streak state.
func (s *StreakService) Get(ctx context.Context, userID int64) (*model.StreakState, error) {
	return s.streaks.Get(ctx, userID)
}

// ExpireBroken zeroes streaks broken by inactivity: anyone whose last
// activity is before yesterday can no longer continue their run. Called
// from the background sweep with the same day keys interactive updates use.
func (s *StreakService) ExpireBroken(ctx context.Context, today dayclock.Key) (int64, error) {
	return s.streaks.ExpireBroken(ctx, today.Prev())
}

// ActiveOn lists users with activity on the given day.
func (s *StreakService) ActiveOn(ctx context.Context, day dayclock.Key) ([]int64, error) {
	return s.streaks.ActiveOn(ctx, day)
}
