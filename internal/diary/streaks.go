package diary

import (
	"context"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/streak"
	"go.uber.org/zap"
)

// RecomputeStreak derives the owner's streak from the complete entry history and
// persists it onto the profile.
func (s *Service) RecomputeStreak(ctx context.Context, ownerID OwnerID) (StreakState, error) {
	if err := s.ready(opRecomputeStreak); err != nil {
		return StreakState{}, err
	}

	dates, err := s.entryDates(ctx, ownerID)
	if err != nil {
		return StreakState{}, err
	}

	result := streak.Calculate(dates, s.Today())
	computedAt := s.now()
	update := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where(queryOwner, ownerID.String()).
		Updates(map[string]interface{}{
			"current_streak":     result.Current,
			"longest_streak":     result.Longest,
			"streak_computed_at": computedAt,
			"updated_at":         computedAt,
		})
	if update.Error != nil {
		s.logError(opRecomputeStreak, "profile_update_failed", update.Error, zap.String("owner_id", ownerID.String()))
		return StreakState{}, newServiceError(opRecomputeStreak, "profile_update_failed", update.Error)
	}
	if update.RowsAffected == 0 {
		return StreakState{}, newServiceError(opRecomputeStreak, "owner_not_found", ErrOwnerNotFound)
	}

	return StreakState{Current: result.Current, Longest: result.Longest}, nil
}

// entryDates returns the owner's entry days, newest first.
func (s *Service) entryDates(ctx context.Context, ownerID OwnerID) ([]calendar.Day, error) {
	var rawDates []string
	if err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where(queryOwner, ownerID.String()).
		Order(orderDateDesc).
		Pluck(fieldEntryDate, &rawDates).Error; err != nil {
		s.logError(opRecomputeStreak, "dates_query_failed", err, zap.String("owner_id", ownerID.String()))
		return nil, newServiceError(opRecomputeStreak, "dates_query_failed", err)
	}

	dates := make([]calendar.Day, 0, len(rawDates))
	for _, raw := range rawDates {
		day, err := calendar.ParseDay(raw)
		if err != nil {
			s.loggerOrDefault().Warn("skipping entry with malformed date",
				zap.String("operation", opRecomputeStreak),
				zap.String("owner_id", ownerID.String()),
				zap.String("entry_date", raw))
			continue
		}
		dates = append(dates, day)
	}
	return dates, nil
}

// refreshStreak recomputes the streak after a write. Failures are logged and the
// last persisted streak is returned as degraded, zeroed when even that is unreadable.
func (s *Service) refreshStreak(ctx context.Context, ownerID OwnerID) StreakState {
	state, err := s.RecomputeStreak(ctx, ownerID)
	if err == nil {
		return state
	}

	s.loggerOrDefault().Warn("streak recomputation failed; serving last known streak",
		zap.String("owner_id", ownerID.String()),
		zap.Error(err))

	profile, profileErr := s.loadProfile(s.db.WithContext(ctx), opRecomputeStreak, ownerID)
	if profileErr != nil {
		return StreakState{Degraded: true}
	}
	stale := profile.Streak()
	stale.Degraded = true
	return stale
}
