package diary

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageLimit      = 10
	maxPageLimit          = 100
	defaultMoodWindowDays = 30
	maxMoodWindowDays     = 366
	minCalendarYear       = 1
	maxCalendarYear       = 9999
)

// UpsertEntry writes today's entry for the owner, replacing the content and mood of an
// existing one, and then recomputes the owner's streak from the full history. A failed
// recomputation does not undo the write; the result then carries the last persisted
// streak marked as degraded.
func (s *Service) UpsertEntry(ctx context.Context, ownerID OwnerID, content string, mood Mood) (UpsertResult, error) {
	if err := s.ready(opUpsertEntry); err != nil {
		return UpsertResult{}, err
	}
	if ownerID == "" {
		return UpsertResult{}, ErrInvalidOwnerID
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return UpsertResult{}, ErrEmptyContent
	}
	validMood, err := ParseMood(string(mood))
	if err != nil {
		return UpsertResult{}, err
	}

	today := s.Today().String()
	var result UpsertResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadProfile(tx, opUpsertEntry, ownerID); err != nil {
			return err
		}

		entryID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opUpsertEntry, "id_generation_failed", err, zap.String("owner_id", ownerID.String()))
			return newServiceError(opUpsertEntry, "id_generation_failed", err)
		}
		now := s.now()
		candidate := Entry{
			EntryID:   entryID,
			OwnerID:   ownerID.String(),
			EntryDate: today,
			Content:   text,
			Mood:      validMood,
			CreatedAt: now,
			UpdatedAt: now,
		}
		// A concurrent writer for the same day turns the insert into an update.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: fieldOwnerID}, {Name: fieldEntryDate}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "mood", "updated_at"}),
		}).Create(&candidate).Error; err != nil {
			s.logError(opUpsertEntry, "entry_upsert_failed", err,
				zap.String("owner_id", ownerID.String()),
				zap.String("entry_date", today))
			return newServiceError(opUpsertEntry, "entry_upsert_failed", err)
		}

		var stored Entry
		if err := tx.Where(queryOwnerDate, ownerID.String(), today).Take(&stored).Error; err != nil {
			s.logError(opUpsertEntry, "entry_select_failed", err,
				zap.String("owner_id", ownerID.String()),
				zap.String("entry_date", today))
			return newServiceError(opUpsertEntry, "entry_select_failed", err)
		}
		result.Entry = stored
		result.Created = stored.EntryID == entryID
		return nil
	})
	if txErr != nil {
		return UpsertResult{}, txErr
	}

	result.Streak = s.refreshStreak(ctx, ownerID)
	return result, nil
}

// TodayEntry returns the owner's entry for the current calendar day.
func (s *Service) TodayEntry(ctx context.Context, ownerID OwnerID) (Entry, error) {
	return s.EntryForDate(ctx, ownerID, s.Today())
}

// EntryForDate returns the owner's entry for the given day.
func (s *Service) EntryForDate(ctx context.Context, ownerID OwnerID, day calendar.Day) (Entry, error) {
	if err := s.ready(opEntryForDate); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err := s.db.WithContext(ctx).
		Where(queryOwnerDate, ownerID.String(), day.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, newServiceError(opEntryForDate, "entry_not_found", ErrEntryNotFound)
	}
	if err != nil {
		s.logError(opEntryForDate, reasonQueryFailed, err,
			zap.String("owner_id", ownerID.String()),
			zap.String("entry_date", day.String()))
		return Entry{}, newServiceError(opEntryForDate, reasonQueryFailed, err)
	}
	return entry, nil
}

// HasEntryOn reports whether the owner wrote an entry on the given day.
func (s *Service) HasEntryOn(ctx context.Context, ownerID OwnerID, day calendar.Day) (bool, error) {
	if err := s.ready(opHasEntryOn); err != nil {
		return false, err
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where(queryOwnerDate, ownerID.String(), day.String()).
		Count(&count).Error; err != nil {
		s.logError(opHasEntryOn, reasonQueryFailed, err, zap.String("owner_id", ownerID.String()))
		return false, newServiceError(opHasEntryOn, reasonQueryFailed, err)
	}
	return count > 0, nil
}

// ListEntries returns one page of the owner's entries, newest first. Non-positive
// page and limit values fall back to the first page of ten.
func (s *Service) ListEntries(ctx context.Context, ownerID OwnerID, page, limit int) (EntryPage, error) {
	if err := s.ready(opListEntries); err != nil {
		return EntryPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&Entry{}).Where(queryOwner, ownerID.String()).Count(&total).Error; err != nil {
		s.logError(opListEntries, "count_failed", err, zap.String("owner_id", ownerID.String()))
		return EntryPage{}, newServiceError(opListEntries, "count_failed", err)
	}

	entries := make([]Entry, 0, limit)
	if err := db.
		Where(queryOwner, ownerID.String()).
		Order(orderDateDesc).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error; err != nil {
		s.logError(opListEntries, reasonQueryFailed, err, zap.String("owner_id", ownerID.String()))
		return EntryPage{}, newServiceError(opListEntries, reasonQueryFailed, err)
	}

	return EntryPage{
		Entries:    entries,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// CalendarMonth returns the date and mood of every entry in the given month.
func (s *Service) CalendarMonth(ctx context.Context, ownerID OwnerID, year int, month time.Month) ([]MoodMark, error) {
	if err := s.ready(opCalendarMonth); err != nil {
		return nil, err
	}
	if year < minCalendarYear || year > maxCalendarYear || month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidMonth, year, month)
	}

	first, last := calendar.MonthRange(year, month)
	return s.moodMarks(ctx, opCalendarMonth, ownerID, first, last)
}

// MoodHistory returns the date and mood of the owner's entries over the trailing
// window of days ending today, oldest first.
func (s *Service) MoodHistory(ctx context.Context, ownerID OwnerID, days int) ([]MoodMark, error) {
	if err := s.ready(opMoodHistory); err != nil {
		return nil, err
	}
	if days < 1 {
		days = defaultMoodWindowDays
	}
	days = min(days, maxMoodWindowDays)

	today := s.Today()
	return s.moodMarks(ctx, opMoodHistory, ownerID, today.AddDays(-days), today)
}

func (s *Service) moodMarks(ctx context.Context, operation string, ownerID OwnerID, first, last calendar.Day) ([]MoodMark, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Select(fieldEntryDate, "mood").
		Where(queryOwnerDateSpan, ownerID.String(), first.String(), last.String()).
		Order(orderDateAsc).
		Find(&entries).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("owner_id", ownerID.String()))
		return nil, newServiceError(operation, reasonQueryFailed, err)
	}

	marks := make([]MoodMark, 0, len(entries))
	for _, entry := range entries {
		day, err := entry.Day()
		if err != nil {
			s.loggerOrDefault().Warn("skipping entry with malformed date",
				zap.String("operation", operation),
				zap.String("owner_id", ownerID.String()),
				zap.String("entry_date", entry.EntryDate))
			continue
		}
		marks = append(marks, MoodMark{Date: day, Mood: entry.Mood})
	}
	return marks, nil
}
