package diary

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "diary.service.new"
	opRegisterOwner    = "diary.register_owner"
	opProfile          = "diary.profile"
	opUpsertEntry      = "diary.upsert_entry"
	opRecomputeStreak  = "diary.recompute_streak"
	opEntryForDate     = "diary.entry_for_date"
	opListEntries      = "diary.list_entries"
	opCalendarMonth    = "diary.calendar_month"
	opMoodHistory      = "diary.mood_history"
	opListRecipients   = "diary.list_recipients"
	opHasEntryOn       = "diary.has_entry_on"
	fieldOwnerID       = "owner_id"
	fieldEntryDate     = "entry_date"
	queryOwner         = fieldOwnerID + " = ?"
	queryOwnerDate     = fieldOwnerID + " = ? AND " + fieldEntryDate + " = ?"
	queryOwnerDateSpan = fieldOwnerID + " = ? AND " + fieldEntryDate + " >= ? AND " + fieldEntryDate + " <= ?"
	orderDateDesc      = fieldEntryDate + " DESC"
	orderDateAsc       = fieldEntryDate + " ASC"
	reasonMissingDB    = "missing_database"
	reasonQueryFailed  = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the diary service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Location   *time.Location
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns diary entries and the owner profiles their streaks are persisted on.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	location   *time.Location
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		location:   location,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Today returns the current calendar day in the service's timezone.
func (s *Service) Today() calendar.Day {
	return calendar.Today(s.clock, s.location)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("diary service error", attrs...)
}
