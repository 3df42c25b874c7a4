// Package reminders emails owners who have not written an entry for the current day.
package reminders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	"go.uber.org/zap"
)

var (
	errMissingDirectory = errors.New("reminders: directory is required")
	errMissingSender    = errors.New("reminders: sender is required")
)

// Directory lists reminder recipients and answers whether they wrote on a given day.
type Directory interface {
	ListRecipients(ctx context.Context) ([]diary.Recipient, error)
	HasEntryOn(ctx context.Context, ownerID diary.OwnerID, day calendar.Day) (bool, error)
}

// Reminder is a single notification addressed to an owner.
type Reminder struct {
	Address     string
	DisplayName string
}

// Sender delivers a reminder.
type Sender interface {
	Send(ctx context.Context, reminder Reminder) error
}

// SweeperConfig describes the dependencies of a Sweeper.
type SweeperConfig struct {
	Directory Directory
	Sender    Sender
	Clock     func() time.Time
	Location  *time.Location
	Logger    *zap.Logger
}

// Sweeper performs the daily existence check and reminder fan-out.
type Sweeper struct {
	directory Directory
	sender    Sender
	clock     func() time.Time
	location  *time.Location
	logger    *zap.Logger
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Day     calendar.Day
	Checked int
	Sent    int
	Failed  int
}

// NewSweeper validates the configuration and returns a Sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Directory == nil {
		return nil, errMissingDirectory
	}
	if cfg.Sender == nil {
		return nil, errMissingSender
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		directory: cfg.Directory,
		sender:    cfg.Sender,
		clock:     clock,
		location:  location,
		logger:    logger,
	}, nil
}

// Run reminds every owner without an entry for today. Only a failure to list the
// recipients aborts the sweep; lookup and delivery failures are logged per
// recipient and counted.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	today := calendar.Today(s.clock, s.location)
	result := SweepResult{Day: today}

	recipients, err := s.directory.ListRecipients(ctx)
	if err != nil {
		s.logger.Error("reminder sweep failed to list recipients", zap.Error(err))
		return result, err
	}

	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		written, err := s.directory.HasEntryOn(ctx, recipient.OwnerID, today)
		if err != nil {
			result.Failed++
			s.logger.Error("reminder entry lookup failed",
				zap.String("owner_id", recipient.OwnerID.String()),
				zap.Error(err))
			continue
		}
		if written {
			continue
		}

		reminder := Reminder{Address: recipient.Email, DisplayName: DisplayName(recipient.Email)}
		if err := s.sender.Send(ctx, reminder); err != nil {
			result.Failed++
			s.logger.Error("reminder delivery failed",
				zap.String("owner_id", recipient.OwnerID.String()),
				zap.String("address", recipient.Email),
				zap.Error(err))
			continue
		}
		result.Sent++
		s.logger.Info("reminder sent",
			zap.String("owner_id", recipient.OwnerID.String()),
			zap.String("address", recipient.Email))
	}

	s.logger.Info("reminder sweep completed",
		zap.String("day", today.String()),
		zap.Int("checked", result.Checked),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
	return result, nil
}

// DisplayName derives a greeting name from an address: the part before the @.
func DisplayName(address string) string {
	trimmed := strings.TrimSpace(address)
	if at := strings.Index(trimmed, "@"); at >= 0 {
		return trimmed[:at]
	}
	return trimmed
}
