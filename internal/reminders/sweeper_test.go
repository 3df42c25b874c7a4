package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDirectory struct {
	recipients []diary.Recipient
	listErr    error
	written    map[diary.OwnerID]calendar.Day
	lookupErr  map[diary.OwnerID]error
}

func (d *stubDirectory) ListRecipients(context.Context) ([]diary.Recipient, error) {
	return d.recipients, d.listErr
}

func (d *stubDirectory) HasEntryOn(_ context.Context, ownerID diary.OwnerID, day calendar.Day) (bool, error) {
	if err := d.lookupErr[ownerID]; err != nil {
		return false, err
	}
	written, ok := d.written[ownerID]
	return ok && written == day, nil
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []Reminder
	failures map[string]error
}

func (s *recordingSender) Send(_ context.Context, reminder Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[reminder.Address]; err != nil {
		return err
	}
	s.sent = append(s.sent, reminder)
	return nil
}

func fixedClock(value time.Time) func() time.Time {
	return func() time.Time { return value }
}

func TestSweeperRemindsOnlyOwnersWithoutTodayEntry(t *testing.T) {
	now := time.Date(2024, time.June, 6, 20, 0, 0, 0, time.UTC)
	today := calendar.DayOf(now, time.UTC)
	directory := &stubDirectory{
		recipients: []diary.Recipient{
			{OwnerID: "wrote-today", Email: "diligent@example.com"},
			{OwnerID: "wrote-yesterday", Email: "lapsed@example.com"},
			{OwnerID: "never-wrote", Email: "new.writer@example.com"},
		},
		written: map[diary.OwnerID]calendar.Day{
			"wrote-today":     today,
			"wrote-yesterday": today.AddDays(-1),
		},
	}
	sender := &recordingSender{}
	sweeper, err := NewSweeper(SweeperConfig{
		Directory: directory,
		Sender:    sender,
		Clock:     fixedClock(now),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Day: today, Checked: 3, Sent: 2, Failed: 0}, result)
	assert.Equal(t, []Reminder{
		{Address: "lapsed@example.com", DisplayName: "lapsed"},
		{Address: "new.writer@example.com", DisplayName: "new.writer"},
	}, sender.sent)
}

func TestSweeperContinuesPastFailures(t *testing.T) {
	now := time.Date(2024, time.June, 6, 20, 0, 0, 0, time.UTC)
	directory := &stubDirectory{
		recipients: []diary.Recipient{
			{OwnerID: "bounce", Email: "bounce@example.com"},
			{OwnerID: "broken-lookup", Email: "lookup@example.com"},
			{OwnerID: "fine", Email: "fine@example.com"},
		},
		lookupErr: map[diary.OwnerID]error{"broken-lookup": errors.New("store offline")},
	}
	sender := &recordingSender{failures: map[string]error{"bounce@example.com": errors.New("mailbox full")}}
	sweeper, err := NewSweeper(SweeperConfig{Directory: directory, Sender: sender, Clock: fixedClock(now)})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "fine@example.com", sender.sent[0].Address)
}

func TestSweeperUsesConfiguredTimezoneForToday(t *testing.T) {
	now := time.Date(2024, time.June, 6, 23, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)
	directory := &stubDirectory{
		recipients: []diary.Recipient{{OwnerID: "owner", Email: "owner@example.com"}},
		written:    map[diary.OwnerID]calendar.Day{"owner": calendar.NewDay(2024, time.June, 6)},
	}
	sender := &recordingSender{}
	sweeper, err := NewSweeper(SweeperConfig{Directory: directory, Sender: sender, Clock: fixedClock(now), Location: tokyo})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2024-06-07", result.Day.String())
	assert.Equal(t, 1, result.Sent)
}

func TestSweeperFailsWhenRecipientsUnavailable(t *testing.T) {
	listErr := errors.New("store offline")
	sweeper, err := NewSweeper(SweeperConfig{
		Directory: &stubDirectory{listErr: listErr},
		Sender:    &recordingSender{},
	})
	require.NoError(t, err)

	_, err = sweeper.Run(context.Background())
	assert.ErrorIs(t, err, listErr)
}

func TestNewSweeperRequiresCollaborators(t *testing.T) {
	_, err := NewSweeper(SweeperConfig{Sender: &recordingSender{}})
	assert.ErrorIs(t, err, errMissingDirectory)

	_, err = NewSweeper(SweeperConfig{Directory: &stubDirectory{}})
	assert.ErrorIs(t, err, errMissingSender)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "user", DisplayName("user@dailydiary.com"))
	assert.Equal(t, "first.last", DisplayName(" first.last@example.com "))
	assert.Equal(t, "", DisplayName("@example.com"))
	assert.Equal(t, "plain", DisplayName("plain"))
}
