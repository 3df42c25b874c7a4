package diary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
)

// Mood enumerates the closed set of moods an entry may carry.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
	MoodAngry   Mood = "angry"
	MoodTired   Mood = "tired"
)

const (
	maxIdentifierLength = 190
	maxEmailLength      = 320
)

var (
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("diary: invalid owner id")
	// ErrInvalidMood indicates a mood outside the supported set.
	ErrInvalidMood = errors.New("diary: invalid mood")
	// ErrEmptyContent indicates an entry without any text.
	ErrEmptyContent = errors.New("diary: entry content is required")
	// ErrInvalidEmail indicates an unusable owner contact address.
	ErrInvalidEmail = errors.New("diary: invalid email")
	// ErrInvalidMonth indicates a calendar month request outside 1..12 or an unusable year.
	ErrInvalidMonth = errors.New("diary: invalid year or month")
	// ErrOwnerNotFound indicates that no profile exists for the owner.
	ErrOwnerNotFound = errors.New("diary: owner not found")
	// ErrEntryNotFound indicates that the owner has no entry for the requested day.
	ErrEntryNotFound = errors.New("diary: entry not found")
)

var supportedMoods = []Mood{MoodHappy, MoodNeutral, MoodSad, MoodAngry, MoodTired}

// Moods returns the supported moods in display order.
func Moods() []Mood {
	return append([]Mood(nil), supportedMoods...)
}

// ParseMood validates raw input and returns a Mood.
func ParseMood(rawInput string) (Mood, error) {
	candidate := Mood(strings.ToLower(strings.TrimSpace(rawInput)))
	for _, mood := range supportedMoods {
		if candidate == mood {
			return mood, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMood, rawInput)
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

func normalizeEmail(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	at := strings.Index(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	if len(trimmed) > maxEmailLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEmail, maxEmailLength)
	}
	return trimmed, nil
}

// Entry is the persisted diary entry; at most one exists per owner and day.
type Entry struct {
	EntryID   string    `gorm:"column:entry_id;primaryKey;size:64;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;uniqueIndex:idx_entries_owner_date,priority:1"`
	EntryDate string    `gorm:"column:entry_date;size:10;not null;uniqueIndex:idx_entries_owner_date,priority:2"`
	Content   string    `gorm:"column:content;type:text;not null"`
	Mood      Mood      `gorm:"column:mood;size:16;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "diary_entries"
}

// Day returns the parsed calendar day of the entry.
func (e Entry) Day() (calendar.Day, error) {
	return calendar.ParseDay(e.EntryDate)
}

// Profile carries the owner's contact address and the embedded streak state.
type Profile struct {
	OwnerID          string     `gorm:"column:owner_id;primaryKey;size:190;not null"`
	Email            string     `gorm:"column:email;size:320;not null"`
	CurrentStreak    int        `gorm:"column:current_streak;not null;default:0"`
	LongestStreak    int        `gorm:"column:longest_streak;not null;default:0"`
	StreakComputedAt *time.Time `gorm:"column:streak_computed_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "owner_profiles"
}

// Streak returns the streak state last persisted on the profile.
func (p Profile) Streak() StreakState {
	return StreakState{Current: p.CurrentStreak, Longest: p.LongestStreak}
}

// StreakState is the streak pair returned to callers. Degraded marks a value
// that could not be recomputed and reflects the last persisted state instead.
type StreakState struct {
	Current  int
	Longest  int
	Degraded bool
}

// MoodMark is the date and mood summary used by calendar and chart views.
type MoodMark struct {
	Date calendar.Day
	Mood Mood
}

// Recipient is an owner eligible for daily reminders.
type Recipient struct {
	OwnerID OwnerID
	Email   string
}

// EntryPage is one page of entries ordered newest first.
type EntryPage struct {
	Entries    []Entry
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// UpsertResult captures the stored entry and the streak recomputed after the write.
type UpsertResult struct {
	Entry   Entry
	Created bool
	Streak  StreakState
}
