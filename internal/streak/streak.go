// Package streak derives consecutive-day writing streaks from entry dates.
package streak

import (
	"slices"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/calendar"
)

// liveGapDays is the largest distance from today at which the leading run still counts.
const liveGapDays = 1

// Result holds the streak pair persisted onto an owner profile.
type Result struct {
	Current int `json:"currentStreak"`
	Longest int `json:"longestStreak"`
}

// Calculate returns the current and longest streak for the supplied entry dates.
// The dates may arrive in any order and may repeat; the walk runs over a
// descending, de-duplicated copy. The current streak is the run anchored at the
// most recent date and is only live when that date is today or yesterday.
func Calculate(dates []calendar.Day, today calendar.Day) Result {
	ordered := descendingUnique(dates)
	if len(ordered) == 0 {
		return Result{}
	}

	longest := 0
	leading := 0
	run := 1
	expected := ordered[0].AddDays(-1)
	for _, day := range ordered[1:] {
		if day == expected {
			run++
			expected = expected.AddDays(-1)
			continue
		}
		if leading == 0 {
			leading = run
		}
		longest = max(longest, run)
		run = 1
		expected = day.AddDays(-1)
	}
	if leading == 0 {
		leading = run
	}
	longest = max(longest, run)

	current := 0
	if today.DaysSince(ordered[0]) <= liveGapDays {
		current = leading
	}
	return Result{Current: current, Longest: longest}
}

func descendingUnique(dates []calendar.Day) []calendar.Day {
	ordered := make([]calendar.Day, 0, len(dates))
	for _, day := range dates {
		if !day.IsZero() {
			ordered = append(ordered, day)
		}
	}
	slices.SortFunc(ordered, func(a, b calendar.Day) int {
		return b.DaysSince(a)
	})
	return slices.Compact(ordered)
}
