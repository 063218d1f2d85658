package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source for "today" checks so tests can freeze
// the calendar via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for date validation. Pass nil to reset
// to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Today returns the current UTC calendar date at midnight.
func Today() time.Time {
	return truncateDay(clock.Now())
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
