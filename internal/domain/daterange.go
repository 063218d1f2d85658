package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in FIRMS paths.
const DateLayout = "2006-01-02"

// DefaultMaxSpan is the largest day range FIRMS accepts in a single request.
const DefaultMaxSpan = 10

// DateWindow is an inclusive range of UTC calendar dates.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered, counting both ends.
func (w DateWindow) Days() int {
	return int(truncateDay(w.End).Sub(truncateDay(w.Start)).Hours()/24) + 1
}

func (w DateWindow) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

// Contains reports whether every day of other lies within w.
func (w DateWindow) Contains(other DateWindow) bool {
	return !w.Start.After(other.Start) && !other.End.After(w.End)
}

// DateSegment is one contiguous sub-interval of a DateWindow.
type DateSegment = DateWindow

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, Wrap(KindInvalidDateRange, err, "date format must be YYYY-MM-DD")
	}
	return t, nil
}

// NewDateWindow validates caller dates. A blank start or end defaults to
// today; the window must be ordered and must not end after today.
func NewDateWindow(start, end string) (DateWindow, error) {
	today := Today()
	w := DateWindow{Start: today, End: today}

	if strings.TrimSpace(start) != "" {
		t, err := ParseDate(start)
		if err != nil {
			return DateWindow{}, err
		}
		w.Start = t
	}
	if strings.TrimSpace(end) != "" {
		t, err := ParseDate(end)
		if err != nil {
			return DateWindow{}, err
		}
		w.End = t
	}

	if w.Start.After(w.End) {
		return DateWindow{}, Errorf(KindInvalidDateRange, "start date %s must not be later than end date %s",
			w.Start.Format(DateLayout), w.End.Format(DateLayout))
	}
	if w.End.After(today) {
		return DateWindow{}, Errorf(KindInvalidDateRange, "end date %s cannot exceed today (%s)",
			w.End.Format(DateLayout), today.Format(DateLayout))
	}
	return w, nil
}

// Partition splits w into consecutive segments of at most maxSpan days, in
// chronological order. Segments never overlap and cover w exactly.
func Partition(w DateWindow, maxSpan int) ([]DateSegment, error) {
	if maxSpan < 1 {
		return nil, Errorf(KindInvalidDateRange, "max span must be at least 1 day, got %d", maxSpan)
	}
	if w.Start.After(w.End) {
		return nil, Errorf(KindInvalidDateRange, "start date %s is after end date %s",
			w.Start.Format(DateLayout), w.End.Format(DateLayout))
	}

	start, end := truncateDay(w.Start), truncateDay(w.End)
	segments := make([]DateSegment, 0, w.Days()/maxSpan+1)
	for cur := start; !cur.After(end); {
		segEnd := cur.AddDate(0, 0, maxSpan-1)
		if segEnd.After(end) {
			segEnd = end
		}
		segments = append(segments, DateSegment{Start: cur, End: segEnd})
		cur = segEnd.AddDate(0, 0, 1)
	}
	return segments, nil
}
