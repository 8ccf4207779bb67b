// Package feed turns raw chat records into an ordered, annotated display
// sequence: collapse flags, day boundaries and mention highlighting.
package feed

import (
	"fmt"
	"strings"
	"time"
)

// DefaultCollapseWindow is the maximum gap between two messages from the same
// sender for the second one to collapse into the first.
const DefaultCollapseWindow = 2 * time.Minute

// DayMatch selects how two instants are judged to fall on the same day.
type DayMatch int

const (
	// DayOfMonth compares only the day-of-month, ignoring month and year.
	// 31 January and 31 March match. Kept as the default for compatibility
	// with existing feeds.
	DayOfMonth DayMatch = iota
	// CalendarDate compares year, month and day.
	CalendarDate
)

func (d DayMatch) String() string {
	switch d {
	case DayOfMonth:
		return "day-of-month"
	case CalendarDate:
		return "calendar"
	default:
		return fmt.Sprintf("DayMatch(%d)", int(d))
	}
}

// ParseDayMatch parses the config spelling of a DayMatch.
func ParseDayMatch(raw string) (DayMatch, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "day-of-month", "day_of_month", "legacy":
		return DayOfMonth, nil
	case "calendar", "calendar-date", "date":
		return CalendarDate, nil
	default:
		return DayOfMonth, fmt.Errorf("unknown day match mode %q", raw)
	}
}

// Rules holds the tunables of the annotation pipeline.
type Rules struct {
	// CollapseWindow is compared against the elapsed time truncated to
	// whole minutes. Zero means DefaultCollapseWindow.
	CollapseWindow time.Duration
	DayMatch       DayMatch
	// Location converts both instants before day comparison. Nil compares
	// each instant in its own location.
	Location *time.Location
	// MentionMarkup wraps a matched "@name" token. Nil uses HTMLMention.
	MentionMarkup func(token string) string
}

// DefaultRules returns the rules the widget shipped with.
func DefaultRules() Rules {
	return Rules{
		CollapseWindow: DefaultCollapseWindow,
		DayMatch:       DayOfMonth,
		MentionMarkup:  HTMLMention,
	}
}

// HTMLMention wraps token in the mention span used by the web widget.
func HTMLMention(token string) string {
	return "<span class='mention'>" + token + "</span>"
}

// WrapMention builds a MentionMarkup func from fixed open and close strings.
func WrapMention(open, closing string) func(string) string {
	return func(token string) string {
		return open + token + closing
	}
}

func (r Rules) window() time.Duration {
	if r.CollapseWindow <= 0 {
		return DefaultCollapseWindow
	}
	return r.CollapseWindow
}

func (r Rules) markup() func(string) string {
	if r.MentionMarkup == nil {
		return HTMLMention
	}
	return r.MentionMarkup
}

func (r Rules) in(t time.Time) time.Time {
	if r.Location == nil {
		return t
	}
	return t.In(r.Location)
}

// SameDay reports whether a and b fall on the same day under r.DayMatch.
func (r Rules) SameDay(a, b time.Time) bool {
	a, b = r.in(a), r.in(b)
	if r.DayMatch == CalendarDate {
		return SameCalendarDay(a, b)
	}
	return SameDay(a, b)
}

// WithinCollapseWindow reports whether a and b are on the same day and the
// elapsed whole minutes between them are strictly below the collapse window.
func (r Rules) WithinCollapseWindow(a, b time.Time) bool {
	if !r.SameDay(a, b) {
		return false
	}
	elapsed := b.Sub(a)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	return elapsed.Truncate(time.Minute) < r.window()
}

// SameDay compares only the day-of-month of a and b, each in its own location.
func SameDay(a, b time.Time) bool {
	return a.Day() == b.Day()
}

// SameCalendarDay compares year, month and day of a and b, each in its own
// location.
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WithinCollapseWindow applies DefaultRules.
func WithinCollapseWindow(a, b time.Time) bool {
	return DefaultRules().WithinCollapseWindow(a, b)
}
