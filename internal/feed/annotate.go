package feed

import (
	"errors"

	"github.com/ageapps/chatfeed/internal/chat"
)

// ErrEmptySequence is returned when an activity record arrives live before
// any record is displayed; it has nothing to collapse against.
var ErrEmptySequence = errors.New("activity on empty display sequence")

// Entry is a record plus the flags derived for display.
type Entry struct {
	Message chat.Message
	// Text is the display text; it carries mention markup once
	// MentionHighlighted is set.
	Text               string
	Collapse           bool
	OtherDay           bool
	MentionHighlighted bool
}

// NewEntry wraps msg with no derived flags.
func NewEntry(msg chat.Message) Entry {
	return Entry{Message: msg, Text: msg.Text}
}

// ID returns the record id.
func (e Entry) ID() string {
	return e.Message.ID
}

// Build wraps time-sorted messages and annotates them.
func (r Rules) Build(messages []chat.Message) []Entry {
	entries := make([]Entry, len(messages))
	for i, msg := range messages {
		entries[i] = NewEntry(msg)
	}
	return r.Annotate(entries)
}

// Annotate recomputes collapse and day-boundary flags in one left-to-right
// pass over adjacent pairs and highlights mentions of entries not yet
// highlighted. The input slice is not modified. Running Annotate on its own
// output returns an equal slice.
func (r Rules) Annotate(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	if len(out) == 0 {
		return out
	}

	for i := range out {
		out[i].Collapse = false
		out[i].OtherDay = false
	}
	out[0].OtherDay = true

	for i := 0; i < len(out)-1; i++ {
		prev, next := out[i].Message, out[i+1].Message
		out[i+1].Collapse = r.collapses(prev, next)
		out[i+1].OtherDay = !r.SameDay(prev.Time, next.Time)
	}

	for i := range out {
		out[i] = r.highlight(out[i])
	}
	return out
}

// Append applies the adjacency rules against the current last entry only
// and returns a new slice with msg appended. Activity records on an empty
// sequence return ErrEmptySequence and the sequence unchanged.
func (r Rules) Append(entries []Entry, msg chat.Message) ([]Entry, error) {
	next := NewEntry(msg)
	if len(entries) == 0 {
		if msg.IsActivity() {
			return entries, ErrEmptySequence
		}
		next.OtherDay = true
		return []Entry{r.highlight(next)}, nil
	}

	last := entries[len(entries)-1].Message
	if msg.IsActivity() {
		next.Collapse = r.activityCollapses(last, msg)
	} else {
		next.Collapse = r.chatCollapses(last, msg)
	}
	next.OtherDay = !r.SameDay(last.Time, msg.Time)

	// Full slice expression forces a copy so callers holding the old
	// sequence never see the new entry.
	return append(entries[:len(entries):len(entries)], r.highlight(next)), nil
}

func (r Rules) collapses(prev, next chat.Message) bool {
	if r.chatCollapses(prev, next) {
		return true
	}
	return r.activityCollapses(prev, next)
}

func (r Rules) chatCollapses(prev, next chat.Message) bool {
	if !prev.HasSender() || prev.From != next.From {
		return false
	}
	if prev.IsActivity() || next.IsActivity() {
		return false
	}
	return r.WithinCollapseWindow(prev.Time, next.Time)
}

func (r Rules) activityCollapses(prev, next chat.Message) bool {
	return prev.IsActivity() && next.IsActivity() && r.SameDay(prev.Time, next.Time)
}
