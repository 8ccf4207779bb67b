package session

import "time"

const (
	DefaultReadingFactor = 1.5
	DefaultEdgeDelay     = 250 * time.Millisecond
)

// Metrics are the scroll metrics reported by the surface, in whatever unit
// the surface scrolls by (pixels, lines).
type Metrics struct {
	ScrollTop    int
	ScrollHeight int
	ClientHeight int
}

// IntentKind is the scroll action requested from the surface.
type IntentKind int

const (
	ScrollNone IntentKind = iota
	ScrollToEdge
	PreserveAnchor
)

func (k IntentKind) String() string {
	switch k {
	case ScrollToEdge:
		return "scroll-to-edge"
	case PreserveAnchor:
		return "preserve-anchor"
	default:
		return "none"
	}
}

// Intent is a scroll directive the surface executes once the content it
// belongs to has been committed.
type Intent struct {
	Kind IntentKind
	// AnchorIndex is the position, in the rendered entries, of the record to
	// keep at the top of the viewport for PreserveAnchor.
	AnchorIndex int
	// AnchorID is the id of that record; empty for records without one.
	AnchorID string
	// Delay is how long a surface that cannot observe its own commit should
	// wait before scrolling to the edge.
	Delay time.Duration
}

// Cause says what changed the display sequence.
type Cause int

const (
	CauseLive Cause = iota
	CauseRoomOpen
	CauseHistory
)

func (c Cause) String() string {
	switch c {
	case CauseRoomOpen:
		return "room-open"
	case CauseHistory:
		return "history"
	default:
		return "live"
	}
}

// Change describes a display sequence update.
type Change struct {
	Cause Cause
	// Prepended is how many entries a history fetch added ahead of the
	// previous first entry. The first of them is the anchor.
	Prepended int
	// AnchorID is the id of the first prepended entry, if it has one.
	AnchorID string
}

// ScrollTracker is the reading state machine.
type ScrollTracker struct {
	// ReadingFactor is how many viewport heights above the bottom the reader
	// must be to count as browsing history.
	ReadingFactor float64
	EdgeDelay     time.Duration
}

// DefaultScrollTracker returns the tracker with the stock tuning.
func DefaultScrollTracker() ScrollTracker {
	return ScrollTracker{ReadingFactor: DefaultReadingFactor, EdgeDelay: DefaultEdgeDelay}
}

func (t ScrollTracker) factor() float64 {
	if t.ReadingFactor <= 0 {
		return DefaultReadingFactor
	}
	return t.ReadingFactor
}

// Reading reports whether m puts the reader away from the live edge.
func (t ScrollTracker) Reading(m Metrics) bool {
	return float64(m.ScrollTop) < float64(m.ScrollHeight)-t.factor()*float64(m.ClientHeight)
}

// Sample updates the reading state from a scroll sample. Reaching the live
// edge clears the pending-new counter.
func (t ScrollTracker) Sample(s State, m Metrics) State {
	s.ReadingChat = t.Reading(m)
	if !s.ReadingChat {
		s.PendingNew = 0
	}
	return s
}

// Decide picks the scroll intent after a display change. At the live edge
// the view follows the newest record. While browsing, only a completed
// history fetch moves the view, anchoring it on the prepended content.
func (t ScrollTracker) Decide(s State, c Change) Intent {
	if !s.ReadingChat {
		return Intent{Kind: ScrollToEdge, Delay: t.EdgeDelay}
	}
	if c.Cause == CauseHistory && s.FetchingHistory && c.Prepended > 0 {
		return Intent{Kind: PreserveAnchor, AnchorIndex: 0, AnchorID: c.AnchorID}
	}
	return Intent{Kind: ScrollNone}
}
