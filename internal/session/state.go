// Package session owns the per-room viewing session: pagination state, the
// reading/live-edge state machine, live event routing, and the controller
// loop that serializes all of them.
package session

const (
	LabelMoreHistory  = "Load previous messages"
	LabelNoHistory    = "No more previous messages"
	LabelRetryHistory = "Retry loading messages"
)

// Mode is the reading state derived from the scroll position.
type Mode int

const (
	AtLiveEdge Mode = iota
	BrowsingHistory
)

func (m Mode) String() string {
	if m == BrowsingHistory {
		return "browsing-history"
	}
	return "at-live-edge"
}

// State is the room session state. It is a plain value: operations take a
// State and return the updated one.
type State struct {
	RoomID               string
	MoreHistoryAvailable bool
	FetchingHistory      bool
	ReadingChat          bool

	// Reload is set when the initial history fetch failed; the next
	// load-more repeats it.
	Reload bool

	// PendingNew counts live records received while browsing history.
	PendingNew int

	// Epoch increases on every room open; fetch completions carry the epoch
	// they were issued under.
	Epoch uint64
}

// Open resets the session for room.
func (s State) Open(room string) State {
	return State{RoomID: room, Epoch: s.Epoch + 1}
}

// Mode returns the reading state.
func (s State) Mode() Mode {
	if s.ReadingChat {
		return BrowsingHistory
	}
	return AtLiveEdge
}

// AtLiveEdge reports whether the reader follows the newest records.
func (s State) AtLiveEdge() bool {
	return !s.ReadingChat
}

// HistoryLabel is the caption of the load-more control.
func (s State) HistoryLabel() string {
	if s.Reload {
		return LabelRetryHistory
	}
	if s.MoreHistoryAvailable {
		return LabelMoreHistory
	}
	return LabelNoHistory
}

// CanLoadMore reports whether a load-more request would be issued.
func (s State) CanLoadMore() bool {
	return s.RoomID != "" && s.MoreHistoryAvailable && !s.FetchingHistory
}
