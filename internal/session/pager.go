package session

import (
	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/history"
)

// Pager holds the pagination rules. FetchingHistory is the only guard
// against duplicate requests: Begin refuses while it is set, and it stays set
// until the rebuilt sequence has been handed to the surface.
type Pager struct{}

// Opening marks the initial room history fetch as in flight.
func (Pager) Opening(s State) State {
	s.FetchingHistory = true
	return s
}

// Opened applies the initial room history. It reports whether the pages
// carry records to annotate; without records there is nothing older to load
// either.
func (p Pager) Opened(s State, pages []chat.HistoryPage) (State, bool) {
	if history.CountRecords(pages) == 0 {
		return p.Exhausted(s), false
	}
	s.MoreHistoryAvailable = true
	s.Reload = false
	return s, true
}

// OpenFailed records a failed initial fetch. History stays loadable so the
// load-more control retries the initial fetch.
func (Pager) OpenFailed(s State) State {
	s.FetchingHistory = false
	s.MoreHistoryAvailable = true
	s.Reload = true
	return s
}

// Begin starts a load-more request.
func (Pager) Begin(s State) (State, error) {
	switch {
	case s.RoomID == "":
		return s, ErrNoRoom
	case s.FetchingHistory:
		return s, ErrFetchInFlight
	case !s.MoreHistoryAvailable:
		return s, ErrNoMoreHistory
	}
	s.FetchingHistory = true
	return s, nil
}

// Complete applies a load-more response. Non-empty pages must be merged and
// re-annotated; FetchingHistory stays set until Rendered. An empty response
// exhausts the history and leaves the display sequence alone.
func (p Pager) Complete(s State, pages []chat.HistoryPage) (State, bool) {
	if history.CountRecords(pages) == 0 {
		return p.Exhausted(s), false
	}
	return s, true
}

// Exhausted marks the history as fully loaded. No fetch can be pending once
// nothing is left to load.
func (Pager) Exhausted(s State) State {
	s.MoreHistoryAvailable = false
	s.FetchingHistory = false
	s.Reload = false
	return s
}

// Rendered clears the in-flight flag once the annotated sequence has been
// delivered.
func (Pager) Rendered(s State) State {
	s.FetchingHistory = false
	return s
}

// Failed clears the in-flight flag after a fetch error so the reader can
// retry.
func (Pager) Failed(s State) State {
	s.FetchingHistory = false
	return s
}
