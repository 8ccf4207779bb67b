package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoom is returned when loading history before any room is open.
	ErrNoRoom = errors.New("no room open")
	// ErrFetchInFlight is returned when a history fetch is already pending.
	ErrFetchInFlight = errors.New("history fetch already in flight")
	// ErrNoMoreHistory is returned once the room history is exhausted.
	ErrNoMoreHistory = errors.New("no more history")
	// ErrStaleResponse marks a fetch completion for a superseded room session.
	ErrStaleResponse = errors.New("stale history response")
)

// Op names a history fetch operation.
type Op string

const (
	OpRoomHistory Op = "room_history"
	OpMoreHistory Op = "more_history"
)

// FetchError reports a failed history fetch.
type FetchError struct {
	Op   Op
	Room string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s for room %q: %v", e.Op, e.Room, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
