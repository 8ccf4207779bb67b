// Package chat defines the chat records, history pages, and transport events
// consumed by the feed pipeline.
package chat

import (
	"strings"
	"time"
)

// Kind classifies a record or event.
type Kind string

const (
	KindChat     Kind = "chat"
	KindActivity Kind = "activity"
	KindRoomOpen Kind = "room-open"
)

// Mention names a participant referenced as @name in a chat text.
type Mention struct {
	Name string `json:"name"`
}

// Message is a single chat or activity record. Messages are treated as
// immutable values; derived display flags live in feed.Entry.
type Message struct {
	ID       string    `json:"_id,omitempty"`
	Room     string    `json:"room,omitempty"`
	From     string    `json:"_from,omitempty"`
	Time     time.Time `json:"_timestamp"`
	Kind     Kind      `json:"type"`
	Text     string    `json:"text,omitempty"`
	Mentions []Mention `json:"mentions,omitempty"`
}

// HasSender reports whether the record carries a sender identifier.
func (m Message) HasSender() bool {
	return strings.TrimSpace(m.From) != ""
}

// IsActivity reports whether the record is an activity record.
func (m Message) IsActivity() bool {
	return m.Kind == KindActivity
}

// Validate checks the fields a record needs to be displayed.
func (m Message) Validate() error {
	switch m.Kind {
	case KindChat, KindActivity:
	default:
		return ErrUnknownKind
	}
	if m.Time.IsZero() {
		return ErrMissingTimestamp
	}
	if m.Kind == KindChat && m.Text == "" {
		return ErrEmptyMessage
	}
	return nil
}

// HistoryPage is one page of room history as returned by the fetch service.
type HistoryPage struct {
	Room string    `json:"room,omitempty"`
	Data []Message `json:"data"`
}

// Len returns the number of records on the page.
func (p HistoryPage) Len() int {
	return len(p.Data)
}

// RoomHistoryEntry is the per-room payload of RoomHistory.
type RoomHistoryEntry struct {
	History []HistoryPage `json:"history"`
}

// RoomHistory maps room id to its history pages.
type RoomHistory map[string]RoomHistoryEntry

// Pages returns the pages recorded for room, or nil.
func (h RoomHistory) Pages(room string) []HistoryPage {
	if h == nil {
		return nil
	}
	return h[room].History
}

// CloneMessage returns a deep copy of msg.
func CloneMessage(msg Message) Message {
	out := msg
	if len(msg.Mentions) > 0 {
		out.Mentions = append([]Mention(nil), msg.Mentions...)
	}
	return out
}

// ClonePages returns a deep copy of pages.
func ClonePages(pages []HistoryPage) []HistoryPage {
	if pages == nil {
		return nil
	}
	out := make([]HistoryPage, len(pages))
	for i, page := range pages {
		out[i].Room = page.Room
		if page.Data != nil {
			out[i].Data = make([]Message, len(page.Data))
			for j := range page.Data {
				out[i].Data[j] = CloneMessage(page.Data[j])
			}
		}
	}
	return out
}
