// Package history provides the room history services the feed controller
// pages through: SQLite and Redis stores, a static in-memory service, and
// caching and rate-limiting decorators.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/feed"
)

// DefaultPageSize is used when a Query carries no limit.
const DefaultPageSize = 50

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("history store closed")

// Query selects one page of older history for a room.
type Query struct {
	Room string
	// Before is the timestamp of the oldest record already displayed. Only
	// strictly older records are returned. Zero means no cursor.
	Before time.Time
	Limit  int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultPageSize
	}
	return q.Limit
}

// Service fetches room history. Both calls are single-shot; callers do not
// expect retries.
type Service interface {
	// RoomHistory returns the most recent page of history for room.
	RoomHistory(ctx context.Context, room string) (chat.RoomHistory, error)
	// MoreHistory returns the page of records preceding q.Before. An empty
	// result means the history is exhausted.
	MoreHistory(ctx context.Context, q Query) ([]chat.HistoryPage, error)
}

// Static serves history from memory. It backs the file backend and tests.
type Static struct {
	byRoom   map[string][]chat.Message
	pageSize int
}

// NewStatic indexes pages by room. Pages without a room use the room of
// their records.
func NewStatic(pages []chat.HistoryPage, pageSize int) *Static {
	grouped := make(map[string][]chat.HistoryPage)
	for _, page := range pages {
		for _, msg := range page.Data {
			room := msg.Room
			if room == "" {
				room = page.Room
			}
			msg.Room = room
			grouped[room] = append(grouped[room], chat.HistoryPage{Room: room, Data: []chat.Message{msg}})
		}
	}
	byRoom := make(map[string][]chat.Message, len(grouped))
	for room, roomPages := range grouped {
		byRoom[room] = feed.Normalize(roomPages)
	}
	return &Static{byRoom: byRoom, pageSize: pageSize}
}

// RoomHistory implements Service.
func (s *Static) RoomHistory(ctx context.Context, room string) (chat.RoomHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := window(s.byRoom[room], Query{Room: room, Limit: s.pageSize})
	return roomHistory(room, page), nil
}

// MoreHistory implements Service.
func (s *Static) MoreHistory(ctx context.Context, q Query) ([]chat.HistoryPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = s.pageSize
	}
	return pagesOf(q.Room, window(s.byRoom[q.Room], q)), nil
}

// window returns up to q.Limit of the newest records in ascending msgs that
// are strictly older than q.Before.
func window(msgs []chat.Message, q Query) []chat.Message {
	end := len(msgs)
	if !q.Before.IsZero() {
		end = 0
		for end < len(msgs) && msgs[end].Time.Before(q.Before) {
			end++
		}
	}
	start := end - q.limit()
	if start < 0 {
		start = 0
	}
	out := make([]chat.Message, 0, end-start)
	for _, msg := range msgs[start:end] {
		out = append(out, chat.CloneMessage(msg))
	}
	return out
}

func pagesOf(room string, msgs []chat.Message) []chat.HistoryPage {
	if len(msgs) == 0 {
		return nil
	}
	return []chat.HistoryPage{{Room: room, Data: msgs}}
}

func roomHistory(room string, msgs []chat.Message) chat.RoomHistory {
	return chat.RoomHistory{room: {History: pagesOf(room, msgs)}}
}

// CountRecords returns the number of records across pages.
func CountRecords(pages []chat.HistoryPage) int {
	n := 0
	for _, page := range pages {
		n += page.Len()
	}
	return n
}
