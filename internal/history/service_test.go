package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/ageapps/chatfeed/internal/chat"
)

func TestStaticPaging(t *testing.T) {
	pages := []chat.HistoryPage{
		{Room: "general", Data: []chat.Message{record("", "c", 2*time.Minute)}},
		{Room: "general", Data: []chat.Message{record("", "a", 0), record("", "b", time.Minute)}},
		{Room: "other", Data: []chat.Message{record("", "x", 0)}},
	}
	svc := NewStatic(pages, 2)
	ctx := context.Background()

	first, err := svc.RoomHistory(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, pageIDs(first.Pages("general")))
	require.Equal(t, "general", first.Pages("general")[0].Data[0].Room)

	more, err := svc.MoreHistory(ctx, Query{Room: "general", Before: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, pageIDs(more))

	none, err := svc.MoreHistory(ctx, Query{Room: "general", Before: base})
	require.NoError(t, err)
	require.Nil(t, none)

	empty, err := svc.RoomHistory(ctx, "missing")
	require.NoError(t, err)
	require.Zero(t, CountRecords(empty.Pages("missing")))
}

func TestStaticHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(nil, 10).RoomHistory(ctx, "general")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodePages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
		rooms []string
	}{
		{
			name:  "array of pages",
			input: `[{"room":"r1","data":{"_id":"a","_timestamp":"2024-05-10T09:00:00Z","type":"CHAT","text":"hi"}}]`,
			want:  []string{"a"},
			rooms: []string{"r1"},
		},
		{
			name:  "room history object",
			input: `{"r2":{"history":[{"data":[{"_id":"b","_timestamp":1715331600000,"type":"ACTIVITY"}]}]}}`,
			want:  []string{"b"},
			rooms: []string{"r2"},
		},
		{
			name:  "empty",
			input: "  ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := DecodePages([]byte(tt.input))
			require.NoError(t, err)
			require.Equal(t, tt.want, pageIDs(pages))
			var rooms []string
			for _, page := range pages {
				rooms = append(rooms, page.Room)
			}
			require.Equal(t, tt.rooms, rooms)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"room":"r1","data":[]}]`), 0o644))
	pages, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"r1":`), 0o644))
	_, err = LoadFile(bad)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "bad.json"))
}

type countingService struct {
	rooms atomic.Int32
	more  atomic.Int32
	err   error
}

func (s *countingService) RoomHistory(_ context.Context, room string) (chat.RoomHistory, error) {
	s.rooms.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return roomHistory(room, []chat.Message{record(room, "a", 0)}), nil
}

func (s *countingService) MoreHistory(_ context.Context, q Query) ([]chat.HistoryPage, error) {
	s.more.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return pagesOf(q.Room, []chat.Message{record(q.Room, "old", -time.Hour)}), nil
}

func TestCachedReusesResults(t *testing.T) {
	next := &countingService{}
	svc := NewCached(next, time.Minute, 4)
	ctx := context.Background()

	first, err := svc.RoomHistory(ctx, "general")
	require.NoError(t, err)
	first["general"].History[0].Data[0].Text = "mutated"

	second, err := svc.RoomHistory(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, "msg a", second["general"].History[0].Data[0].Text)
	require.EqualValues(t, 1, next.rooms.Load())

	q := Query{Room: "general", Before: base, Limit: 10}
	_, err = svc.MoreHistory(ctx, q)
	require.NoError(t, err)
	_, err = svc.MoreHistory(ctx, q)
	require.NoError(t, err)
	require.EqualValues(t, 1, next.more.Load())

	q.Limit = 20
	_, err = svc.MoreHistory(ctx, q)
	require.NoError(t, err)
	require.EqualValues(t, 2, next.more.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	next := &countingService{err: errors.New("down")}
	svc := NewCached(next, time.Minute, 4)
	_, err := svc.RoomHistory(context.Background(), "general")
	require.Error(t, err)
	_, err = svc.RoomHistory(context.Background(), "general")
	require.Error(t, err)
	require.EqualValues(t, 2, next.rooms.Load())
}

func TestCachedDisabledWithoutTTL(t *testing.T) {
	next := &countingService{}
	require.Same(t, Service(next), NewCached(next, 0, 4))
}

func TestLRUExpiryAndEviction(t *testing.T) {
	now := base
	cache := newLRU[int](2, time.Second)
	cache.now = func() time.Time { return now }

	cache.put("a", 1)
	cache.put("b", 2)
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", 3)
	_, ok = cache.get("b")
	require.False(t, ok, "least recently used entry is evicted")
	require.Equal(t, 2, cache.len())

	now = now.Add(time.Second)
	_, ok = cache.get("a")
	require.False(t, ok, "entry expires at its ttl")
	require.Equal(t, 1, cache.len())
}

func TestLimited(t *testing.T) {
	next := &countingService{}
	require.Same(t, Service(next), NewLimited(next, 0, 1))

	svc := NewLimited(next, 1, 1)
	ctx := context.Background()
	_, err := svc.RoomHistory(ctx, "general")
	require.NoError(t, err)

	// The bucket is empty; a short deadline cannot wait a full second.
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = svc.MoreHistory(short, Query{Room: "general"})
	require.Error(t, err)
	require.EqualValues(t, 0, next.more.Load())
}

func TestRedisHelpers(t *testing.T) {
	require.Equal(t, "chatfeed:room:general:history", roomKey("general"))
	require.Equal(t, "+inf", maxScore(time.Time{}))
	require.Equal(t, "(1715331600000", maxScore(base))

	a, err := record("general", "a", 0).MarshalJSON()
	require.NoError(t, err)
	b, err := record("general", "b", time.Minute).MarshalJSON()
	require.NoError(t, err)
	msgs := decodeMembers([]string{string(b), "not json", string(a)})
	require.Len(t, msgs, 2)
	require.Equal(t, "a", msgs[0].ID)
	require.Equal(t, "b", msgs[1].ID)
}

func TestNewIDUsesRecordTime(t *testing.T) {
	id, err := ulid.Parse(NewID(base))
	require.NoError(t, err)
	require.Equal(t, base.UnixMilli(), int64(id.Time()))

	require.NotEmpty(t, NewID(time.Time{}))
	require.NotEqual(t, NewID(base), NewID(base))
}
