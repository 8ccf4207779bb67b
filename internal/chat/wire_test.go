package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_Chat(t *testing.T) {
	raw := `{"type":"CHAT","_id":"m1","_from":"u1","_timestamp":"2026-02-09T08:00:00Z","text":"hello @bob","mentions":[{"name":"bob"}]}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)
	chatEv, ok := ev.(ChatEvent)
	require.True(t, ok, "unexpected event type %T", ev)
	require.Equal(t, KindChat, chatEv.Kind())
	require.Equal(t, "m1", chatEv.Message.ID)
	require.Equal(t, "u1", chatEv.Message.From)
	require.Equal(t, KindChat, chatEv.Message.Kind)
	require.Equal(t, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC), chatEv.Message.Time)
	require.Equal(t, []Mention{{Name: "bob"}}, chatEv.Message.Mentions)
}

func TestDecodeEvent_ActivityWithUnixMillis(t *testing.T) {
	raw := `{"type":"ACTIVITY","_timestamp":1770624000000,"text":"alice joined"}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)
	act, ok := ev.(ActivityEvent)
	require.True(t, ok)
	require.Equal(t, KindActivity, act.Message.Kind)
	require.Equal(t, time.UnixMilli(1770624000000).UTC(), act.Message.Time)
	require.False(t, act.Message.HasSender())
}

func TestDecodeEvent_RoomOpen(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "data", raw: `{"type":"ROOM_OPEN","data":{"_id":"room-1"}}`},
		{name: "roomData", raw: `{"type":"room-open","roomData":{"_id":"room-1"}}`},
		{name: "room field", raw: `{"type":"room_open","room":"room-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.raw))
			require.NoError(t, err)
			open, ok := ev.(RoomOpenEvent)
			require.True(t, ok)
			require.Equal(t, "room-1", open.Room)
		})
	}
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"TYPING","_from":"u1"}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecodeEvent_RoomOpenRequiresRoom(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"ROOM_OPEN"}`))
	require.ErrorIs(t, err, ErrInvalidRoom)
}

func TestEncodeEventRoundTrip(t *testing.T) {
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	events := []Event{
		NewChat(Message{ID: "m1", From: "u1", Time: at, Text: "hi"}),
		NewActivity(Message{ID: "a1", Time: at, Text: "joined"}),
		RoomOpenEvent{Room: "room-1", At: at},
	}
	for _, ev := range events {
		data, err := EncodeEvent(ev)
		require.NoError(t, err)
		decoded, err := DecodeEvent(data)
		require.NoError(t, err)
		require.Equal(t, ev, decoded)
	}
}

func TestHistoryPage_SingleRecordData(t *testing.T) {
	raw := `[
		{"room":"r1","data":{"_id":"m2","_from":"u1","_timestamp":"2026-02-09T08:01:00Z","type":"chat","text":"second"}},
		{"room":"r1","data":[{"_id":"m1","_from":"u1","_timestamp":"2026-02-09T08:00:00Z","type":"chat","text":"first"}]},
		{"room":"r1","data":null}
	]`

	var pages []HistoryPage
	require.NoError(t, json.Unmarshal([]byte(raw), &pages))
	require.Len(t, pages, 3)
	require.Equal(t, 1, pages[0].Len())
	require.Equal(t, "m2", pages[0].Data[0].ID)
	require.Equal(t, 1, pages[1].Len())
	require.Equal(t, "m1", pages[1].Data[0].ID)
	require.Equal(t, 0, pages[2].Len())
}

func TestMessage_MissingTimestampDecodesToZero(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"_from":"u1","text":"x"}`), &msg))
	require.True(t, msg.Time.IsZero())
	require.Equal(t, KindChat, msg.Kind)
	require.ErrorIs(t, msg.Validate(), ErrMissingTimestamp)
}

func TestMessage_UnknownRecordKindPreserved(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"file","_timestamp":"2026-02-09T08:00:00Z"}`), &msg))
	require.Equal(t, Kind("file"), msg.Kind)
	require.False(t, msg.IsActivity())
}

func TestRoomHistoryPages(t *testing.T) {
	raw := `{"room-1":{"history":[{"data":[{"_timestamp":"2026-02-09T08:00:00Z","text":"x"}]}]}}`
	var hist RoomHistory
	require.NoError(t, json.Unmarshal([]byte(raw), &hist))
	require.Len(t, hist.Pages("room-1"), 1)
	require.Nil(t, hist.Pages("room-2"))
	require.Nil(t, RoomHistory(nil).Pages("room-1"))
}

type countingVisitor struct {
	chats, activities, opens int
}

func (v *countingVisitor) VisitChat(ChatEvent) error         { v.chats++; return nil }
func (v *countingVisitor) VisitActivity(ActivityEvent) error { v.activities++; return nil }
func (v *countingVisitor) VisitRoomOpen(RoomOpenEvent) error { v.opens++; return nil }

func TestVisitDispatchesByKind(t *testing.T) {
	v := &countingVisitor{}
	require.NoError(t, Visit(NewChat(Message{}), v))
	require.NoError(t, Visit(NewActivity(Message{}), v))
	require.NoError(t, Visit(RoomOpenEvent{Room: "r"}, v))
	require.ErrorIs(t, Visit(nil, v), ErrUnknownKind)
	require.Equal(t, 1, v.chats)
	require.Equal(t, 1, v.activities)
	require.Equal(t, 1, v.opens)
}
