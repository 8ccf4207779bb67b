package transport

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ageapps/chatfeed/internal/chat"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func chatEvent(room, id string) chat.Event {
	return chat.NewChat(chat.Message{ID: id, Room: room, From: "u1", Time: t0, Text: "hi"})
}

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  chat.Event
		want   bool
	}{
		{name: "nil event", filter: Filter{}, event: nil, want: false},
		{name: "empty filter", filter: Filter{}, event: chatEvent("a", "1"), want: true},
		{name: "kind match", filter: Filter{Kinds: []chat.Kind{chat.KindChat}}, event: chatEvent("a", "1"), want: true},
		{name: "kind mismatch", filter: Filter{Kinds: []chat.Kind{chat.KindActivity}}, event: chatEvent("a", "1"), want: false},
		{name: "room match", filter: Filter{Room: "a"}, event: chatEvent("a", "1"), want: true},
		{name: "room mismatch", filter: Filter{Room: "a"}, event: chatEvent("b", "1"), want: false},
		{name: "record without room", filter: Filter{Room: "a"}, event: chatEvent("", "1"), want: true},
		{name: "room open always", filter: Filter{Room: "a"}, event: chat.RoomOpenEvent{Room: "b"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.filter.Matches(tt.event))
		})
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	idA, chA := bus.Subscribe(Filter{Room: "a"})
	_, chAll := bus.Subscribe(Filter{})
	require.NotEqual(t, "", idA)
	require.Equal(t, 2, bus.SubscriberCount())

	require.NoError(t, bus.Publish(ctx, chatEvent("a", "1")))
	require.NoError(t, bus.Publish(ctx, chatEvent("b", "2")))

	require.Equal(t, chatEvent("a", "1"), <-chA)
	require.Equal(t, chatEvent("a", "1"), <-chAll)
	require.Equal(t, chatEvent("b", "2"), <-chAll)
	require.Empty(t, chA)

	require.NoError(t, bus.Unsubscribe(idA))
	_, open := <-chA
	require.False(t, open)
	require.ErrorIs(t, bus.Unsubscribe(idA), ErrUnknownSubscription)
	require.Equal(t, 1, bus.SubscriberCount())
}

func TestBusPublishRespectsContextWhenFull(t *testing.T) {
	bus := NewBus(WithBuffer(0))
	bus.Subscribe(Filter{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bus.Publish(ctx, chatEvent("a", "1")), context.DeadlineExceeded)
}

func TestBusUnsubscribeReleasesBlockedPublish(t *testing.T) {
	bus := NewBus(WithBuffer(0))
	id, _ := bus.Subscribe(Filter{})

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), chatEvent("a", "1"))
	}()

	// Give Publish time to block on the unread channel.
	time.Sleep(20 * time.Millisecond)

	unsubscribed := make(chan error, 1)
	go func() {
		unsubscribed <- bus.Unsubscribe(id)
	}()

	select {
	case err := <-unsubscribed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe blocked behind a pending Publish")
	}
	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Publish not released by Unsubscribe")
	}
}

func TestBusSourceClose(t *testing.T) {
	bus := NewBus()
	src := bus.Source(Filter{})
	require.NoError(t, bus.Publish(context.Background(), chatEvent("a", "1")))
	require.Equal(t, chatEvent("a", "1"), <-src.Events())

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	require.Zero(t, bus.SubscriberCount())
	_, open := <-src.Events()
	require.False(t, open)

	// Publishing after close is a no-op.
	require.NoError(t, bus.Publish(context.Background(), chatEvent("a", "2")))
}

func TestSubjects(t *testing.T) {
	require.Equal(t, "chatfeed.general", Subject("chatfeed", "general"))
	require.Equal(t, "chatfeed.*", Subject("chatfeed", ""))
	require.Equal(t, "general", RoomFromSubject("chatfeed", "chatfeed.general"))
	require.Equal(t, "", RoomFromSubject("chatfeed", "other.general"))
	require.Equal(t, "", RoomFromSubject("chatfeed", "chatfeed.a.b"))
}

func TestDecodeNATSFillsRoomFromSubject(t *testing.T) {
	e, err := decodeNATS("chatfeed", "chatfeed.general", []byte(`{"type":"CHAT","_from":"u1","_timestamp":"2024-05-10T09:00:00Z","text":"hi"}`))
	require.NoError(t, err)
	ev, ok := e.(chat.ChatEvent)
	require.True(t, ok)
	require.Equal(t, "general", ev.Message.Room)

	e, err = decodeNATS("chatfeed", "chatfeed.general", []byte(`{"type":"ACTIVITY","room":"explicit","_timestamp":1715331600000}`))
	require.NoError(t, err)
	require.Equal(t, "explicit", e.(chat.ActivityEvent).Message.Room)

	_, err = decodeNATS("chatfeed", "chatfeed.general", []byte(`{"type":"TYPING"}`))
	require.ErrorIs(t, err, chat.ErrUnknownKind)
}

func TestNATSSourceCloseUnblocksDelivery(t *testing.T) {
	src := &natsSource{ch: make(chan chat.Event), done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		src.deliver(chatEvent("a", "1"))
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, src.Close())
	wg.Wait()

	src.deliver(chatEvent("a", "2"))
	_, open := <-src.Events()
	require.False(t, open)
}

type recordingPublisher struct {
	events []chat.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e chat.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestReplay(t *testing.T) {
	input := strings.Join([]string{
		`# comment`,
		`{"type":"ROOM_OPEN","data":{"_id":"general"}}`,
		``,
		`{"type":"CHAT","_from":"u1","_timestamp":"2024-05-10T09:00:00Z","text":"hi"}`,
		`{"type":"TYPING","_from":"u1"}`,
		`{"type":"ACTIVITY","_timestamp":"2024-05-10T09:01:00Z","text":"joined"}`,
	}, "\n")

	pub := &recordingPublisher{}
	n, err := Replay(context.Background(), strings.NewReader(input), pub, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, chat.KindRoomOpen, pub.events[0].Kind())
	require.Equal(t, chat.KindChat, pub.events[1].Kind())
	require.Equal(t, chat.KindActivity, pub.events[2].Kind())
}

func TestReplayReportsLine(t *testing.T) {
	pub := &recordingPublisher{}
	n, err := Replay(context.Background(), strings.NewReader("{\"type\":\"CHAT\"}\nnot json\n"), pub, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Equal(t, 1, n)
}

func TestReplayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{}
	input := "{\"type\":\"CHAT\"}\n{\"type\":\"CHAT\"}\n"
	cancel()
	n, err := Replay(ctx, strings.NewReader(input), pub, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, n)
}
