// Package transport delivers live chat events to the feed controller, either
// from NATS or through the in-process Bus.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ageapps/chatfeed/internal/chat"
)

// DefaultBuffer is the channel capacity of a subscription.
const DefaultBuffer = 64

// ErrUnknownSubscription is returned when unsubscribing an unknown id.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Source is a stream of transport events.
type Source interface {
	// Events returns the event channel. It is closed by Close.
	Events() <-chan chat.Event
	Close() error
}

// Filter defines criteria for matching events.
type Filter struct {
	// Kinds filters by event kind (nil = all kinds).
	Kinds []chat.Kind

	// Room filters chat and activity records to one room (empty = all).
	// Room-open events always match since they switch rooms.
	Room string
}

// Matches returns true if the event matches the filter criteria.
func (f Filter) Matches(e chat.Event) bool {
	if e == nil {
		return false
	}

	if len(f.Kinds) > 0 {
		matched := false
		for _, kind := range f.Kinds {
			if e.Kind() == kind {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.Room == "" {
		return true
	}
	if _, ok := e.(chat.RoomOpenEvent); ok {
		return true
	}
	room := EventRoom(e)
	return room == "" || room == f.Room
}

// EventRoom returns the room an event belongs to, if any.
func EventRoom(e chat.Event) string {
	switch ev := e.(type) {
	case chat.ChatEvent:
		return ev.Message.Room
	case chat.ActivityEvent:
		return ev.Message.Room
	case chat.RoomOpenEvent:
		return ev.Room
	}
	return ""
}

type subscription struct {
	id     string
	filter Filter
	ch     chan chat.Event
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

// send blocks while the subscriber is behind. Closing the subscription
// releases a blocked send and drops e.
func (s *subscription) send(ctx context.Context, e chat.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- e:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscription) close() {
	s.once.Do(func() {
		// Closing done first releases a send blocked on a full channel.
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Bus is an in-process pub/sub for transport events.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	buffer        int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBuffer sets the channel capacity of new subscriptions.
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n >= 0 {
			b.buffer = n
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscriptions: make(map[string]*subscription),
		buffer:        DefaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers e to every matching subscriber. A full subscriber blocks
// Publish until it drains or ctx ends.
func (b *Bus) Publish(ctx context.Context, e chat.Event) error {
	if e == nil {
		return nil
	}

	b.mu.RLock()
	var targets []*subscription
	for _, sub := range b.subscriptions {
		if sub.filter.Matches(e) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.send(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a subscriber and returns its id and event channel.
func (b *Bus) Subscribe(filter Filter) (string, <-chan chat.Event) {
	sub := &subscription{
		id:     uuid.NewString(),
		filter: filter,
		ch:     make(chan chat.Event, b.buffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub.id, sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, ok := b.subscriptions[id]
	delete(b.subscriptions, id)
	b.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}
	sub.close()
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Source subscribes with filter and wraps the subscription as a Source.
func (b *Bus) Source(filter Filter) Source {
	id, ch := b.Subscribe(filter)
	return &busSource{bus: b, id: id, ch: ch}
}

type busSource struct {
	bus  *Bus
	id   string
	ch   <-chan chat.Event
	once sync.Once
}

func (s *busSource) Events() <-chan chat.Event { return s.ch }

func (s *busSource) Close() error {
	var err error
	s.once.Do(func() { err = s.bus.Unsubscribe(s.id) })
	return err
}
