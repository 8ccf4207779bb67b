package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/logging"
)

// NATS publishes and subscribes transport events on <prefix>.<room>
// subjects.
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// ConnectNATS connects to the NATS server at url.
func ConnectNATS(url, prefix string, opts ...nats.Option) (*NATS, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return nil, errors.New("subject prefix is required")
	}
	opts = append([]nats.Option{nats.Name("chatfeed")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{conn: conn, prefix: prefix, logger: logging.Component("nats")}, nil
}

// Close drains and closes the connection.
func (n *NATS) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// Subject returns the subject for room. An empty room yields the wildcard
// subject covering every room.
func Subject(prefix, room string) string {
	if room == "" {
		return prefix + ".*"
	}
	return prefix + "." + room
}

// RoomFromSubject returns the room token of subject, or "" when subject is
// not under prefix.
func RoomFromSubject(prefix, subject string) string {
	room, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || strings.Contains(room, ".") {
		return ""
	}
	return room
}

// Publish sends e on the subject of room and flushes.
func (n *NATS) Publish(ctx context.Context, room string, e chat.Event) error {
	room, err := chat.NormalizeRoom(room)
	if err != nil {
		return err
	}
	data, err := chat.EncodeEvent(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := Subject(n.prefix, room)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", subject, err)
	}
	return n.conn.FlushWithContext(ctx)
}

// Subscribe streams events for room (or every room when room is empty)
// until ctx ends or the source is closed. Records without a room take the
// room of their subject. Undecodable messages are logged and dropped.
func (n *NATS) Subscribe(ctx context.Context, room string) (Source, error) {
	if room != "" {
		normalized, err := chat.NormalizeRoom(room)
		if err != nil {
			return nil, err
		}
		room = normalized
	}

	src := &natsSource{ch: make(chan chat.Event, DefaultBuffer), done: make(chan struct{})}
	subject := Subject(n.prefix, room)
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		e, err := decodeNATS(n.prefix, msg.Subject, msg.Data)
		if err != nil {
			n.logger.Debug().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable event")
			return
		}
		src.deliver(e)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject '%s': %w", subject, err)
	}
	src.sub = sub
	n.logger.Debug().Str("subject", subject).Msg("subscribed")

	go func() {
		select {
		case <-ctx.Done():
			_ = src.Close()
		case <-src.done:
		}
	}()
	return src, nil
}

func decodeNATS(prefix, subject string, data []byte) (chat.Event, error) {
	e, err := chat.DecodeEvent(data)
	if err != nil {
		return nil, err
	}
	room := RoomFromSubject(prefix, subject)
	switch ev := e.(type) {
	case chat.ChatEvent:
		if ev.Message.Room == "" {
			ev.Message.Room = room
		}
		return ev, nil
	case chat.ActivityEvent:
		if ev.Message.Room == "" {
			ev.Message.Room = room
		}
		return ev, nil
	}
	return e, nil
}

type natsSource struct {
	sub  *nats.Subscription
	ch   chan chat.Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// deliver runs on the NATS dispatch goroutine; it blocks while the consumer
// is behind so events are never reordered.
func (s *natsSource) deliver(e chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	case <-s.done:
	}
}

func (s *natsSource) Events() <-chan chat.Event { return s.ch }

func (s *natsSource) Close() error {
	var err error
	s.once.Do(func() {
		// Closing done first releases a deliver blocked on a full channel.
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.sub != nil {
			err = s.sub.Unsubscribe()
		}
	})
	return err
}
