package chat

import "time"

// Event is a transport event. The set of implementations is closed: every
// event is one of ChatEvent, ActivityEvent or RoomOpenEvent, and handlers
// consume them through Visitor so that adding a kind forces every handler
// to grow a method.
type Event interface {
	Kind() Kind
	accept(Visitor) error
}

// Visitor handles each event kind.
type Visitor interface {
	VisitChat(ChatEvent) error
	VisitActivity(ActivityEvent) error
	VisitRoomOpen(RoomOpenEvent) error
}

// Visit dispatches e to the matching Visitor method.
func Visit(e Event, v Visitor) error {
	if e == nil {
		return ErrUnknownKind
	}
	return e.accept(v)
}

// ChatEvent carries a live chat message.
type ChatEvent struct {
	Message Message
}

func (ChatEvent) Kind() Kind { return KindChat }
func (e ChatEvent) accept(v Visitor) error { return v.VisitChat(e) }

// ActivityEvent carries a live activity record (joins, leaves, uploads).
type ActivityEvent struct {
	Message Message
}

func (ActivityEvent) Kind() Kind { return KindActivity }
func (e ActivityEvent) accept(v Visitor) error { return v.VisitActivity(e) }

// RoomOpenEvent announces that the widget now shows Room.
type RoomOpenEvent struct {
	Room string
	At   time.Time
}

func (RoomOpenEvent) Kind() Kind { return KindRoomOpen }
func (e RoomOpenEvent) accept(v Visitor) error { return v.VisitRoomOpen(e) }

// NewChat builds a ChatEvent, forcing the record kind.
func NewChat(msg Message) ChatEvent {
	msg.Kind = KindChat
	return ChatEvent{Message: msg}
}

// NewActivity builds an ActivityEvent, forcing the record kind.
func NewActivity(msg Message) ActivityEvent {
	msg.Kind = KindActivity
	return ActivityEvent{Message: msg}
}
