package session

import "github.com/ageapps/chatfeed/internal/chat"

// Router dispatches transport events by kind. It implements chat.Visitor,
// so a new event kind does not compile until the router handles it. Nil
// handlers ignore their kind.
type Router struct {
	OnChat     func(chat.Message) error
	OnActivity func(chat.Message) error
	OnRoomOpen func(chat.RoomOpenEvent) error
}

// Dispatch routes e to its handler.
func (r Router) Dispatch(e chat.Event) error {
	return chat.Visit(e, r)
}

func (r Router) VisitChat(e chat.ChatEvent) error {
	if r.OnChat == nil {
		return nil
	}
	return r.OnChat(e.Message)
}

func (r Router) VisitActivity(e chat.ActivityEvent) error {
	if r.OnActivity == nil {
		return nil
	}
	return r.OnActivity(e.Message)
}

func (r Router) VisitRoomOpen(e chat.RoomOpenEvent) error {
	if r.OnRoomOpen == nil {
		return nil
	}
	return r.OnRoomOpen(e)
}
