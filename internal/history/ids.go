package history

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ageapps/chatfeed/internal/chat"
)

// NewID returns a ULID whose time component is the record time, so ids of
// imported records sort like their timestamps.
func NewID(t time.Time) string {
	if t.IsZero() || t.Before(time.Unix(0, 0)) || t.UnixMilli() > int64(ulid.MaxTime()) {
		return ulid.Make().String()
	}
	id, err := ulid.New(ulid.Timestamp(t), ulid.DefaultEntropy())
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}

// prepare normalizes msg for storage and assigns an id when missing.
func prepare(msg chat.Message) (chat.Message, error) {
	out, err := chat.NormalizeMessage(msg)
	if err != nil {
		return chat.Message{}, err
	}
	if out.Room == "" {
		return chat.Message{}, chat.ErrInvalidRoom
	}
	if out.ID == "" {
		out.ID = NewID(out.Time)
	}
	return out, nil
}
