package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseKind maps wire type tags to a Kind. Both the upper-case transport tags
// (CHAT, ACTIVITY, ROOM_OPEN) and the lower-case record kinds are accepted.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "chat":
		return KindChat, nil
	case "activity":
		return KindActivity, nil
	case "room-open", "room_open", "roomopen":
		return KindRoomOpen, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// wireTime accepts RFC3339 strings, Unix millisecond numbers, numeric strings
// and null.
type wireTime time.Time

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = wireTime(time.Time{})
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*t = wireTime(time.Time{})
			return nil
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			*t = wireTime(time.UnixMilli(ms).UTC())
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", raw, err)
		}
		*t = wireTime(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	*t = wireTime(time.UnixMilli(int64(ms)).UTC())
	return nil
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tt.Format(time.RFC3339Nano))
}

type wireMessage struct {
	ID       string    `json:"_id,omitempty"`
	Room     string    `json:"room,omitempty"`
	From     string    `json:"_from,omitempty"`
	Time     wireTime  `json:"_timestamp"`
	Type     string    `json:"type,omitempty"`
	Text     string    `json:"text,omitempty"`
	Mentions []Mention `json:"mentions,omitempty"`
}

func (w wireMessage) message() Message {
	kind := KindChat
	if strings.TrimSpace(w.Type) != "" {
		parsed, err := ParseKind(w.Type)
		if err != nil {
			// Unknown record kinds are kept verbatim; the pipeline treats
			// anything that is not an activity like a chat record.
			parsed = Kind(strings.ToLower(strings.TrimSpace(w.Type)))
		}
		kind = parsed
	}
	return Message{
		ID:       w.ID,
		Room:     w.Room,
		From:     w.From,
		Time:     time.Time(w.Time),
		Kind:     kind,
		Text:     w.Text,
		Mentions: w.Mentions,
	}
}

func toWire(m Message) wireMessage {
	return wireMessage{
		ID:       m.ID,
		Room:     m.Room,
		From:     m.From,
		Time:     wireTime(m.Time),
		Type:     string(m.Kind),
		Text:     m.Text,
		Mentions: m.Mentions,
	}
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = w.message()
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(m))
}

// UnmarshalJSON accepts "data" as either a record array or a single record
// object; older history endpoints wrap one record per page.
func (p *HistoryPage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Room string          `json:"room"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Room = raw.Room
	p.Data = nil

	body := bytes.TrimSpace(raw.Data)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	if body[0] == '[' {
		return json.Unmarshal(body, &p.Data)
	}
	var single Message
	if err := json.Unmarshal(body, &single); err != nil {
		return err
	}
	p.Data = []Message{single}
	return nil
}

type roomRef struct {
	ID string `json:"_id"`
}

type wireEvent struct {
	wireMessage
	Data     *roomRef `json:"data,omitempty"`
	RoomData *roomRef `json:"roomData,omitempty"`
}

// DecodeEvent parses a transport event. Unknown kinds return ErrUnknownKind so
// the caller can ignore them.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	kind, err := ParseKind(w.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindChat:
		return NewChat(w.message()), nil
	case KindActivity:
		return NewActivity(w.message()), nil
	case KindRoomOpen:
		room := w.Room
		if w.Data != nil && w.Data.ID != "" {
			room = w.Data.ID
		} else if w.RoomData != nil && w.RoomData.ID != "" {
			room = w.RoomData.ID
		}
		normalized, err := NormalizeRoom(room)
		if err != nil {
			return nil, err
		}
		return RoomOpenEvent{Room: normalized, At: time.Time(w.Time)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
}

// EncodeEvent serializes e with the upper-case transport type tags.
func EncodeEvent(e Event) ([]byte, error) {
	var w wireEvent
	switch ev := e.(type) {
	case ChatEvent:
		w.wireMessage = toWire(ev.Message)
		w.Type = "CHAT"
	case ActivityEvent:
		w.wireMessage = toWire(ev.Message)
		w.Type = "ACTIVITY"
	case RoomOpenEvent:
		w.Type = "ROOM_OPEN"
		w.Time = wireTime(ev.At)
		w.Data = &roomRef{ID: ev.Room}
	default:
		return nil, ErrUnknownKind
	}
	return json.Marshal(w)
}
