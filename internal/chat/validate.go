package chat

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxRoomLength     = 128
	MaxMentionsPerMsg = 50
)

// Room ids double as NATS subject tokens, so dots and wildcards are rejected.
var roomPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizeRoom trims and validates a room id. Case is preserved because room
// ids are opaque backend identifiers.
func NormalizeRoom(room string) (string, error) {
	normalized := strings.TrimSpace(room)
	if normalized == "" || !roomPattern.MatchString(normalized) {
		return "", ErrInvalidRoom
	}
	if len(normalized) > MaxRoomLength {
		return "", fmt.Errorf("%w: exceeds %d chars", ErrInvalidRoom, MaxRoomLength)
	}
	return normalized, nil
}

// ValidateRoom enforces room rules without modification.
func ValidateRoom(room string) error {
	normalized, err := NormalizeRoom(room)
	if err != nil {
		return err
	}
	if normalized != room {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return nil
}

// NormalizeSender trims a sender id. An empty sender is allowed (system and
// activity records often have none) but whitespace-only input is collapsed.
func NormalizeSender(from string) (string, error) {
	normalized := strings.TrimSpace(from)
	if strings.ContainsAny(normalized, "\r\n\t") {
		return "", ErrInvalidSender
	}
	return normalized, nil
}

// NormalizeMentions drops blank names and caps the list.
func NormalizeMentions(mentions []Mention) ([]Mention, error) {
	if len(mentions) == 0 {
		return nil, nil
	}
	if len(mentions) > MaxMentionsPerMsg {
		return nil, fmt.Errorf("too many mentions: max %d", MaxMentionsPerMsg)
	}
	out := make([]Mention, 0, len(mentions))
	for _, mention := range mentions {
		name := strings.TrimSpace(mention.Name)
		if name == "" {
			continue
		}
		out = append(out, Mention{Name: name})
	}
	return out, nil
}

// NormalizeMessage applies sender and mention normalization to a copy of msg.
func NormalizeMessage(msg Message) (Message, error) {
	out := CloneMessage(msg)
	from, err := NormalizeSender(out.From)
	if err != nil {
		return Message{}, err
	}
	out.From = from
	mentions, err := NormalizeMentions(out.Mentions)
	if err != nil {
		return Message{}, err
	}
	out.Mentions = mentions
	if strings.TrimSpace(out.Room) != "" {
		room, err := NormalizeRoom(out.Room)
		if err != nil {
			return Message{}, err
		}
		out.Room = room
	}
	return out, nil
}
