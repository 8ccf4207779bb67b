package chat

import "errors"

var (
	ErrUnknownKind      = errors.New("unknown event kind")
	ErrMissingTimestamp = errors.New("missing timestamp")
	ErrEmptyMessage     = errors.New("empty message")
	ErrInvalidRoom      = errors.New("invalid room id")
	ErrInvalidSender    = errors.New("invalid sender")
)
