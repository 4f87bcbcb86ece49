package domain

import "errors"

var (
	ErrUnknownSession    = errors.New("unknown session")
	ErrNotInRoom         = errors.New("session is not in a room")
	ErrEmptyMessage      = errors.New("message content cannot be empty")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrInvalidTransition = errors.New("invalid link state transition")
	ErrLinkClosed        = errors.New("link closed")
	ErrUnknownLink       = errors.New("no link for remote session")
	ErrMediaUnavailable  = errors.New("local media unavailable")
	ErrNotJoined         = errors.New("not joined to a room")
	ErrInvalidRoom       = errors.New("invalid room id")
)
