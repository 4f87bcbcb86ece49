package domain

import (
	"github.com/google/uuid"
)

// SessionID is assigned by the relay when a control connection is established.
type SessionID string

// RoomID is caller supplied and acts as the meeting key.
type RoomID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (id SessionID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}

type MessageID uuid.UUID

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

func (id MessageID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *MessageID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// LinkID identifies one Peer Link instance. A replacement link towards the
// same remote always gets a fresh LinkID.
type LinkID uint64
