package domain

import (
	"strings"
	"time"
)

// RecipientEveryone is what clients put in Recipient for a room-wide message.
const RecipientEveryone = "Everyone"

// ChatMessage is delivered room-wide even when Recipient names someone;
// narrowing to "for me" is up to the receiving client.
type ChatMessage struct {
	ID        MessageID `json:"id"`
	From      SessionID `json:"from,omitempty"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient,omitempty"`
}

func NewChatMessage(from SessionID, sender, text, recipient string, at time.Time) (*ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if recipient == RecipientEveryone {
		recipient = ""
	}
	return &ChatMessage{
		ID:        NewMessageID(),
		From:      from,
		Sender:    sender,
		Text:      text,
		Timestamp: at,
		Recipient: recipient,
	}, nil
}

// Private reports whether the sender addressed someone in particular.
func (m ChatMessage) Private() bool {
	return m.Recipient != "" && m.Recipient != RecipientEveryone
}

// For reports whether a participant called name should see the message.
func (m ChatMessage) For(name string) bool {
	return !m.Private() || m.Recipient == name || m.Sender == name
}

type Transcript struct {
	From   SessionID `json:"from,omitempty"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
}

func NewTranscript(from SessionID, sender, text string) (*Transcript, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	return &Transcript{From: from, Sender: sender, Text: text}, nil
}

type HandRaise struct {
	SessionID SessionID `json:"sessionId"`
	Raised    bool      `json:"raised"`
}
