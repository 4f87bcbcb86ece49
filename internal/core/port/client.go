package port

import "github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"

// Client is one relay-side control connection.
type Client interface {
	ID() domain.SessionID
	// Send queues env for delivery without blocking. It reports false when
	// the envelope was dropped.
	Send(env domain.Envelope) bool
	Close() error
}
