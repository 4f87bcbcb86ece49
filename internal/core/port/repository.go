package port

import (
	"context"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
)

// MessageRepository is the client's append-only chat log for one session.
type MessageRepository interface {
	Save(ctx context.Context, msg domain.ChatMessage) error
	List(ctx context.Context) ([]domain.ChatMessage, error)
	// Clear drops the log when the participant leaves.
	Clear(ctx context.Context) error
}
