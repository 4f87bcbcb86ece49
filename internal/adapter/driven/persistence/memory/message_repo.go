package memory

import (
	"context"
	"sync"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
)

// MessageRepository keeps chat in arrival order for as long as the process
// lives. Duplicate ids are ignored.
type MessageRepository struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	seen     map[domain.MessageID]struct{}
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make([]domain.ChatMessage, 0),
		seen:     make(map[domain.MessageID]struct{}),
	}
}

func (r *MessageRepository) Save(ctx context.Context, msg domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID != (domain.MessageID{}) {
		if _, dup := r.seen[msg.ID]; dup {
			return nil
		}
		r.seen[msg.ID] = struct{}{}
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *MessageRepository) List(ctx context.Context) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

func (r *MessageRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = r.messages[:0]
	r.seen = make(map[domain.MessageID]struct{})
	return nil
}
