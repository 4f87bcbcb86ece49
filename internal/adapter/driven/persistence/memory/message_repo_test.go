package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepositoryKeepsOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()

	first, err := domain.NewChatMessage("a", "Alice", "one", "", time.Now())
	require.NoError(t, err)
	second, err := domain.NewChatMessage("b", "Bob", "two", "", time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, *first))
	require.NoError(t, repo.Save(ctx, *second))
	require.NoError(t, repo.Save(ctx, *first))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Text)
	assert.Equal(t, "two", got[1].Text)

	got[0].Text = "mutated"
	again, _ := repo.List(ctx)
	assert.Equal(t, "one", again[0].Text)
}

func TestMessageRepositoryClear(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	msg, _ := domain.NewChatMessage("a", "Alice", "one", "", time.Now())
	require.NoError(t, repo.Save(ctx, *msg))

	require.NoError(t, repo.Clear(ctx))
	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.Save(ctx, *msg))
	got, _ = repo.List(ctx)
	assert.Len(t, got, 1)
}

func TestMessageRepositoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg, _ := domain.NewChatMessage("a", "Alice", "one", "", time.Now())
	assert.ErrorIs(t, NewMessageRepository().Save(ctx, *msg), context.Canceled)
}
