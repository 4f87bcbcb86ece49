package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	msg, err := NewChatMessage("s1", "Alice", "hi all", RecipientEveryone, at)
	require.NoError(t, err)
	assert.Empty(t, msg.Recipient)
	assert.False(t, msg.Private())
	assert.True(t, msg.For("Bob"))
	assert.Equal(t, at, msg.Timestamp)
	assert.NotEqual(t, MessageID{}, msg.ID)

	_, err = NewChatMessage("s1", "Alice", "   ", "", at)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatMessageFor(t *testing.T) {
	msg, err := NewChatMessage("s1", "Alice", "psst", "Bob", time.Now())
	require.NoError(t, err)

	assert.True(t, msg.Private())
	assert.True(t, msg.For("Bob"))
	assert.True(t, msg.For("Alice"))
	assert.False(t, msg.For("Carol"))
}

func TestNewTranscriptTrims(t *testing.T) {
	tr, err := NewTranscript("s1", "Alice", "  hello there \n")
	require.NoError(t, err)
	assert.Equal(t, "hello there", tr.Text)

	_, err = NewTranscript("s1", "Alice", "\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
