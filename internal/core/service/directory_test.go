package service

import (
	"testing"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryJoinReturnsOthers(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	d.Admit("b", "")

	res, err := d.Join("a", "R1", "Alice")
	require.NoError(t, err)
	assert.Empty(t, res.Existing)
	assert.Equal(t, "Alice", res.Self.DisplayName)

	res, err = d.Join("b", "R1", "Bob")
	require.NoError(t, err)
	require.Len(t, res.Existing, 1)
	assert.Equal(t, domain.SessionID("a"), res.Existing[0].SessionID)
	assert.Equal(t, "Alice", res.Existing[0].DisplayName)
	assert.False(t, res.Rejoined)
	assert.Nil(t, res.Previous)
}

func TestDirectoryJoinUnknownSession(t *testing.T) {
	d := NewDirectory()
	_, err := d.Join("ghost", "R1", "x")
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
	assert.False(t, d.HasRoom("R1"))
}

func TestDirectoryJoinEmptyRoom(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	_, err := d.Join("a", " ", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidRoom)
}

func TestDirectoryRejoinSameRoomIsIdempotent(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	d.Admit("b", "")
	_, err := d.Join("a", "R1", "Alice")
	require.NoError(t, err)
	_, err = d.Join("b", "R1", "Bob")
	require.NoError(t, err)

	res, err := d.Join("b", "R1", "Bob")
	require.NoError(t, err)
	assert.True(t, res.Rejoined)
	assert.Len(t, res.Existing, 1)
	assert.Equal(t, []domain.SessionID{"a", "b"}, d.Members("R1"))
}

func TestDirectorySwitchRoomLeavesFirst(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	d.Admit("b", "")
	_, _ = d.Join("a", "R1", "Alice")
	_, _ = d.Join("b", "R1", "Bob")

	res, err := d.Join("b", "R2", "")
	require.NoError(t, err)
	require.NotNil(t, res.Previous)
	assert.Equal(t, domain.RoomID("R1"), res.Previous.Room)
	assert.Equal(t, []domain.SessionID{"a"}, res.Previous.Remaining)
	assert.Equal(t, "Bob", res.Self.DisplayName)

	assert.Equal(t, []domain.SessionID{"a"}, d.Members("R1"))
	assert.Equal(t, []domain.SessionID{"b"}, d.Members("R2"))
	assert.False(t, d.SameRoom("a", "b"))
}

func TestDirectoryLeaveDeletesEmptyRoom(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	_, _ = d.Join("a", "R1", "Alice")

	res, ok := d.Leave("a")
	require.True(t, ok)
	assert.True(t, res.Deleted)
	assert.Empty(t, res.Remaining)
	assert.False(t, d.HasRoom("R1"))

	_, ok = d.Leave("a")
	assert.False(t, ok)

	s, ok := d.Session("a")
	require.True(t, ok)
	assert.False(t, s.InRoom())
}

func TestDirectoryRemoveForgetsSession(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	d.Admit("b", "")
	_, _ = d.Join("a", "R1", "Alice")
	_, _ = d.Join("b", "R1", "Bob")

	res, inRoom := d.Remove("a")
	assert.True(t, inRoom)
	assert.Equal(t, []domain.SessionID{"b"}, res.Remaining)

	_, ok := d.Session("a")
	assert.False(t, ok)

	rooms, sessions := d.Counts()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, sessions)

	_, inRoom = d.Remove("nobody")
	assert.False(t, inRoom)
}

func TestDirectoryMediaStateSeenByLateJoiner(t *testing.T) {
	d := NewDirectory()
	d.Admit("a", "")
	d.Admit("b", "")
	_, _ = d.Join("a", "R1", "Alice")

	room, err := d.SetMediaState("a", domain.MediaState{Muted: true})
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("R1"), room)

	res, err := d.Join("b", "R1", "Bob")
	require.NoError(t, err)
	require.Len(t, res.Existing, 1)
	assert.True(t, res.Existing[0].Muted)
	assert.False(t, res.Existing[0].VideoOff)

	_, err = d.SetMediaState("ghost", domain.MediaState{})
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
}
