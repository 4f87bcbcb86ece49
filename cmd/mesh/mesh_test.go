package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	callmem "github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/call/memory"
	persistmem "github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/persistence/memory"
	"github.com/Manishrsh/video-chat-connectify-app/internal/config"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthURL(t *testing.T) {
	for in, want := range map[string]string{
		"ws://localhost:3001/ws":          "http://localhost:3001/health",
		"wss://relay.example/ws?name=bob": "https://relay.example/health",
	} {
		got, err := healthURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := healthURL("ftp://relay")
	assert.Error(t, err)
}

func TestFetchHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","rooms":2,"sessions":5,"forwarded":40,"dropped":1}`))
	}))
	defer srv.Close()

	h, err := fetchHealth(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	require.NoError(t, err)
	assert.Equal(t, health{Status: "ok", Rooms: 2, Sessions: 5, Forwarded: 40, Dropped: 1}, h)
}

type sink struct {
	mu   sync.Mutex
	envs []domain.Envelope
}

func (s *sink) Send(ctx context.Context, env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return nil
}

func (s *sink) types() []domain.EnvelopeType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EnvelopeType
	for _, env := range s.envs {
		out = append(out, env.Type)
	}
	return out
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	out := &sink{}
	coord := mesh.NewCoordinator(callmem.NewFactory(), &callmem.Source{}, persistmem.NewMessageRepository())
	coord.Attach(out)
	p := &participant{cfg: config.Client{DisplayName: "Alice"}, room: "R1", coord: coord}
	require.NoError(t, coord.Join(ctx, "R1", "Alice"))

	quit := func() {}
	require.NoError(t, p.command(ctx, "hello everyone", quit))
	require.NoError(t, p.command(ctx, "/to Bob just you", quit))
	require.NoError(t, p.command(ctx, "/mute", quit))
	require.NoError(t, p.command(ctx, "/video off", quit))
	require.NoError(t, p.command(ctx, "/hand", quit))
	assert.Error(t, p.command(ctx, "/video sideways", quit))
	assert.Error(t, p.command(ctx, "/to Bob", quit))
	assert.Error(t, p.command(ctx, "/dance", quit))

	assert.Equal(t, []domain.EnvelopeType{
		domain.TypeJoinRoom,
		domain.TypeChatMessage,
		domain.TypeChatMessage,
		domain.TypeMediaState,
		domain.TypeMediaState,
		domain.TypeHandRaise,
	}, out.types())
	assert.Equal(t, domain.MediaState{Muted: true, VideoOff: true}, coord.MediaState())

	var left bool
	require.NoError(t, p.command(ctx, "/leave", func() { left = true }))
	assert.True(t, left)
}
