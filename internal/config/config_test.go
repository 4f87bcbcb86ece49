package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDefaults(t *testing.T) {
	cfg, err := loadServer(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.ListenAddr)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, int64(64*1024), cfg.MaxMessageBytes)
	assert.Equal(t, 10*time.Second, cfg.WriteWait)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod())
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, float64(50), cfg.MaxEnvelopesPerSecond)
	assert.Equal(t, 100, cfg.EnvelopeBurst)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestServerEnvOverride(t *testing.T) {
	cfg, err := loadServer(map[string]string{
		"LISTEN_ADDR":     "127.0.0.1:9000",
		"ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"WS_PONG_WAIT":    "10s",
		"LOG_FORMAT":      "json",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 9*time.Second, cfg.PingPeriod())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestServerRejectsNonPositiveLimits(t *testing.T) {
	_, err := loadServer(map[string]string{
		"SEND_BUFFER":       "0",
		"MAX_MESSAGE_BYTES": "-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEND_BUFFER")
	assert.Contains(t, err.Error(), "MAX_MESSAGE_BYTES")
}

func TestServerRejectsBadDuration(t *testing.T) {
	_, err := loadServer(map[string]string{"WS_WRITE_WAIT": "soon"})
	assert.Error(t, err)
}

func TestClientDefaults(t *testing.T) {
	cfg, err := loadClient(Options{DisplayName: "alice"}, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:3001/ws", cfg.ServerURL)
	assert.Equal(t, DefaultSTUNServers, cfg.STUNServers)
	assert.Equal(t, "alice", cfg.DisplayName)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectInitial)
	assert.Equal(t, 10*time.Second, cfg.ReconnectMax)
	assert.Equal(t, 30*time.Second, cfg.AnswerTimeout)
}

func TestClientFlagsBeatEnv(t *testing.T) {
	environ := map[string]string{
		"MESH_SERVER_URL":   "ws://env:3001/ws",
		"MESH_STUN_SERVERS": "stun:env:3478",
		"MESH_DISPLAY_NAME": "env-name",
	}

	cfg, err := loadClient(Options{}, environ)
	require.NoError(t, err)
	assert.Equal(t, "ws://env:3001/ws", cfg.ServerURL)
	assert.Equal(t, []string{"stun:env:3478"}, cfg.STUNServers)
	assert.Equal(t, "env-name", cfg.DisplayName)

	cfg, err = loadClient(Options{
		ServerURL:   "wss://flag/ws",
		STUNServers: []string{"stun:flag:3478"},
		DisplayName: "flag-name",
		LogLevel:    "debug",
	}, environ)
	require.NoError(t, err)
	assert.Equal(t, "wss://flag/ws", cfg.ServerURL)
	assert.Equal(t, []string{"stun:flag:3478"}, cfg.STUNServers)
	assert.Equal(t, "flag-name", cfg.DisplayName)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestClientValidation(t *testing.T) {
	_, err := loadClient(Options{ServerURL: "http://localhost:3001", DisplayName: "a"}, map[string]string{})
	assert.Error(t, err)

	_, err = loadClient(Options{TURNServer: "turn:example.org", DisplayName: "a"}, map[string]string{})
	assert.Error(t, err)

	_, err = loadClient(Options{DisplayName: "a"}, map[string]string{
		"MESH_RECONNECT_INITIAL": "5s",
		"MESH_RECONNECT_MAX":     "1s",
	})
	assert.Error(t, err)

	_, err = loadClient(Options{DisplayName: "a"}, map[string]string{"MESH_ANSWER_TIMEOUT": "0s"})
	assert.Error(t, err)
}
