package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"DEV":   zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"prod":  zerolog.WarnLevel,
		"trace": zerolog.TraceLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	l.Info().Msg("hidden")
	l.Warn().Str("session_id", "s1").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "s1", entry["session_id"])

	_, err = New(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestPionFactoryScopes(t *testing.T) {
	var buf bytes.Buffer
	f := NewPionFactory(zerolog.New(&buf))

	f.NewLogger("ice").Warnf("candidate %d failed", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ice", entry["scope"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "candidate 3 failed", entry["message"])
}
