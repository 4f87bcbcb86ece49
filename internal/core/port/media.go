package port

import (
	"context"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
)

// Track is a local outbound media source.
type Track interface {
	ID() string
	Kind() domain.TrackKind
	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
	// Done is closed once the track has ended, whoever ended it.
	Done() <-chan struct{}
}

// MediaSource is the local capture capability. Both calls may block on the
// device or on a user permission prompt.
type MediaSource interface {
	Capture(ctx context.Context) ([]Track, error)
	CaptureScreen(ctx context.Context) (Track, error)
}

// Transcriber is an on-device speech-to-text engine. Run returns when the
// engine stops on its own; callers restart it.
type Transcriber interface {
	Run(ctx context.Context, emit func(text string)) error
}

// Signaler carries envelopes from a client to the relay.
type Signaler interface {
	Send(ctx context.Context, env domain.Envelope) error
}
