package pion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// Track is an outbound sample track. Disabled tracks stay attached but
// write nothing.
type Track struct {
	local     *webrtc.TrackLocalStaticSample
	kind      domain.TrackKind
	enabled   atomic.Bool
	keyframes atomic.Int64
	done      chan struct{}
	once      sync.Once
}

func NewTrack(kind domain.TrackKind, id, streamID string) (*Track, error) {
	mime := webrtc.MimeTypeVP8
	if kind == domain.TrackAudio {
		mime = webrtc.MimeTypeOpus
	}
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	t := &Track{local: local, kind: kind, done: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) ID() string { return t.local.ID() }
func (t *Track) Kind() domain.TrackKind { return t.kind }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *Track) Enabled() bool { return t.enabled.Load() }
func (t *Track) Done() <-chan struct{} { return t.done }
func (t *Track) Stop() { t.once.Do(func() { close(t.done) }) }
func (t *Track) requestKeyframe() { t.keyframes.Add(1) }

// KeyframeRequests counts PLI and FIR received for this track.
func (t *Track) KeyframeRequests() int64 { return t.keyframes.Load() }

// WriteSample sends one encoded frame. It is a no-op once stopped or while
// disabled.
func (t *Track) WriteSample(s media.Sample) error {
	select {
	case <-t.done:
		return nil
	default:
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// Synthetic is a MediaSource without devices: it paces placeholder frames
// so links carry RTP the way a camera would.
type Synthetic struct {
	StreamID string
	// ScreenFor ends each screen capture after the given time, like a user
	// closing the browser's share prompt. Zero keeps it running.
	ScreenFor time.Duration

	seq atomic.Int64
}

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = time.Second / 30
)

// Opus encoding of 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func (s *Synthetic) Capture(ctx context.Context) ([]port.Track, error) {
	n := s.seq.Add(1)
	mic, err := NewTrack(domain.TrackAudio, fmt.Sprintf("mic-%d", n), s.StreamID)
	if err != nil {
		return nil, err
	}
	cam, err := NewTrack(domain.TrackVideo, fmt.Sprintf("camera-%d", n), s.StreamID)
	if err != nil {
		return nil, err
	}
	go pace(mic, audioFrame, func(int) []byte { return opusSilence })
	go pace(cam, videoFrame, videoPattern)
	return []port.Track{mic, cam}, nil
}

func (s *Synthetic) CaptureScreen(ctx context.Context) (port.Track, error) {
	n := s.seq.Add(1)
	screen, err := NewTrack(domain.TrackVideo, fmt.Sprintf("screen-%d", n), s.StreamID)
	if err != nil {
		return nil, err
	}
	go pace(screen, videoFrame, videoPattern)
	if s.ScreenFor > 0 {
		time.AfterFunc(s.ScreenFor, screen.Stop)
	}
	return screen, nil
}

func videoPattern(frame int) []byte {
	b := make([]byte, 64)
	for i := range b {
		b[i] = byte(frame + i)
	}
	return b
}

func pace(t *Track, every time.Duration, next func(frame int) []byte) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: next(frame), Duration: every}); err != nil {
				log.Debug().Err(err).Str("track_id", t.ID()).Msg("Dropping sample")
			}
		}
	}
}
