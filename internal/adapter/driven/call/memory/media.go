package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
)

type Track struct {
	id      string
	kind    domain.TrackKind
	enabled atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewTrack(id string, kind domain.TrackKind) *Track {
	t := &Track{id: id, kind: kind, done: make(chan struct{})}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string { return t.id }
func (t *Track) Kind() domain.TrackKind { return t.kind }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *Track) Enabled() bool { return t.enabled.Load() }
func (t *Track) Done() <-chan struct{} { return t.done }
func (t *Track) Stop() { t.once.Do(func() { close(t.done) }) }
func (t *Track) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Source is a MediaSource with no devices behind it.
type Source struct {
	mu         sync.Mutex
	captures   int
	screens    int
	FailCamera error
	FailScreen error
	// Gate, when set, blocks Capture until it is closed.
	Gate chan struct{}
}

func (s *Source) Capture(ctx context.Context) ([]port.Track, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCamera != nil {
		return nil, s.FailCamera
	}
	s.captures++
	return []port.Track{
		NewTrack(fmt.Sprintf("mic-%d", s.captures), domain.TrackAudio),
		NewTrack(fmt.Sprintf("camera-%d", s.captures), domain.TrackVideo),
	}, nil
}

func (s *Source) CaptureScreen(ctx context.Context) (port.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailScreen != nil {
		return nil, s.FailScreen
	}
	s.screens++
	return NewTrack(fmt.Sprintf("screen-%d", s.screens), domain.TrackVideo), nil
}

// Captures counts successful camera acquisitions.
func (s *Source) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}
