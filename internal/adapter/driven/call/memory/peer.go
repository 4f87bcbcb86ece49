// Package memory is an in-process stand-in for the WebRTC stack. Nothing
// leaves the process: descriptions are placeholder SDP and candidates are
// whatever the test feeds in.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
)

var (
	ErrClosed         = errors.New("peer connection closed")
	ErrNoRemoteDesc   = errors.New("remote description not set")
	ErrEmptySDP       = errors.New("empty session description")
	ErrNoLocalOffered = errors.New("answer without a pending offer")
)

// Factory hands out loopback peer connections and remembers them per remote.
type Factory struct {
	mu      sync.Mutex
	conns   map[domain.SessionID][]*PeerConnection
	failNew map[domain.SessionID]error
	// Configure, when set, runs on every new connection before it is returned.
	Configure func(pc *PeerConnection)
}

func NewFactory() *Factory {
	return &Factory{
		conns:   make(map[domain.SessionID][]*PeerConnection),
		failNew: make(map[domain.SessionID]error),
	}
}

func (f *Factory) NewPeerConnection(remote domain.SessionID) (port.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failNew[remote]; ok {
		delete(f.failNew, remote)
		return nil, err
	}
	pc := &PeerConnection{Remote: remote}
	if f.Configure != nil {
		f.Configure(pc)
	}
	f.conns[remote] = append(f.conns[remote], pc)
	return pc, nil
}

// FailNext makes the next connection towards remote fail to open.
func (f *Factory) FailNext(remote domain.SessionID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNew[remote] = err
}

// Last is the newest connection towards remote, or nil.
func (f *Factory) Last(remote domain.SessionID) *PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns := f.conns[remote]
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

func (f *Factory) Count(remote domain.SessionID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[remote])
}

type PeerConnection struct {
	Remote domain.SessionID

	// Failure injection, read at call time.
	FailOffer  error
	FailAnswer error
	FailRemote error

	mu          sync.Mutex
	senders     []*Sender
	local       *domain.SessionDescription
	remote      *domain.SessionDescription
	candidates  []domain.ICECandidate
	sent        []domain.DataMessage
	closed      bool
	onCandidate func(domain.ICECandidate)
	onState     func(port.TransportState)
	onData      func(domain.DataMessage)
}

func (pc *PeerConnection) AddTrack(t port.Track) (port.RTPSender, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return nil, ErrClosed
	}
	s := &Sender{kind: t.Kind()}
	s.track.Store(&trackRef{t})
	pc.senders = append(pc.senders, s)
	return s, nil
}

func (pc *PeerConnection) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return domain.SessionDescription{}, ErrClosed
	}
	if pc.FailOffer != nil {
		return domain.SessionDescription{}, pc.FailOffer
	}
	desc := domain.SessionDescription{Type: "offer", SDP: pc.sdp("offer")}
	pc.local = &desc
	return desc, nil
}

func (pc *PeerConnection) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return domain.SessionDescription{}, ErrClosed
	}
	if pc.FailAnswer != nil {
		return domain.SessionDescription{}, pc.FailAnswer
	}
	if pc.remote == nil || pc.remote.Type != "offer" {
		return domain.SessionDescription{}, ErrNoLocalOffered
	}
	desc := domain.SessionDescription{Type: "answer", SDP: pc.sdp("answer")}
	pc.local = &desc
	return desc, nil
}

func (pc *PeerConnection) sdp(kind string) string {
	return fmt.Sprintf("v=0\r\ns=loopback %s towards %s\r\nm=audio\r\nm=video\r\nm=application\r\n", kind, pc.Remote)
}

func (pc *PeerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return ErrClosed
	}
	if pc.FailRemote != nil {
		return pc.FailRemote
	}
	if desc.SDP == "" {
		return ErrEmptySDP
	}
	pc.remote = &desc
	return nil
}

// AddICECandidate refuses candidates before the remote description, like a
// browser does.
func (pc *PeerConnection) AddICECandidate(c domain.ICECandidate) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return ErrClosed
	}
	if pc.remote == nil {
		return ErrNoRemoteDesc
	}
	pc.candidates = append(pc.candidates, c)
	return nil
}

func (pc *PeerConnection) OnICECandidate(fn func(domain.ICECandidate)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onCandidate = fn
}

func (pc *PeerConnection) OnStateChange(fn func(port.TransportState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onState = fn
}

func (pc *PeerConnection) OnData(fn func(domain.DataMessage)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onData = fn
}

func (pc *PeerConnection) SendData(msg domain.DataMessage) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return ErrClosed
	}
	pc.sent = append(pc.sent, msg)
	return nil
}

func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.closed = true
	return nil
}

// EmitCandidate plays a locally gathered candidate.
func (pc *PeerConnection) EmitCandidate(c domain.ICECandidate) {
	pc.mu.Lock()
	fn := pc.onCandidate
	pc.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// SetTransportState plays a transport state change.
func (pc *PeerConnection) SetTransportState(s port.TransportState) {
	pc.mu.Lock()
	fn := pc.onState
	pc.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Receive plays an inbound data channel message.
func (pc *PeerConnection) Receive(msg domain.DataMessage) {
	pc.mu.Lock()
	fn := pc.onData
	pc.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (pc *PeerConnection) Candidates() []domain.ICECandidate {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]domain.ICECandidate(nil), pc.candidates...)
}

func (pc *PeerConnection) Sent() []domain.DataMessage {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]domain.DataMessage(nil), pc.sent...)
}

func (pc *PeerConnection) Senders() []*Sender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*Sender(nil), pc.senders...)
}

// Sender returns the first sender of the given kind, or nil.
func (pc *PeerConnection) Sender(kind domain.TrackKind) *Sender {
	for _, s := range pc.Senders() {
		if s.kind == kind {
			return s
		}
	}
	return nil
}

func (pc *PeerConnection) LocalDescription() *domain.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.local
}

func (pc *PeerConnection) RemoteDescription() *domain.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.remote
}

func (pc *PeerConnection) Closed() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

type trackRef struct{ port.Track }

type Sender struct {
	kind  domain.TrackKind
	track atomic.Pointer[trackRef]
	// FailReplace, when set, makes ReplaceTrack fail and keep the old track.
	FailReplace atomic.Pointer[error]
}

func (s *Sender) Kind() domain.TrackKind {
	return s.kind
}

func (s *Sender) ReplaceTrack(t port.Track) error {
	if errp := s.FailReplace.Load(); errp != nil {
		return *errp
	}
	s.track.Store(&trackRef{t})
	return nil
}

// Track is the track currently being sent, nil when sending is paused.
func (s *Sender) Track() port.Track {
	ref := s.track.Load()
	if ref == nil {
		return nil
	}
	return ref.Track
}
