package pion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// Both ends create the data channel themselves with the same id, so it
	// never needs an in-band open handshake.
	dataChannelLabel = "mesh"
	dataChannelID    = 0
)

var (
	ErrDataChannelNotOpen = errors.New("data channel not open")
	ErrForeignTrack       = errors.New("track was not created by this package")
)

type peerConnection struct {
	pc  *webrtc.PeerConnection
	dc  *webrtc.DataChannel
	log zerolog.Logger
}

func (p *peerConnection) openDataChannel() error {
	negotiated := true
	id := uint16(dataChannelID)
	dc, err := p.pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.dc = dc
	return nil
}

func (p *peerConnection) AddTrack(t port.Track) (port.RTPSender, error) {
	tr, ok := t.(*Track)
	if !ok {
		return nil, ErrForeignTrack
	}
	rs, err := p.pc.AddTrack(tr.local)
	if err != nil {
		return nil, err
	}
	s := &sender{rs: rs, kind: tr.kind}
	s.track.Store(tr)
	go s.readRTCP(p.log)
	return s, nil
}

func (p *peerConnection) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *peerConnection) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *peerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	t := webrtc.NewSDPType(desc.Type)
	if t == webrtc.SDPTypeUnknown {
		return fmt.Errorf("unknown description type %q", desc.Type)
	}
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: desc.SDP})
}

func (p *peerConnection) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *peerConnection) OnICECandidate(fn func(domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		init := c.ToJSON()
		fn(domain.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (p *peerConnection) OnStateChange(fn func(port.TransportState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug().Str("state", s.String()).Msg("Peer connection state changed")
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			fn(port.TransportConnecting)
		case webrtc.PeerConnectionStateConnected:
			fn(port.TransportConnected)
		case webrtc.PeerConnectionStateFailed:
			fn(port.TransportFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(port.TransportClosed)
		}
	})
}

func (p *peerConnection) SendData(msg domain.DataMessage) error {
	if p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrDataChannelNotOpen
	}
	b, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return p.dc.Send(b)
}

func (p *peerConnection) OnData(fn func(domain.DataMessage)) {
	p.dc.OnMessage(func(raw webrtc.DataChannelMessage) {
		var msg domain.DataMessage
		if err := msgpack.Unmarshal(raw.Data, &msg); err != nil {
			p.log.Debug().Err(err).Msg("Undecodable data channel message")
			return
		}
		fn(msg)
	})
}

func (p *peerConnection) Close() error {
	return p.pc.Close()
}

type sender struct {
	rs    *webrtc.RTPSender
	kind  domain.TrackKind
	track atomic.Pointer[Track]
}

func (s *sender) Kind() domain.TrackKind {
	return s.kind
}

// ReplaceTrack swaps the outgoing track in place. nil pauses sending.
func (s *sender) ReplaceTrack(t port.Track) error {
	if t == nil {
		if err := s.rs.ReplaceTrack(nil); err != nil {
			return err
		}
		s.track.Store(nil)
		return nil
	}
	tr, ok := t.(*Track)
	if !ok {
		return ErrForeignTrack
	}
	if err := s.rs.ReplaceTrack(tr.local); err != nil {
		return err
	}
	s.track.Store(tr)
	return nil
}

// readRTCP drains receiver reports, which also keeps interceptors running,
// and passes keyframe requests to whatever track is being sent.
func (s *sender) readRTCP(l zerolog.Logger) {
	for {
		pkts, _, err := s.rs.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if t := s.track.Load(); t != nil {
					t.requestKeyframe()
					l.Trace().Str("track_id", t.ID()).Msg("Keyframe requested")
				}
			}
		}
	}
}
