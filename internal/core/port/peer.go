package port

import (
	"context"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
)

type TransportState string

const (
	TransportConnecting TransportState = "connecting"
	TransportConnected  TransportState = "connected"
	TransportFailed     TransportState = "failed"
	TransportClosed     TransportState = "closed"
)

// PeerFactory opens the direct transport towards one remote participant.
type PeerFactory interface {
	NewPeerConnection(remote domain.SessionID) (PeerConnection, error)
}

// PeerConnection is the negotiation surface of one direct channel. Callbacks
// must be registered before the first offer or answer is produced.
type PeerConnection interface {
	AddTrack(t Track) (RTPSender, error)
	// CreateOffer and CreateAnswer also apply the result as the local description.
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(c domain.ICECandidate) error
	OnICECandidate(fn func(domain.ICECandidate))
	OnStateChange(fn func(TransportState))
	SendData(msg domain.DataMessage) error
	OnData(fn func(domain.DataMessage))
	Close() error
}

// RTPSender is one outbound track attachment.
type RTPSender interface {
	Kind() domain.TrackKind
	ReplaceTrack(t Track) error
}
