package domain

import (
	"fmt"
	"time"
)

// Role decides which side of a Peer Link originates the negotiation.
type Role string

const (
	RoleCaller Role = "caller" // joined later, sends the offer
	RoleCallee Role = "callee" // already present, answers
)

type LinkState string

const (
	LinkNew        LinkState = "new"
	LinkOfferSent  LinkState = "offer_sent"
	LinkAnswerSent LinkState = "answer_sent"
	LinkConnected  LinkState = "connected"
	LinkClosed     LinkState = "closed"
)

var linkTransitions = map[LinkState][]LinkState{
	LinkNew:        {LinkOfferSent, LinkAnswerSent, LinkClosed},
	LinkOfferSent:  {LinkConnected, LinkClosed},
	LinkAnswerSent: {LinkConnected, LinkClosed},
	LinkConnected:  {LinkClosed},
}

// CanTransition reports whether a link may move from s to next. No state is
// re-entered and nothing leaves LinkClosed.
func (s LinkState) CanTransition(next LinkState) bool {
	for _, allowed := range linkTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s LinkState) Transition(next LinkState) (LinkState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// DataMessage travels on a link's data channel, peer to peer.
type DataMessage struct {
	Kind   string    `msgpack:"kind"`
	Body   []byte    `msgpack:"body"`
	SentAt time.Time `msgpack:"sentAt"`
}

const (
	DataKindPing = "ping"
	DataKindPong = "pong"
)
