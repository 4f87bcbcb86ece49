package domain

import (
	"encoding/json"
	"fmt"
)

type EnvelopeType string

const (
	TypeJoinRoom     EnvelopeType = "join-room"
	TypeLeaveRoom    EnvelopeType = "leave-room"
	TypeOffer        EnvelopeType = "offer"
	TypeAnswer       EnvelopeType = "answer"
	TypeICECandidate EnvelopeType = "ice-candidate"
	TypeMediaState   EnvelopeType = "media-state"
	TypeChatMessage  EnvelopeType = "chat-message"
	TypeTranscript   EnvelopeType = "transcript-update"
	TypeHandRaise    EnvelopeType = "hand-raise"

	// relay -> client only
	TypeSession         EnvelopeType = "session"
	TypeExistingMembers EnvelopeType = "existing-members"
	TypeMemberJoined    EnvelopeType = "member-joined"
	TypeMemberLeft      EnvelopeType = "member-left"
	TypeError           EnvelopeType = "error"
)

// Scope tells the relay how an envelope is routed.
type Scope int

const (
	// ScopeControl envelopes are consumed by the relay itself.
	ScopeControl Scope = iota
	// ScopeDirect envelopes name exactly one recipient in their payload.
	ScopeDirect
	// ScopeRoom envelopes go to every other member of the sender's room.
	ScopeRoom
)

func (t EnvelopeType) Scope() Scope {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return ScopeDirect
	case TypeMediaState, TypeChatMessage, TypeTranscript, TypeHandRaise:
		return ScopeRoom
	default:
		return ScopeControl
	}
}

// Envelope is the unit exchanged through the relay. From is stamped by the
// relay and is never trusted when it arrives from a client.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	From    SessionID       `json:"from,omitempty"`
}

func NewEnvelope(t EnvelopeType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: b}, nil
}

func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEnvelope, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Type, err)
	}
	return nil
}

// Recipient extracts only the "to" field of a direct-scope payload. The rest
// of the payload stays opaque.
func (e Envelope) Recipient() (SessionID, error) {
	var addr struct {
		To SessionID `json:"to"`
	}
	if err := e.Decode(&addr); err != nil {
		return "", err
	}
	if addr.To == "" {
		return "", fmt.Errorf("%w: %s without recipient", ErrMalformedEnvelope, e.Type)
	}
	return addr.To, nil
}

// Stamp rewrites top-level payload fields without looking at the others:
// keys in drop are removed, keys in set are overwritten.
func Stamp(payload json.RawMessage, drop []string, set map[string]any) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("%w: payload is not an object: %v", ErrMalformedEnvelope, err)
		}
	}
	for _, k := range drop {
		delete(fields, k)
	}
	for k, v := range set {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = b
	}
	return json.Marshal(fields)
}

type JoinRoomPayload struct {
	RoomID      RoomID `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type LeaveRoomPayload struct {
	RoomID RoomID `json:"roomId,omitempty"`
}

type SessionPayload struct {
	SessionID SessionID `json:"sessionId"`
}

type MemberLeftPayload struct {
	SessionID SessionID `json:"sessionId"`
}

// SessionDescription mirrors the browser's RTCSessionDescriptionInit.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser's RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type OfferPayload struct {
	Offer       SessionDescription `json:"offer"`
	To          SessionID          `json:"to,omitempty"`
	From        SessionID          `json:"from,omitempty"`
	DisplayName string             `json:"displayName,omitempty"`
}

type AnswerPayload struct {
	Answer SessionDescription `json:"answer"`
	To     SessionID          `json:"to,omitempty"`
	From   SessionID          `json:"from,omitempty"`
}

type CandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
	To        SessionID    `json:"to,omitempty"`
	From      SessionID    `json:"from,omitempty"`
}

type MediaStatePayload struct {
	SessionID SessionID `json:"sessionId,omitempty"`
	Muted     bool      `json:"muted"`
	VideoOff  bool      `json:"videoOff"`
	RoomID    RoomID    `json:"roomId,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
