package service

import (
	"fmt"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// forward delivers a direct envelope to its one recipient. Only the "to" field
// is read; the negotiation content passes through untouched apart from the
// sender stamp.
func (r *Relay) forward(from domain.SessionID, env domain.Envelope) error {
	to, err := env.Recipient()
	if err != nil {
		return err
	}
	if to == from || !r.dir.SameRoom(from, to) {
		r.dropped++
		log.Debug().
			Str("session_id", from.String()).
			Str("to", to.String()).
			Str("type", string(env.Type)).
			Msg("Recipient is the sender or outside its room, dropping")
		return nil
	}

	set := map[string]any{"from": from}
	if env.Type == domain.TypeOffer {
		if s, ok := r.dir.Session(from); ok {
			set["displayName"] = s.DisplayName
		}
	}
	payload, err := domain.Stamp(env.Payload, []string{"to"}, set)
	if err != nil {
		return err
	}

	r.send(to, domain.Envelope{Type: env.Type, Payload: payload, From: from})
	return nil
}

// broadcastFrom handles the room-scoped types. Sender identity is always
// taken from the connection, never from the payload.
func (r *Relay) broadcastFrom(from domain.SessionID, env domain.Envelope) error {
	s, ok := r.dir.Session(from)
	if !ok {
		return domain.ErrUnknownSession
	}

	var payload []byte
	switch env.Type {
	case domain.TypeMediaState:
		var p domain.MediaStatePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		room, err := r.dir.SetMediaState(from, domain.MediaState{Muted: p.Muted, VideoOff: p.VideoOff})
		if err != nil {
			return err
		}
		out, err := domain.NewEnvelope(domain.TypeMediaState, domain.MediaStatePayload{
			SessionID: from,
			Muted:     p.Muted,
			VideoOff:  p.VideoOff,
		})
		if err != nil {
			return err
		}
		out.From = from
		r.broadcast(room, from, out)
		return nil

	case domain.TypeChatMessage, domain.TypeTranscript:
		stamped, err := domain.Stamp(env.Payload, nil, map[string]any{
			"from":   from,
			"sender": s.DisplayName,
		})
		if err != nil {
			return err
		}
		payload = stamped

	case domain.TypeHandRaise:
		stamped, err := domain.Stamp(env.Payload, nil, map[string]any{"sessionId": from})
		if err != nil {
			return err
		}
		payload = stamped

	default:
		return fmt.Errorf("%w: %s is not room scoped", domain.ErrMalformedEnvelope, env.Type)
	}

	if !s.InRoom() {
		return domain.ErrNotInRoom
	}
	r.broadcast(s.RoomID, from, domain.Envelope{Type: env.Type, Payload: payload, From: from})
	return nil
}

// broadcast reads the room's membership at send time.
func (r *Relay) broadcast(room domain.RoomID, exclude domain.SessionID, env domain.Envelope) {
	for _, member := range r.dir.Members(room) {
		if member == exclude {
			continue
		}
		r.send(member, env)
	}
}
