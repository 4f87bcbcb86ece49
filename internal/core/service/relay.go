package service

import (
	"context"
	"errors"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Stats is a point-in-time view of the relay for health reporting.
type Stats struct {
	Rooms     int    `json:"rooms"`
	Sessions  int    `json:"sessions"`
	Forwarded uint64 `json:"forwarded"`
	Dropped   uint64 `json:"dropped"`
}

type connectRequest struct {
	id   domain.SessionID
	name string
}

type inbound struct {
	from domain.SessionID
	env  domain.Envelope
}

// Relay owns the Directory and routes envelopes between sessions. All state
// is touched only from Run, so envelopes from one connection are processed in
// the order they were handed over.
type Relay struct {
	dir     *Directory
	gateway port.Gateway

	connect    chan connectRequest
	disconnect chan domain.SessionID
	inbound    chan inbound
	stats      chan chan Stats
	quit       chan struct{}
	done       chan struct{}

	forwarded uint64
	dropped   uint64
}

func NewRelay(gateway port.Gateway) *Relay {
	return &Relay{
		dir:        NewDirectory(),
		gateway:    gateway,
		connect:    make(chan connectRequest),
		disconnect: make(chan domain.SessionID),
		inbound:    make(chan inbound),
		stats:      make(chan chan Stats),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Connect admits a freshly connected session and welcomes it with its id.
func (r *Relay) Connect(id domain.SessionID, displayName string) {
	select {
	case r.connect <- connectRequest{id: id, name: displayName}:
	case <-r.quit:
	}
}

// Disconnect removes the session and tells its room it left.
func (r *Relay) Disconnect(id domain.SessionID) {
	select {
	case r.disconnect <- id:
	case <-r.quit:
	}
}

// Handle queues one envelope received from a session.
func (r *Relay) Handle(ctx context.Context, from domain.SessionID, env domain.Envelope) error {
	select {
	case r.inbound <- inbound{from: from, env: env}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return errors.New("relay stopped")
	}
}

func (r *Relay) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case r.stats <- reply:
	case <-r.quit:
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-r.done:
		return Stats{}
	}
}

func (r *Relay) Stop() {
	close(r.quit)
	<-r.done
}

func (r *Relay) Run() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			rooms, sessions := r.dir.Counts()
			log.Info().Int("rooms", rooms).Int("sessions", sessions).Msg("Stopping relay")
			return

		case req := <-r.connect:
			r.dir.Admit(req.id, req.name)
			r.deliver(req.id, domain.TypeSession, domain.SessionPayload{SessionID: req.id})
			log.Info().Str("session_id", req.id.String()).Msg("Session connected")

		case id := <-r.disconnect:
			if res, inRoom := r.dir.Remove(id); inRoom {
				r.memberLeft(id, res)
			}
			log.Info().Str("session_id", id.String()).Msg("Session disconnected")

		case in := <-r.inbound:
			r.dispatch(in.from, in.env)

		case reply := <-r.stats:
			rooms, sessions := r.dir.Counts()
			reply <- Stats{
				Rooms:     rooms,
				Sessions:  sessions,
				Forwarded: r.forwarded,
				Dropped:   r.dropped,
			}
		}
	}
}

func (r *Relay) dispatch(from domain.SessionID, env domain.Envelope) {
	if _, ok := r.dir.Session(from); !ok {
		log.Debug().Str("session_id", from.String()).Str("type", string(env.Type)).Msg("Envelope from unknown session ignored")
		return
	}

	var err error
	switch env.Type.Scope() {
	case domain.ScopeDirect:
		err = r.forward(from, env)
	case domain.ScopeRoom:
		err = r.broadcastFrom(from, env)
	default:
		switch env.Type {
		case domain.TypeJoinRoom:
			err = r.join(from, env)
		case domain.TypeLeaveRoom:
			if res, ok := r.dir.Leave(from); ok {
				r.memberLeft(from, res)
			}
		default:
			err = errors.New("unsupported envelope type " + string(env.Type))
		}
	}

	if err != nil {
		log.Warn().Err(err).Str("session_id", from.String()).Str("type", string(env.Type)).Msg("Envelope rejected")
		if errors.Is(err, domain.ErrNotInRoom) || errors.Is(err, domain.ErrUnknownSession) {
			return
		}
		r.deliver(from, domain.TypeError, domain.ErrorPayload{Error: err.Error()})
	}
}

func (r *Relay) join(from domain.SessionID, env domain.Envelope) error {
	var p domain.JoinRoomPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	res, err := r.dir.Join(from, p.RoomID, p.DisplayName)
	if err != nil {
		return err
	}
	if res.Previous != nil {
		r.memberLeft(from, *res.Previous)
	}
	if !res.Rejoined {
		joined, err := domain.NewEnvelope(domain.TypeMemberJoined, res.Self)
		if err != nil {
			return err
		}
		joined.From = from
		r.broadcast(res.Room, from, joined)
	}

	existing := res.Existing
	if existing == nil {
		existing = []domain.Member{}
	}
	r.deliver(from, domain.TypeExistingMembers, existing)

	log.Info().
		Str("session_id", from.String()).
		Str("room_id", res.Room.String()).
		Int("members", len(res.Existing)+1).
		Bool("rejoined", res.Rejoined).
		Msg("Session joined room")
	return nil
}

func (r *Relay) memberLeft(id domain.SessionID, res LeaveResult) {
	env, err := domain.NewEnvelope(domain.TypeMemberLeft, domain.MemberLeftPayload{SessionID: id})
	if err != nil {
		log.Error().Err(err).Msg("Encoding member-left")
		return
	}
	env.From = id
	for _, member := range res.Remaining {
		r.send(member, env)
	}
	log.Info().
		Str("session_id", id.String()).
		Str("room_id", res.Room.String()).
		Bool("room_deleted", res.Deleted).
		Msg("Session left room")
}

// deliver sends a relay-originated envelope to one session.
func (r *Relay) deliver(to domain.SessionID, t domain.EnvelopeType, payload any) {
	env, err := domain.NewEnvelope(t, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("Encoding relay envelope")
		return
	}
	r.send(to, env)
}

func (r *Relay) send(to domain.SessionID, env domain.Envelope) {
	if r.gateway.Deliver(to, env) {
		r.forwarded++
		return
	}
	r.dropped++
	log.Debug().Str("session_id", to.String()).Str("type", string(env.Type)).Msg("Envelope dropped")
}
