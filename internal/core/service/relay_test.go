package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu      sync.Mutex
	offline map[domain.SessionID]bool
	inbox   map[domain.SessionID][]domain.Envelope
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		offline: make(map[domain.SessionID]bool),
		inbox:   make(map[domain.SessionID][]domain.Envelope),
	}
}

func (g *fakeGateway) Deliver(to domain.SessionID, env domain.Envelope) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline[to] {
		return false
	}
	g.inbox[to] = append(g.inbox[to], env)
	return true
}

// take returns and clears everything delivered to id so far.
func (g *fakeGateway) take(id domain.SessionID) []domain.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.inbox[id]
	delete(g.inbox, id)
	return out
}

func (g *fakeGateway) types(id domain.SessionID) []domain.EnvelopeType {
	var out []domain.EnvelopeType
	for _, env := range g.take(id) {
		out = append(out, env.Type)
	}
	return out
}

func startRelay(t *testing.T) (*Relay, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	r := NewRelay(gw)
	go r.Run()
	t.Cleanup(r.Stop)
	return r, gw
}

func send(t *testing.T, r *Relay, from domain.SessionID, typ domain.EnvelopeType, payload any) {
	t.Helper()
	env, err := domain.NewEnvelope(typ, payload)
	require.NoError(t, err)
	require.NoError(t, r.Handle(context.Background(), from, env))
	// Stats is answered by the loop, so every earlier envelope is processed.
	r.Stats()
}

func connect(t *testing.T, r *Relay, gw *fakeGateway, ids ...domain.SessionID) {
	t.Helper()
	for _, id := range ids {
		r.Connect(id, "")
		r.Stats()
		welcome := gw.take(id)
		require.Len(t, welcome, 1)
		require.Equal(t, domain.TypeSession, welcome[0].Type)
	}
}

func join(t *testing.T, r *Relay, id domain.SessionID, room domain.RoomID, name string) {
	t.Helper()
	send(t, r, id, domain.TypeJoinRoom, domain.JoinRoomPayload{RoomID: room, DisplayName: name})
}

func members(t *testing.T, env domain.Envelope) []domain.Member {
	t.Helper()
	require.Equal(t, domain.TypeExistingMembers, env.Type)
	var out []domain.Member
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}

func TestRelayWelcomeCarriesSessionID(t *testing.T) {
	r, gw := startRelay(t)
	r.Connect("s1", "Alice")
	r.Stats()

	got := gw.take("s1")
	require.Len(t, got, 1)
	var p domain.SessionPayload
	require.NoError(t, got[0].Decode(&p))
	assert.Equal(t, domain.SessionID("s1"), p.SessionID)
}

func TestRelayJoinScenario(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B", "C")

	join(t, r, "A", "R1", "Alice")
	got := gw.take("A")
	require.Len(t, got, 1)
	assert.Empty(t, members(t, got[0]))
	assert.JSONEq(t, `[]`, string(got[0].Payload))

	join(t, r, "B", "R1", "Bob")
	got = gw.take("A")
	require.Len(t, got, 1)
	assert.Equal(t, domain.TypeMemberJoined, got[0].Type)
	var joined domain.Member
	require.NoError(t, got[0].Decode(&joined))
	assert.Equal(t, domain.Member{SessionID: "B", DisplayName: "Bob"}, joined)

	got = gw.take("B")
	require.Len(t, got, 1)
	assert.Equal(t, []domain.Member{{SessionID: "A", DisplayName: "Alice"}}, members(t, got[0]))

	join(t, r, "C", "R1", "Carol")
	assert.Equal(t, []domain.EnvelopeType{domain.TypeMemberJoined}, gw.types("A"))
	assert.Equal(t, []domain.EnvelopeType{domain.TypeMemberJoined}, gw.types("B"))
	got = gw.take("C")
	require.Len(t, got, 1)
	assert.Len(t, members(t, got[0]), 2)

	send(t, r, "A", domain.TypeLeaveRoom, domain.LeaveRoomPayload{RoomID: "R1"})
	for _, id := range []domain.SessionID{"B", "C"} {
		got = gw.take(id)
		require.Len(t, got, 1, id)
		assert.Equal(t, domain.TypeMemberLeft, got[0].Type)
		var left domain.MemberLeftPayload
		require.NoError(t, got[0].Decode(&left))
		assert.Equal(t, domain.SessionID("A"), left.SessionID)
	}
	assert.Empty(t, gw.take("A"))

	s := r.Stats()
	assert.Equal(t, 1, s.Rooms)
	assert.Equal(t, 3, s.Sessions)
}

func TestRelayRejoinDoesNotAnnounceTwice(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	gw.take("A")
	gw.take("B")

	join(t, r, "B", "R1", "Bob")
	assert.Empty(t, gw.take("A"))
	assert.Equal(t, []domain.EnvelopeType{domain.TypeExistingMembers}, gw.types("B"))
}

func TestRelaySwitchingRoomsNotifiesOldRoom(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B", "C")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	join(t, r, "C", "R2", "Carol")
	gw.take("A")
	gw.take("B")
	gw.take("C")

	join(t, r, "B", "R2", "Bob")
	assert.Equal(t, []domain.EnvelopeType{domain.TypeMemberLeft}, gw.types("A"))
	assert.Equal(t, []domain.EnvelopeType{domain.TypeMemberJoined}, gw.types("C"))
	assert.Equal(t, []domain.EnvelopeType{domain.TypeExistingMembers}, gw.types("B"))
}

func TestRelayForwardsOfferWithSenderStamp(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	gw.take("A")
	gw.take("B")

	raw := json.RawMessage(`{"offer":{"type":"offer","sdp":"v=0"},"to":"A","from":"spoofed","extra":true}`)
	require.NoError(t, r.Handle(context.Background(), "B", domain.Envelope{Type: domain.TypeOffer, Payload: raw}))
	r.Stats()

	got := gw.take("A")
	require.Len(t, got, 1)
	assert.Equal(t, domain.SessionID("B"), got[0].From)
	var p domain.OfferPayload
	require.NoError(t, got[0].Decode(&p))
	assert.Equal(t, domain.SessionID("B"), p.From)
	assert.Equal(t, "Bob", p.DisplayName)
	assert.Empty(t, p.To)
	assert.Equal(t, "v=0", p.Offer.SDP)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(got[0].Payload, &fields))
	assert.Equal(t, true, fields["extra"])
	assert.Empty(t, gw.take("B"))
}

func TestRelayNeverForwardsOutsideRoom(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B", "X")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "X", "R2", "Xavier")
	gw.take("A")
	gw.take("X")

	send(t, r, "A", domain.TypeICECandidate, domain.CandidatePayload{
		Candidate: domain.ICECandidate{Candidate: "candidate:1"},
		To:        "X",
	})
	send(t, r, "A", domain.TypeAnswer, domain.AnswerPayload{To: "B"})
	assert.Empty(t, gw.take("X"))
	assert.Empty(t, gw.take("B"))
	assert.Empty(t, gw.take("A"))
	assert.Equal(t, uint64(2), r.Stats().Dropped)
}

func TestRelayNeverEchoesDirectEnvelopeToSender(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	gw.take("A")
	gw.take("B")

	before := r.Stats()
	send(t, r, "A", domain.TypeOffer, domain.OfferPayload{Offer: domain.SessionDescription{Type: "offer", SDP: "v=0"}, To: "A"})
	send(t, r, "A", domain.TypeICECandidate, domain.CandidatePayload{
		Candidate: domain.ICECandidate{Candidate: "candidate:1"},
		To:        "A",
	})

	after := r.Stats()
	assert.Empty(t, gw.take("A"))
	assert.Empty(t, gw.take("B"))
	assert.Equal(t, before.Forwarded, after.Forwarded)
	assert.Equal(t, before.Dropped+2, after.Dropped)
}

func TestRelayDropsToDisconnectedRecipient(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	gw.take("A")
	gw.take("B")

	gw.mu.Lock()
	gw.offline["B"] = true
	gw.mu.Unlock()

	before := r.Stats().Dropped
	send(t, r, "A", domain.TypeOffer, domain.OfferPayload{To: "B"})
	assert.Equal(t, before+1, r.Stats().Dropped)
	assert.Empty(t, gw.take("A"))
}

func TestRelayMalformedEnvelopeGetsError(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A")
	join(t, r, "A", "R1", "Alice")
	gw.take("A")

	require.NoError(t, r.Handle(context.Background(), "A", domain.Envelope{Type: domain.TypeOffer, Payload: json.RawMessage(`{"offer":{}}`)}))
	require.NoError(t, r.Handle(context.Background(), "A", domain.Envelope{Type: "bogus"}))
	r.Stats()

	assert.Equal(t, []domain.EnvelopeType{domain.TypeError, domain.TypeError}, gw.types("A"))
}

func TestRelayMediaStateUsesStoredRoom(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B", "X")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	join(t, r, "X", "R2", "Xavier")
	gw.take("A")
	gw.take("B")
	gw.take("X")

	send(t, r, "A", domain.TypeMediaState, domain.MediaStatePayload{Muted: true, RoomID: "R2"})
	assert.Empty(t, gw.take("X"))
	assert.Empty(t, gw.take("A"))

	got := gw.take("B")
	require.Len(t, got, 1)
	var p domain.MediaStatePayload
	require.NoError(t, got[0].Decode(&p))
	assert.Equal(t, domain.MediaStatePayload{SessionID: "A", Muted: true}, p)
}

func TestRelayStampsSideChannelSender(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	gw.take("A")
	gw.take("B")

	send(t, r, "A", domain.TypeChatMessage, map[string]any{"text": "hi", "sender": "Mallory", "recipient": "Bob"})
	send(t, r, "A", domain.TypeHandRaise, map[string]any{"raised": true, "sessionId": "B"})

	got := gw.take("B")
	require.Len(t, got, 2)

	var chat domain.ChatMessage
	require.NoError(t, got[0].Decode(&chat))
	assert.Equal(t, "Alice", chat.Sender)
	assert.Equal(t, domain.SessionID("A"), chat.From)
	assert.Equal(t, "Bob", chat.Recipient)

	var hand domain.HandRaise
	require.NoError(t, got[1].Decode(&hand))
	assert.Equal(t, domain.HandRaise{SessionID: "A", Raised: true}, hand)
	assert.Empty(t, gw.take("A"))
}

func TestRelaySideChannelOutsideRoomIsNoop(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A")

	send(t, r, "A", domain.TypeTranscript, map[string]any{"text": "hello"})
	send(t, r, "A", domain.TypeMediaState, domain.MediaStatePayload{Muted: true})
	assert.Empty(t, gw.take("A"))
}

func TestRelayDisconnectNotifiesRoom(t *testing.T) {
	r, gw := startRelay(t)
	connect(t, r, gw, "A", "B")
	join(t, r, "A", "R1", "Alice")
	join(t, r, "B", "R1", "Bob")
	gw.take("A")
	gw.take("B")

	r.Disconnect("A")
	assert.Equal(t, 1, r.Stats().Sessions)
	assert.Equal(t, []domain.EnvelopeType{domain.TypeMemberLeft}, gw.types("B"))

	r.Disconnect("A")
	send(t, r, "A", domain.TypeChatMessage, map[string]any{"text": "ghost"})
	assert.Empty(t, gw.take("B"))
}

func TestRelayHandleAfterStop(t *testing.T) {
	gw := newFakeGateway()
	r := NewRelay(gw)
	go r.Run()
	r.Stop()

	err := r.Handle(context.Background(), "A", domain.Envelope{Type: domain.TypeJoinRoom})
	assert.Error(t, err)
	assert.Equal(t, Stats{}, r.Stats())
}
