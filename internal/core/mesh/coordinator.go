// Package mesh is the participant side of the full mesh: one Link per remote
// member, set up over the relay and torn down when either side leaves.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultAnswerTimeout is how long a calling link waits in OFFER_SENT.
const DefaultAnswerTimeout = 30 * time.Second

// DataHandler receives data channel messages other than pings.
type DataHandler func(from domain.SessionID, msg domain.DataMessage)

// Coordinator owns every Link of the local participant, keyed by LinkID with
// a by-remote index. Links are only created and closed through it.
type Coordinator struct {
	factory port.PeerFactory
	media   port.MediaSource
	side    *SideChannel
	log     zerolog.Logger

	mu       sync.Mutex
	signal   port.Signaler
	self     domain.SessionID
	name     string
	room     domain.RoomID
	joined   bool
	links    map[domain.LinkID]*Link
	byRemote map[domain.SessionID]domain.LinkID
	nextID   domain.LinkID
	roster   map[domain.SessionID]domain.Member
	orphans  map[domain.SessionID][]domain.ICECandidate
	muted    bool
	videoOff bool
	screen   port.Track
	onData   DataHandler
	answerIn time.Duration

	// mediaMu makes concurrent links share one capture.
	mediaMu sync.Mutex
	local   []port.Track
}

func NewCoordinator(factory port.PeerFactory, media port.MediaSource, repo port.MessageRepository) *Coordinator {
	c := &Coordinator{
		factory:  factory,
		media:    media,
		log:      log.With().Str("component", "mesh").Logger(),
		links:    make(map[domain.LinkID]*Link),
		byRemote: make(map[domain.SessionID]domain.LinkID),
		roster:   make(map[domain.SessionID]domain.Member),
		orphans:  make(map[domain.SessionID][]domain.ICECandidate),
		answerIn: DefaultAnswerTimeout,
	}
	c.side = newSideChannel(repo, c)
	return c
}

// SetAnswerTimeout changes how long a calling link waits for its answer
// before it is closed. It applies to links opened afterwards; zero disables it.
func (c *Coordinator) SetAnswerTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerIn = d
}

// Attach sets the control channel used for everything sent to the relay.
func (c *Coordinator) Attach(s port.Signaler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal = s
}

func (c *Coordinator) SideChannel() *SideChannel {
	return c.side
}

func (c *Coordinator) SessionID() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Coordinator) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Room is the joined room, empty when not joined.
func (c *Coordinator) Room() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ""
	}
	return c.room
}

// OnData registers fn for incoming data channel messages.
func (c *Coordinator) OnData(fn DataHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onData = fn
}

func (c *Coordinator) send(ctx context.Context, t domain.EnvelopeType, payload any) error {
	c.mu.Lock()
	s := c.signal
	c.mu.Unlock()
	if s == nil {
		return errors.New("no control channel attached")
	}
	env, err := domain.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	return s.Send(ctx, env)
}

// Join acquires local media and asks the relay to join room. Links are built
// once the member list comes back. A capture failure is returned and nothing
// is sent.
func (c *Coordinator) Join(ctx context.Context, room domain.RoomID, displayName string) error {
	if room == "" {
		return domain.ErrInvalidRoom
	}
	if _, err := c.localMedia(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.joined && c.room != room {
		c.mu.Unlock()
		if err := c.Leave(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Leaving previous room")
		}
		if _, err := c.localMedia(ctx); err != nil {
			return err
		}
		c.mu.Lock()
	}
	c.room = room
	c.name = displayName
	c.joined = true
	c.mu.Unlock()

	return c.send(ctx, domain.TypeJoinRoom, domain.JoinRoomPayload{RoomID: room, DisplayName: displayName})
}

// Leave closes every link, stops every owned track, tells the relay and
// forgets everything local. Nothing is drained first.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return domain.ErrNotJoined
	}
	room := c.room
	c.joined = false
	c.room = ""
	links := c.takeLinksLocked()
	screen := c.screen
	c.screen = nil
	c.roster = make(map[domain.SessionID]domain.Member)
	c.orphans = make(map[domain.SessionID][]domain.ICECandidate)
	c.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
	if screen != nil {
		screen.Stop()
	}
	c.releaseMedia()
	c.side.reset(ctx)

	c.log.Info().Str("room_id", room.String()).Int("links", len(links)).Msg("Left room")
	return c.send(ctx, domain.TypeLeaveRoom, domain.LeaveRoomPayload{RoomID: room})
}

// Reset drops all links after the control channel was lost. The relay has
// forgotten this session, so the room has to be joined again with a fresh
// mesh. Local media and the chat log are kept. It returns the room to rejoin.
func (c *Coordinator) Reset() (domain.RoomID, string, bool) {
	c.mu.Lock()
	links := c.takeLinksLocked()
	c.self = ""
	c.roster = make(map[domain.SessionID]domain.Member)
	c.orphans = make(map[domain.SessionID][]domain.ICECandidate)
	room, name, joined := c.room, c.name, c.joined
	c.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
	c.side.clearHands()
	return room, name, joined
}

func (c *Coordinator) takeLinksLocked() []*Link {
	links := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.links = make(map[domain.LinkID]*Link)
	c.byRemote = make(map[domain.SessionID]domain.LinkID)
	return links
}

// HandleEnvelope applies one envelope from the relay. Errors concern that
// envelope only; the caller logs them and carries on.
func (c *Coordinator) HandleEnvelope(ctx context.Context, env domain.Envelope) error {
	switch env.Type {
	case domain.TypeSession:
		var p domain.SessionPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		c.mu.Lock()
		c.self = p.SessionID
		c.mu.Unlock()
		c.log.Info().Str("session_id", p.SessionID.String()).Msg("Connected to relay")
		return nil

	case domain.TypeExistingMembers:
		var members []domain.Member
		if err := env.Decode(&members); err != nil {
			return err
		}
		return c.callAll(ctx, members)

	case domain.TypeMemberJoined:
		var m domain.Member
		if err := env.Decode(&m); err != nil {
			return err
		}
		// The newcomer calls us.
		c.mu.Lock()
		c.roster[m.SessionID] = m
		c.mu.Unlock()
		if l, ok := c.link(m.SessionID); ok {
			l.setDisplayName(m.DisplayName)
		}
		return nil

	case domain.TypeMemberLeft:
		var p domain.MemberLeftPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		c.memberLeft(p.SessionID)
		return nil

	case domain.TypeOffer:
		var p domain.OfferPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return c.accept(ctx, sender(env, p.From), p.DisplayName, p.Offer)

	case domain.TypeAnswer:
		var p domain.AnswerPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		l, ok := c.link(sender(env, p.From))
		if !ok {
			return domain.ErrUnknownLink
		}
		return l.acceptAnswer(p.Answer)

	case domain.TypeICECandidate:
		var p domain.CandidatePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return c.remoteCandidate(sender(env, p.From), p.Candidate)

	case domain.TypeMediaState:
		var p domain.MediaStatePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		id := sender(env, p.SessionID)
		c.mu.Lock()
		if m, ok := c.roster[id]; ok {
			m.Muted, m.VideoOff = p.Muted, p.VideoOff
			c.roster[id] = m
		}
		c.mu.Unlock()
		return nil

	case domain.TypeChatMessage:
		return c.side.receiveChat(ctx, env)
	case domain.TypeTranscript:
		return c.side.receiveTranscript(env)
	case domain.TypeHandRaise:
		return c.side.receiveHand(env)

	case domain.TypeError:
		var p domain.ErrorPayload
		_ = env.Decode(&p)
		c.log.Warn().Str("error", p.Error).Msg("Relay rejected an envelope")
		return nil

	default:
		c.log.Debug().Str("type", string(env.Type)).Msg("Ignoring envelope")
		return nil
	}
}

func sender(env domain.Envelope, fallback domain.SessionID) domain.SessionID {
	if env.From != "" {
		return env.From
	}
	return fallback
}

// callAll creates one caller link per existing member, concurrently. A member
// that already has a link is skipped. One failed link does not stop the rest.
func (c *Coordinator) callAll(ctx context.Context, members []domain.Member) error {
	c.mu.Lock()
	var todo []domain.Member
	for _, m := range members {
		if m.SessionID == c.self {
			continue
		}
		c.roster[m.SessionID] = m
		if _, ok := c.byRemote[m.SessionID]; !ok {
			todo = append(todo, m)
		}
	}
	c.mu.Unlock()
	if len(todo) == 0 {
		return nil
	}

	tracks, err := c.outbound(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, m := range todo {
		g.Go(func() error {
			if err := c.call(ctx, m, tracks); err != nil {
				c.log.Warn().Err(err).Str("remote_id", m.SessionID.String()).Msg("Could not call member")
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) call(ctx context.Context, m domain.Member, tracks []port.Track) error {
	l, err := c.openLink(m.SessionID, domain.RoleCaller, m.DisplayName)
	if err != nil {
		return err
	}
	if err := l.attach(tracks); err != nil {
		return l.fail(err)
	}
	if err := l.offer(ctx); err != nil {
		return err
	}
	c.adoptOrphans(l)
	return nil
}

// accept answers an offer. An offer from a remote that already has a link
// replaces that link with a fresh one.
func (c *Coordinator) accept(ctx context.Context, remote domain.SessionID, displayName string, offer domain.SessionDescription) error {
	if remote == "" {
		return fmt.Errorf("%w: offer without sender", domain.ErrMalformedEnvelope)
	}
	if old, ok := c.link(remote); ok {
		c.log.Info().Str("remote_id", remote.String()).Msg("Renewed offer, replacing link")
		c.closeLink(old)
	}

	c.mu.Lock()
	m := c.roster[remote]
	m.SessionID = remote
	if displayName != "" {
		m.DisplayName = displayName
	}
	c.roster[remote] = m
	c.mu.Unlock()

	tracks, err := c.outbound(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("remote_id", remote.String()).Msg("No local media, answering receive-only")
		tracks = nil
	}

	l, err := c.openLink(remote, domain.RoleCallee, m.DisplayName)
	if err != nil {
		return err
	}
	if err := l.attach(tracks); err != nil {
		return l.fail(err)
	}
	c.adoptOrphans(l)
	return l.answer(ctx, offer)
}

func (c *Coordinator) openLink(remote domain.SessionID, role domain.Role, displayName string) (*Link, error) {
	pc, err := c.factory.NewPeerConnection(remote)
	if err != nil {
		return nil, fmt.Errorf("open peer connection: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signal == nil {
		_ = pc.Close()
		return nil, errors.New("no control channel attached")
	}
	c.nextID++
	l := newLink(c.nextID, remote, role, pc, c.signal, c.log)
	l.displayName = displayName
	l.onClosed = c.forget
	l.answerTimeout = c.answerIn
	pc.OnData(func(msg domain.DataMessage) { c.data(l, msg) })

	if prev, ok := c.byRemote[remote]; ok {
		// Lost a race with another link towards the same remote.
		if other, ok := c.links[prev]; ok && other.State() != domain.LinkClosed {
			_ = pc.Close()
			return nil, fmt.Errorf("link to %s already exists", remote)
		}
	}
	c.links[l.id] = l
	c.byRemote[remote] = l.id
	return l, nil
}

// forget removes a closed link from the collection.
func (c *Coordinator) forget(l *Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.links[l.id]; !ok {
		return
	}
	delete(c.links, l.id)
	if c.byRemote[l.remote] == l.id {
		delete(c.byRemote, l.remote)
	}
}

func (c *Coordinator) closeLink(l *Link) {
	c.forget(l)
	l.Close()
}

func (c *Coordinator) link(remote domain.SessionID) (*Link, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byRemote[remote]
	if !ok {
		return nil, false
	}
	l, ok := c.links[id]
	return l, ok
}

func (c *Coordinator) memberLeft(remote domain.SessionID) {
	c.mu.Lock()
	delete(c.roster, remote)
	delete(c.orphans, remote)
	c.mu.Unlock()
	c.side.forget(remote)
	if l, ok := c.link(remote); ok {
		c.closeLink(l)
	}
}

// remoteCandidate hands c to the link, or parks it until a link towards
// remote exists.
func (c *Coordinator) remoteCandidate(remote domain.SessionID, cand domain.ICECandidate) error {
	c.mu.Lock()
	id, ok := c.byRemote[remote]
	l := c.links[id]
	if !ok || l == nil {
		c.orphans[remote] = append(c.orphans[remote], cand)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return l.addRemoteCandidate(cand)
}

func (c *Coordinator) adoptOrphans(l *Link) {
	c.mu.Lock()
	parked := c.orphans[l.remote]
	delete(c.orphans, l.remote)
	c.mu.Unlock()
	for _, cand := range parked {
		if err := l.addRemoteCandidate(cand); err != nil {
			l.log.Debug().Err(err).Msg("Parked candidate not applied")
		}
	}
}

// localMedia captures camera and microphone once and shares the tracks
// between all links.
func (c *Coordinator) localMedia(ctx context.Context) ([]port.Track, error) {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()
	if c.local != nil {
		return c.local, nil
	}
	tracks, err := c.media.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	c.mu.Lock()
	muted, videoOff := c.muted, c.videoOff
	c.mu.Unlock()
	for _, t := range tracks {
		switch t.Kind() {
		case domain.TrackAudio:
			t.SetEnabled(!muted)
		case domain.TrackVideo:
			t.SetEnabled(!videoOff)
		}
	}
	c.local = tracks
	c.log.Info().Int("tracks", len(tracks)).Msg("Local media acquired")
	return tracks, nil
}

func (c *Coordinator) releaseMedia() {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()
	for _, t := range c.local {
		t.Stop()
	}
	c.local = nil
}

// outbound is what a new link should send: the shared capture with the
// screen in place of the camera while sharing.
func (c *Coordinator) outbound(ctx context.Context) ([]port.Track, error) {
	tracks, err := c.localMedia(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	screen := c.screen
	c.mu.Unlock()
	if screen == nil {
		return tracks, nil
	}
	out := make([]port.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Kind() == domain.TrackVideo {
			t = screen
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Coordinator) camera() port.Track {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()
	for _, t := range c.local {
		if t.Kind() == domain.TrackVideo {
			return t
		}
	}
	return nil
}

// SetMuted toggles the microphone and tells the room.
func (c *Coordinator) SetMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	c.enable(domain.TrackAudio, !muted)
	return c.publishMediaState(ctx)
}

// SetVideoOff toggles the camera and tells the room.
func (c *Coordinator) SetVideoOff(ctx context.Context, off bool) error {
	c.mu.Lock()
	c.videoOff = off
	c.mu.Unlock()
	c.enable(domain.TrackVideo, !off)
	return c.publishMediaState(ctx)
}

func (c *Coordinator) MediaState() domain.MediaState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.MediaState{Muted: c.muted, VideoOff: c.videoOff}
}

func (c *Coordinator) enable(kind domain.TrackKind, on bool) {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()
	for _, t := range c.local {
		if t.Kind() == kind {
			t.SetEnabled(on)
		}
	}
}

func (c *Coordinator) publishMediaState(ctx context.Context) error {
	c.mu.Lock()
	joined, room := c.joined, c.room
	p := domain.MediaStatePayload{Muted: c.muted, VideoOff: c.videoOff, RoomID: room}
	c.mu.Unlock()
	if !joined {
		return nil
	}
	return c.send(ctx, domain.TypeMediaState, p)
}

// StartScreenShare swaps the outbound video of every link to a screen
// capture. Links whose swap fails keep sending the camera; their errors are
// joined into the returned error. Ending the screen track from the capture
// side stops sharing as well.
func (c *Coordinator) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	sharing := c.screen != nil
	c.mu.Unlock()
	if sharing {
		return nil
	}

	screen, err := c.media.CaptureScreen(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	c.mu.Lock()
	c.screen = screen
	c.mu.Unlock()

	go func() {
		<-screen.Done()
		c.mu.Lock()
		current := c.screen == screen
		c.mu.Unlock()
		if current {
			c.log.Info().Msg("Screen capture ended")
			if err := c.StopScreenShare(context.Background()); err != nil {
				c.log.Warn().Err(err).Msg("Restoring camera")
			}
		}
	}()

	c.log.Info().Str("track_id", screen.ID()).Msg("Screen share started")
	return c.replaceVideo(ctx, screen)
}

// StopScreenShare puts the camera back on every link.
func (c *Coordinator) StopScreenShare(ctx context.Context) error {
	c.mu.Lock()
	screen := c.screen
	c.screen = nil
	c.mu.Unlock()
	if screen == nil {
		return nil
	}

	err := c.replaceVideo(ctx, c.camera())
	screen.Stop()
	c.log.Info().Msg("Screen share stopped")
	return err
}

func (c *Coordinator) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}

// replaceVideo swaps tracks on all links independently of each other.
func (c *Coordinator) replaceVideo(ctx context.Context, t port.Track) error {
	c.mu.Lock()
	links := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, l := range links {
		g.Go(func() error {
			if err := l.replaceTrack(domain.TrackVideo, t); err != nil {
				l.log.Warn().Err(err).Msg("Track replacement failed, keeping previous track")
				mu.Lock()
				errs = append(errs, fmt.Errorf("link to %s: %w", l.remote, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Links is a snapshot of all open links, ordered by remote id.
func (c *Coordinator) Links() []LinkInfo {
	c.mu.Lock()
	links := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.mu.Unlock()

	out := make([]LinkInfo, 0, len(links))
	for _, l := range links {
		out = append(out, l.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Remote < out[j].Remote })
	return out
}

// Roster is every other member currently known in the room.
func (c *Coordinator) Roster() []domain.Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Member, 0, len(c.roster))
	for _, m := range c.roster {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// SendData sends msg on the data channel of the link towards remote.
func (c *Coordinator) SendData(remote domain.SessionID, msg domain.DataMessage) error {
	l, ok := c.link(remote)
	if !ok {
		return domain.ErrUnknownLink
	}
	return l.sendData(msg)
}

// data answers pings itself and passes everything else on.
func (c *Coordinator) data(l *Link, msg domain.DataMessage) {
	if msg.Kind == domain.DataKindPing {
		pong := domain.DataMessage{Kind: domain.DataKindPong, Body: msg.Body, SentAt: msg.SentAt}
		if err := l.sendData(pong); err != nil {
			l.log.Debug().Err(err).Msg("Pong not sent")
		}
		return
	}
	c.mu.Lock()
	fn := c.onData
	c.mu.Unlock()
	if fn != nil {
		fn(l.remote, msg)
	}
}
