package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/rs/zerolog"
)

// LinkInfo is a read-only snapshot of a Link.
type LinkInfo struct {
	ID          domain.LinkID
	Remote      domain.SessionID
	DisplayName string
	Role        domain.Role
	State       domain.LinkState
}

// Link is the negotiated channel towards one remote participant. Links are
// created and closed only by the Coordinator.
type Link struct {
	id     domain.LinkID
	remote domain.SessionID
	role   domain.Role
	pc     port.PeerConnection
	signal port.Signaler
	log    zerolog.Logger

	// negMu orders description and remote candidate handling.
	negMu         sync.Mutex
	remoteApplied bool
	pendingRemote []domain.ICECandidate

	mu           sync.Mutex
	state        domain.LinkState
	displayName  string
	localSent    bool
	pendingLocal []domain.ICECandidate
	senders      map[domain.TrackKind]port.RTPSender
	onClosed     func(*Link)
	done         chan struct{}

	// answerTimeout bounds OFFER_SENT. Zero waits forever.
	answerTimeout time.Duration
	deadline      *time.Timer
}

func newLink(id domain.LinkID, remote domain.SessionID, role domain.Role, pc port.PeerConnection, signal port.Signaler, l zerolog.Logger) *Link {
	link := &Link{
		id:      id,
		remote:  remote,
		role:    role,
		pc:      pc,
		signal:  signal,
		state:   domain.LinkNew,
		senders: make(map[domain.TrackKind]port.RTPSender),
		done:    make(chan struct{}),
		log: l.With().
			Uint64("link_id", uint64(id)).
			Str("remote_id", remote.String()).
			Str("role", string(role)).
			Logger(),
	}
	pc.OnICECandidate(link.localCandidate)
	pc.OnStateChange(link.transportState)
	return link
}

func (l *Link) ID() domain.LinkID { return l.id }

func (l *Link) Remote() domain.SessionID { return l.remote }

func (l *Link) Role() domain.Role { return l.role }

// Done is closed when the link reaches CLOSED.
func (l *Link) Done() <-chan struct{} { return l.done }

func (l *Link) State() domain.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Info() LinkInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LinkInfo{
		ID:          l.id,
		Remote:      l.remote,
		DisplayName: l.displayName,
		Role:        l.role,
		State:       l.state,
	}
}

func (l *Link) setDisplayName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.displayName = name
}

func (l *Link) transition(next domain.LinkState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.state.Transition(next)
	if err != nil {
		return err
	}
	l.state = s
	l.log.Debug().Str("state", string(s)).Msg("Link state changed")
	return nil
}

// attach adds the outbound tracks. Only one track per kind is attached.
func (l *Link) attach(tracks []port.Track) error {
	for _, t := range tracks {
		l.mu.Lock()
		_, dup := l.senders[t.Kind()]
		l.mu.Unlock()
		if dup {
			continue
		}
		sender, err := l.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("attach %s track: %w", t.Kind(), err)
		}
		l.mu.Lock()
		l.senders[t.Kind()] = sender
		l.mu.Unlock()
	}
	return nil
}

// offer runs the caller side up to OFFER_SENT.
func (l *Link) offer(ctx context.Context) error {
	l.negMu.Lock()
	defer l.negMu.Unlock()

	desc, err := l.pc.CreateOffer(ctx)
	if err != nil {
		return l.fail(fmt.Errorf("create offer: %w", err))
	}
	if err := l.transition(domain.LinkOfferSent); err != nil {
		return l.fail(err)
	}
	if err := l.send(ctx, domain.TypeOffer, domain.OfferPayload{Offer: desc, To: l.remote}); err != nil {
		return l.fail(fmt.Errorf("send offer: %w", err))
	}
	l.armDeadline()
	l.flushLocal(ctx)
	return nil
}

func (l *Link) armDeadline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.answerTimeout <= 0 || l.state != domain.LinkOfferSent {
		return
	}
	l.deadline = time.AfterFunc(l.answerTimeout, l.expire)
}

func (l *Link) disarmDeadline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
}

// expire abandons a call that was never answered.
func (l *Link) expire() {
	if l.State() != domain.LinkOfferSent {
		return
	}
	l.log.Warn().Dur("timeout", l.answerTimeout).Msg("No answer, closing link")
	l.Close()
}

// answer runs the whole callee side. The callee counts as connected as soon
// as its answer is out.
func (l *Link) answer(ctx context.Context, offer domain.SessionDescription) error {
	l.negMu.Lock()
	defer l.negMu.Unlock()

	if err := l.applyRemote(offer); err != nil {
		return l.fail(err)
	}
	desc, err := l.pc.CreateAnswer(ctx)
	if err != nil {
		return l.fail(fmt.Errorf("create answer: %w", err))
	}
	if err := l.transition(domain.LinkAnswerSent); err != nil {
		return l.fail(err)
	}
	if err := l.send(ctx, domain.TypeAnswer, domain.AnswerPayload{Answer: desc, To: l.remote}); err != nil {
		return l.fail(fmt.Errorf("send answer: %w", err))
	}
	l.flushLocal(ctx)
	if err := l.transition(domain.LinkConnected); err != nil {
		return l.fail(err)
	}
	l.log.Info().Msg("Link connected")
	return nil
}

// acceptAnswer finishes the caller side.
func (l *Link) acceptAnswer(answer domain.SessionDescription) error {
	l.negMu.Lock()
	defer l.negMu.Unlock()

	if st := l.State(); st != domain.LinkOfferSent {
		return fmt.Errorf("%w: answer while %s", domain.ErrInvalidTransition, st)
	}
	l.disarmDeadline()
	if err := l.applyRemote(answer); err != nil {
		return l.fail(err)
	}
	if err := l.transition(domain.LinkConnected); err != nil {
		return l.fail(err)
	}
	l.log.Info().Msg("Link connected")
	return nil
}

// applyRemote sets the remote description and then replays buffered remote
// candidates in arrival order. Callers hold negMu.
func (l *Link) applyRemote(desc domain.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("apply remote %s: %w", desc.Type, err)
	}
	l.remoteApplied = true
	pending := l.pendingRemote
	l.pendingRemote = nil
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Warn().Err(err).Msg("Buffered candidate rejected")
		}
	}
	if len(pending) > 0 {
		l.log.Debug().Int("count", len(pending)).Msg("Flushed buffered candidates")
	}
	return nil
}

// addRemoteCandidate applies c now or buffers it until the remote
// description is in place. Candidates are never dropped for arriving early.
func (l *Link) addRemoteCandidate(c domain.ICECandidate) error {
	l.negMu.Lock()
	defer l.negMu.Unlock()

	if l.State() == domain.LinkClosed {
		return domain.ErrLinkClosed
	}
	if !l.remoteApplied {
		l.pendingRemote = append(l.pendingRemote, c)
		return nil
	}
	return l.pc.AddICECandidate(c)
}

// localCandidate is called by the transport. Candidates gathered before the
// offer or answer went out wait for it.
func (l *Link) localCandidate(c domain.ICECandidate) {
	l.mu.Lock()
	if l.state == domain.LinkClosed {
		l.mu.Unlock()
		return
	}
	if !l.localSent {
		l.pendingLocal = append(l.pendingLocal, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.sendCandidate(context.Background(), c)
}

func (l *Link) flushLocal(ctx context.Context) {
	l.mu.Lock()
	pending := l.pendingLocal
	l.pendingLocal = nil
	l.localSent = true
	l.mu.Unlock()
	for _, c := range pending {
		l.sendCandidate(ctx, c)
	}
}

func (l *Link) sendCandidate(ctx context.Context, c domain.ICECandidate) {
	if err := l.send(ctx, domain.TypeICECandidate, domain.CandidatePayload{Candidate: c, To: l.remote}); err != nil {
		l.log.Debug().Err(err).Msg("Candidate not sent")
	}
}

func (l *Link) send(ctx context.Context, t domain.EnvelopeType, payload any) error {
	env, err := domain.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	return l.signal.Send(ctx, env)
}

func (l *Link) transportState(s port.TransportState) {
	switch s {
	case port.TransportConnected:
		l.log.Debug().Msg("Transport connected")
	case port.TransportFailed, port.TransportClosed:
		if l.State() != domain.LinkClosed {
			l.log.Warn().Str("transport", string(s)).Msg("Transport lost, closing link")
			l.Close()
		}
	}
}

// replaceTrack swaps the outbound track of one kind without renegotiating.
// A link with nothing of that kind attached is left alone.
func (l *Link) replaceTrack(kind domain.TrackKind, t port.Track) error {
	l.mu.Lock()
	sender, ok := l.senders[kind]
	closed := l.state == domain.LinkClosed
	l.mu.Unlock()
	if closed {
		return domain.ErrLinkClosed
	}
	if !ok {
		return nil
	}
	return sender.ReplaceTrack(t)
}

func (l *Link) sendData(msg domain.DataMessage) error {
	if l.State() == domain.LinkClosed {
		return domain.ErrLinkClosed
	}
	return l.pc.SendData(msg)
}

// fail closes the link after a negotiation error and returns err.
func (l *Link) fail(err error) error {
	l.log.Warn().Err(err).Msg("Negotiation failed")
	l.Close()
	return err
}

// Close is idempotent. It releases the track attachments and the transport
// and then tells the owner.
func (l *Link) Close() {
	l.mu.Lock()
	if l.state == domain.LinkClosed {
		l.mu.Unlock()
		return
	}
	l.state = domain.LinkClosed
	l.senders = make(map[domain.TrackKind]port.RTPSender)
	l.pendingLocal = nil
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
	onClosed := l.onClosed
	l.mu.Unlock()

	close(l.done)
	if err := l.pc.Close(); err != nil && !errors.Is(err, domain.ErrLinkClosed) {
		l.log.Debug().Err(err).Msg("Closing transport")
	}
	l.log.Info().Msg("Link closed")
	if onClosed != nil {
		onClosed(l)
	}
}
