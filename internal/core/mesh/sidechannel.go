package mesh

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/Manishrsh/video-chat-connectify-app/internal/supervise"
	"github.com/rs/zerolog/log"
)

// identity is what the side channel needs from its owner.
type identity interface {
	SessionID() domain.SessionID
	DisplayName() string
	send(ctx context.Context, t domain.EnvelopeType, payload any) error
}

// SideChannel holds chat, transcript and hand-raise state for one
// participant. Nothing here survives Leave.
type SideChannel struct {
	repo  port.MessageRepository
	owner identity
	now   func() time.Time

	mu          sync.Mutex
	panelOpen   bool
	unread      bool
	transcripts []domain.Transcript
	hands       map[domain.SessionID]bool
}

func newSideChannel(repo port.MessageRepository, owner identity) *SideChannel {
	return &SideChannel{
		repo:  repo,
		owner: owner,
		now:   time.Now,
		hands: make(map[domain.SessionID]bool),
	}
}

// SendChat broadcasts a chat line to the room. recipient may be empty or
// "Everyone"; a named recipient is only a display hint. The sender's own copy
// is appended locally and never counts as unread.
func (s *SideChannel) SendChat(ctx context.Context, text, recipient string) (*domain.ChatMessage, error) {
	msg, err := domain.NewChatMessage(s.owner.SessionID(), s.owner.DisplayName(), text, recipient, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.owner.send(ctx, domain.TypeChatMessage, msg); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, *msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// PublishTranscript broadcasts one recognized utterance and keeps it locally.
func (s *SideChannel) PublishTranscript(ctx context.Context, text string) (*domain.Transcript, error) {
	t, err := domain.NewTranscript(s.owner.SessionID(), s.owner.DisplayName(), text)
	if err != nil {
		return nil, err
	}
	if err := s.owner.send(ctx, domain.TypeTranscript, t); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.transcripts = append(s.transcripts, *t)
	s.mu.Unlock()
	return t, nil
}

func (s *SideChannel) RaiseHand(ctx context.Context, raised bool) error {
	self := s.owner.SessionID()
	if err := s.owner.send(ctx, domain.TypeHandRaise, domain.HandRaise{SessionID: self, Raised: raised}); err != nil {
		return err
	}
	s.mu.Lock()
	s.hands[self] = raised
	s.mu.Unlock()
	return nil
}

func (s *SideChannel) OpenPanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelOpen = true
	s.unread = false
}

func (s *SideChannel) ClosePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelOpen = false
}

func (s *SideChannel) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

// Unread is true when chat arrived while the panel was closed.
func (s *SideChannel) Unread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *SideChannel) Messages(ctx context.Context) ([]domain.ChatMessage, error) {
	return s.repo.List(ctx)
}

func (s *SideChannel) Transcripts() []domain.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

// Hands is the latest raised state per session.
func (s *SideChannel) Hands() map[domain.SessionID]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.hands)
}

// RunTranscriber keeps the speech engine running for as long as ctx lives,
// publishing each utterance it emits.
func (s *SideChannel) RunTranscriber(ctx context.Context, tr port.Transcriber, policy supervise.Policy) error {
	return supervise.Run(ctx, policy, "transcriber", func(ctx context.Context) error {
		return tr.Run(ctx, func(text string) {
			if _, err := s.PublishTranscript(ctx, text); err != nil {
				log.Debug().Err(err).Msg("Transcript not published")
			}
		})
	})
}

func (s *SideChannel) receiveChat(ctx context.Context, env domain.Envelope) error {
	var msg domain.ChatMessage
	if err := env.Decode(&msg); err != nil {
		return err
	}
	msg.From = env.From
	if msg.ID == (domain.MessageID{}) {
		msg.ID = domain.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if err := s.repo.Save(ctx, msg); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.panelOpen {
		s.unread = true
	}
	s.mu.Unlock()
	return nil
}

func (s *SideChannel) receiveTranscript(env domain.Envelope) error {
	var t domain.Transcript
	if err := env.Decode(&t); err != nil {
		return err
	}
	t.From = env.From
	s.mu.Lock()
	s.transcripts = append(s.transcripts, t)
	s.mu.Unlock()
	return nil
}

func (s *SideChannel) receiveHand(env domain.Envelope) error {
	var h domain.HandRaise
	if err := env.Decode(&h); err != nil {
		return err
	}
	if env.From != "" {
		h.SessionID = env.From
	}
	s.mu.Lock()
	s.hands[h.SessionID] = h.Raised
	s.mu.Unlock()
	return nil
}

func (s *SideChannel) forget(id domain.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hands, id)
}

func (s *SideChannel) clearHands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hands = make(map[domain.SessionID]bool)
}

func (s *SideChannel) reset(ctx context.Context) {
	s.mu.Lock()
	s.unread = false
	s.transcripts = nil
	s.hands = make(map[domain.SessionID]bool)
	s.mu.Unlock()
	if err := s.repo.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("Clearing chat log")
	}
}
