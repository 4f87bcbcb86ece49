package domain

// MediaState is advisory: it is kept for late joiners and never drives
// routing decisions.
type MediaState struct {
	Muted    bool `json:"muted"`
	VideoOff bool `json:"videoOff"`
}

type Session struct {
	ID          SessionID
	DisplayName string
	RoomID      RoomID // empty while the session is not in a room
	Media       MediaState
}

func NewSession(id SessionID, displayName string) *Session {
	return &Session{
		ID:          id,
		DisplayName: displayName,
	}
}

func (s *Session) InRoom() bool {
	return s.RoomID != ""
}

func (s *Session) Member() Member {
	return Member{
		SessionID:   s.ID,
		DisplayName: s.DisplayName,
		Muted:       s.Media.Muted,
		VideoOff:    s.Media.VideoOff,
	}
}

// Member is the wire view of a session inside a room.
type Member struct {
	SessionID   SessionID `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	Muted       bool      `json:"muted,omitempty"`
	VideoOff    bool      `json:"videoOff,omitempty"`
}
