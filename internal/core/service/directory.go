package service

import (
	"strings"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
)

// Directory is the Session Registry and Room Directory. It is not safe for
// concurrent use: the Relay loop is its only writer.
type Directory struct {
	sessions map[domain.SessionID]*domain.Session
	rooms    map[domain.RoomID]*domain.Room
}

func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[domain.SessionID]*domain.Session),
		rooms:    make(map[domain.RoomID]*domain.Room),
	}
}

// JoinResult tells the caller who to notify after a join.
type JoinResult struct {
	Room     domain.RoomID
	Self     domain.Member
	Existing []domain.Member // current members, joiner excluded
	// Previous is set when the session moved out of another room first.
	Previous *LeaveResult
	// Rejoined is true when the session was already in this room.
	Rejoined bool
}

type LeaveResult struct {
	Room      domain.RoomID
	Remaining []domain.SessionID
	Deleted   bool
}

// Admit registers a session that is not in any room yet. Admitting a known id
// only refreshes its display name.
func (d *Directory) Admit(id domain.SessionID, displayName string) *domain.Session {
	if s, ok := d.sessions[id]; ok {
		if displayName != "" {
			s.DisplayName = displayName
		}
		return s
	}
	s := domain.NewSession(id, displayName)
	d.sessions[id] = s
	return s
}

func (d *Directory) Session(id domain.SessionID) (domain.Session, bool) {
	s, ok := d.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

func (d *Directory) Join(id domain.SessionID, roomID domain.RoomID, displayName string) (JoinResult, error) {
	s, ok := d.sessions[id]
	if !ok {
		return JoinResult{}, domain.ErrUnknownSession
	}
	if strings.TrimSpace(string(roomID)) == "" {
		return JoinResult{}, domain.ErrInvalidRoom
	}
	if displayName != "" {
		s.DisplayName = displayName
	}

	res := JoinResult{Room: roomID}
	if s.InRoom() {
		if s.RoomID == roomID {
			res.Rejoined = true
		} else {
			prev := d.leave(s)
			res.Previous = &prev
		}
	}

	room, ok := d.rooms[roomID]
	if !ok {
		room = domain.NewRoom(roomID)
		d.rooms[roomID] = room
	}
	room.Add(id)
	s.RoomID = roomID

	res.Self = s.Member()
	for _, other := range room.Members(id) {
		if o, ok := d.sessions[other]; ok {
			res.Existing = append(res.Existing, o.Member())
		}
	}
	return res, nil
}

// Leave reports false when the session is unknown or not in a room.
func (d *Directory) Leave(id domain.SessionID) (LeaveResult, bool) {
	s, ok := d.sessions[id]
	if !ok || !s.InRoom() {
		return LeaveResult{}, false
	}
	return d.leave(s), true
}

// Remove is Leave plus forgetting the session. The bool reports whether the
// session was in a room.
func (d *Directory) Remove(id domain.SessionID) (LeaveResult, bool) {
	res, inRoom := d.Leave(id)
	delete(d.sessions, id)
	return res, inRoom
}

func (d *Directory) leave(s *domain.Session) LeaveResult {
	res := LeaveResult{Room: s.RoomID}
	if room, ok := d.rooms[s.RoomID]; ok {
		room.Remove(s.ID)
		res.Remaining = room.Members()
		if room.Empty() {
			delete(d.rooms, room.ID)
			res.Deleted = true
		}
	}
	s.RoomID = ""
	return res
}

// SetMediaState stores advisory flags and returns the session's room.
func (d *Directory) SetMediaState(id domain.SessionID, state domain.MediaState) (domain.RoomID, error) {
	s, ok := d.sessions[id]
	if !ok {
		return "", domain.ErrUnknownSession
	}
	s.Media = state
	if !s.InRoom() {
		return "", domain.ErrNotInRoom
	}
	return s.RoomID, nil
}

// Members is the live member list of a room.
func (d *Directory) Members(roomID domain.RoomID) []domain.SessionID {
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	return room.Members()
}

// SameRoom reports whether both sessions are currently in one room.
func (d *Directory) SameRoom(a, b domain.SessionID) bool {
	sa, ok := d.sessions[a]
	if !ok || !sa.InRoom() {
		return false
	}
	room, ok := d.rooms[sa.RoomID]
	return ok && room.Has(b)
}

func (d *Directory) HasRoom(roomID domain.RoomID) bool {
	_, ok := d.rooms[roomID]
	return ok
}

func (d *Directory) Counts() (rooms, sessions int) {
	return len(d.rooms), len(d.sessions)
}
