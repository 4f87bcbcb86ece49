package domain

import "sort"

// Room is a named set of sessions. Membership is unique and unordered.
type Room struct {
	ID      RoomID
	members map[SessionID]struct{}
}

func NewRoom(id RoomID) *Room {
	return &Room{
		ID:      id,
		members: make(map[SessionID]struct{}),
	}
}

// Add reports whether id was not already a member.
func (r *Room) Add(id SessionID) bool {
	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = struct{}{}
	return true
}

func (r *Room) Remove(id SessionID) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

func (r *Room) Has(id SessionID) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Room) Len() int {
	return len(r.members)
}

func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// Members returns the member ids sorted, minus any listed in except.
func (r *Room) Members(except ...SessionID) []SessionID {
	ids := make([]SessionID, 0, len(r.members))
	for id := range r.members {
		skip := false
		for _, e := range except {
			if id == e {
				skip = true
				break
			}
		}
		if !skip {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
