package coordinator

import "sync"

// MaxMembers is the capacity of every room.
const MaxMembers = 2

// Room is a named rendezvous point for at most two peers. Members are kept
// in arrival order; the second arrival is the initiator.
type Room struct {
	name string

	mu      sync.Mutex
	members []Peer

	// closed is set when the room is removed from the registry. A joiner
	// that raced with removal must look the room up again.
	closed bool
}

func newRoom(name string) *Room {
	return &Room{name: name, members: make([]Peer, 0, MaxMembers)}
}

// The helpers below require r.mu to be held.

func (r *Room) indexOf(p Peer) int {
	for i, m := range r.members {
		if m.ID() == p.ID() {
			return i
		}
	}
	return -1
}

func (r *Room) has(p Peer) bool {
	return r.indexOf(p) >= 0
}

func (r *Room) full() bool {
	return len(r.members) >= MaxMembers
}

// add appends p and reports whether membership changed.
func (r *Room) add(p Peer) bool {
	if r.has(p) {
		return false
	}
	r.members = append(r.members, p)
	return true
}

// remove deletes p and reports whether membership changed.
func (r *Room) remove(p Peer) bool {
	i := r.indexOf(p)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return true
}

func (r *Room) others(p Peer) []Peer {
	out := make([]Peer, 0, len(r.members))
	for _, m := range r.members {
		if m.ID() != p.ID() {
			out = append(out, m)
		}
	}
	return out
}
