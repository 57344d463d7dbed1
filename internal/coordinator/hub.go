// Package coordinator implements the room coordinator: admission control
// for two-party rooms, initiator election, and relay of signaling messages
// between the two occupants of a room.
//
// The registry map is guarded by one short-lived lock; every membership
// change and relay takes the lock of the room it targets, so operations on
// different rooms run independently. Lock order is room before registry.
//
// The registry lives in process memory. Running several coordinator
// processes behind a load balancer would need a shared store for rooms.
package coordinator

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/BioHazard786/Pairlink/internal/signaling"
)

// Peer is one signaling channel as seen by the hub. Deliver must not block;
// delivery is at most once.
type Peer interface {
	ID() string
	Deliver(msg *signaling.Message)
}

// Hub is the room coordinator.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	rooms    map[string]*Room
	memberOf map[string]map[string]struct{} // peer ID -> room names
}

// NewHub creates an empty coordinator.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		rooms:    make(map[string]*Room),
		memberOf: make(map[string]map[string]struct{}),
	}
}

// Handle dispatches one message received from p.
func (h *Hub) Handle(p Peer, msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeJoin:
		h.Join(p, msg.Room)
	case signaling.TypeLeave:
		h.Leave(p, msg.Room)
	default:
		if !msg.IsRelay() {
			h.logger.Debug("dropping unknown message type", "member", p.ID(), "type", msg.Type)
			return
		}
		h.Relay(p, msg)
	}
}

// Join admits p to the named room, creating it on first join. A third
// distinct peer receives full and nothing else changes. Joining a room p
// already occupies is idempotent.
func (h *Hub) Join(p Peer, name string) {
	if name == "" {
		h.logger.Debug("dropping join without room", "member", p.ID())
		return
	}

	for {
		room := h.getOrCreate(name)

		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}

		if room.full() && !room.has(p) {
			room.mu.Unlock()
			h.logger.Info("room full", "room", name, "member", p.ID())
			p.Deliver(signaling.Full(name))
			return
		}

		if room.add(p) {
			h.track(p, name)
		}
		count := len(room.members)
		h.logger.Info("member joined", "room", name, "member", p.ID(), "count", count)

		p.Deliver(signaling.Joined(name, count, p.ID()))
		if count == MaxMembers {
			ready := signaling.Ready(name, room.members[1].ID())
			for _, m := range room.members {
				m.Deliver(ready)
			}
		}
		room.mu.Unlock()
		return
	}
}

// Leave removes p from the named room. The remaining member is told with
// peer-left; an emptied room is destroyed.
func (h *Hub) Leave(p Peer, name string) {
	room := h.lookup(name)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.remove(p) {
		return
	}
	h.untrack(p, name)
	h.logger.Info("member left", "room", name, "member", p.ID(), "count", len(room.members))

	left := signaling.PeerLeft(name)
	for _, m := range room.members {
		m.Deliver(left)
	}

	if len(room.members) == 0 {
		room.closed = true
		h.mu.Lock()
		if h.rooms[name] == room {
			delete(h.rooms, name)
		}
		h.mu.Unlock()
		h.logger.Debug("room destroyed", "room", name)
	}
}

// Relay forwards an offer, answer or candidate from p to every member of
// the room other than p. The sender need not be a member. Messages missing
// a room or payload, or addressed to an unknown room, are dropped without a
// reply.
func (h *Hub) Relay(p Peer, msg *signaling.Message) {
	if msg.Room == "" || !msg.HasPayload() {
		h.logger.Debug("dropping malformed relay", "member", p.ID(), "type", msg.Type)
		return
	}

	room := h.lookup(msg.Room)
	if room == nil {
		h.logger.Debug("dropping relay to unknown room", "member", p.ID(), "room", msg.Room)
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	out := msg.Relayed()
	for _, m := range room.others(p) {
		m.Deliver(out)
	}
}

// Disconnect treats a closed channel as a leave from every room it held.
func (h *Hub) Disconnect(p Peer) {
	for _, name := range h.roomsOf(p) {
		h.Leave(p, name)
	}
}

// Members returns the member IDs of a room in arrival order.
func (h *Hub) Members(name string) []string {
	room := h.lookup(name)
	if room == nil {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ids := make([]string, len(room.members))
	for i, m := range room.members {
		ids[i] = m.ID()
	}
	return ids
}

// Occupancy is one row of Stats.
type Occupancy struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
}

// Stats is a snapshot of the registry.
type Stats struct {
	Rooms     int         `json:"rooms"`
	Members   int         `json:"members"`
	Occupancy []Occupancy `json:"occupancy"`
}

// Stats returns room and member counts sorted by room name.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	stats := Stats{Occupancy: make([]Occupancy, 0, len(rooms))}
	for _, room := range rooms {
		room.mu.Lock()
		count := len(room.members)
		room.mu.Unlock()
		if count == 0 {
			continue
		}
		stats.Rooms++
		stats.Members += count
		stats.Occupancy = append(stats.Occupancy, Occupancy{Room: room.name, Count: count})
	}

	sort.Slice(stats.Occupancy, func(i, j int) bool {
		return stats.Occupancy[i].Room < stats.Occupancy[j].Room
	})
	return stats
}

func (h *Hub) getOrCreate(name string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[name]; ok {
		return room
	}
	room := newRoom(name)
	h.rooms[name] = room
	h.logger.Debug("room created", "room", name)
	return room
}

func (h *Hub) lookup(name string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[name]
}

func (h *Hub) track(p Peer, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.memberOf[p.ID()]
	if !ok {
		set = make(map[string]struct{})
		h.memberOf[p.ID()] = set
	}
	set[name] = struct{}{}
}

func (h *Hub) untrack(p Peer, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.memberOf[p.ID()]
	delete(set, name)
	if len(set) == 0 {
		delete(h.memberOf, p.ID())
	}
}

func (h *Hub) roomsOf(p Peer) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.memberOf[p.ID()]))
	for name := range h.memberOf[p.ID()] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
