package negotiation

import "time"

// State is the participant's negotiation state. Teardown returns to
// StateIdle from any state.
type State int32

const (
	StateIdle State = iota
	StateLocalMediaReady
	StateRoomJoined
	StateNegotiating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocalMediaReady:
		return "local-media-ready"
	case StateRoomJoined:
		return "room-joined"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// SignalState tracks which descriptions are applied to the engine.
type SignalState int

const (
	SignalNone SignalState = iota
	SignalHaveLocalOffer
	SignalHaveRemoteOffer
	SignalStable
)

func (s SignalState) String() string {
	switch s {
	case SignalNone:
		return "none"
	case SignalHaveLocalOffer:
		return "have-local-offer"
	case SignalHaveRemoteOffer:
		return "have-remote-offer"
	case SignalStable:
		return "stable"
	}
	return "unknown"
}

// Role is assigned by the coordinator's ready message.
type Role int

const (
	RoleUnassigned Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	}
	return "unassigned"
}

// Status is reported to the caller on every visible change. Err is set for
// transport and channel problems; none of them is retried automatically.
type Status struct {
	State State
	Room  string
	Text  string
	Err   error

	// Peer is the remote name once the control channel said hello.
	Peer string
	RTT  time.Duration
}
