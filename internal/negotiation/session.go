package negotiation

import (
	"encoding/json"

	"github.com/BioHazard786/Pairlink/internal/signaling"
)

// Session is one negotiation for one room membership. It owns its engine
// and is never reused: a new membership gets a new Session.
type Session struct {
	room   string
	selfID string
	role   Role
	engine Engine

	// epoch tags engine callbacks and asynchronous results. Anything
	// carrying another epoch belongs to a torn-down session.
	epoch uint64

	signal        SignalState
	offerInFlight bool
	offered       bool
	remoteApplied bool

	// pending holds remote candidates until the remote description is set.
	pending []Candidate

	// deferred holds relayed messages that arrived while an offer was being
	// created. They are replayed in order once it completes.
	deferred []*signaling.Message

	// held holds local candidates gathered before the offer went out.
	held []Candidate
}

func newSession(room, selfID string, engine Engine, epoch uint64) *Session {
	return &Session{
		room:   room,
		selfID: selfID,
		engine: engine,
		epoch:  epoch,
		signal: SignalNone,
	}
}

// Room returns the room name.
func (s *Session) Room() string { return s.room }

// SelfID returns the identity the coordinator assigned to this membership.
func (s *Session) SelfID() string { return s.selfID }

// Role returns the negotiation role.
func (s *Session) Role() Role { return s.role }

// Signal returns the description state.
func (s *Session) Signal() SignalState { return s.signal }

// OfferInFlight reports whether a local offer is being created.
func (s *Session) OfferInFlight() bool { return s.offerInFlight }

// Pending returns the number of buffered remote candidates.
func (s *Session) Pending() int { return len(s.pending) }

// applyRemote sets the remote description. Buffered candidates are then
// released by takePending.
func (s *Session) applyRemote(desc Description) error {
	if err := s.engine.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.remoteApplied = true
	return nil
}

// takePending returns the buffered remote candidates in arrival order and
// clears the buffer.
func (s *Session) takePending() []Candidate {
	pending := s.pending
	s.pending = nil
	return pending
}

// addRemoteCandidate adds c now or buffers it until the remote description
// is applied.
func (s *Session) addRemoteCandidate(c Candidate) error {
	if !s.remoteApplied {
		s.pending = append(s.pending, c)
		return nil
	}
	return s.engine.AddCandidate(c)
}

func decodeDescription(raw json.RawMessage) (Description, error) {
	var desc Description
	if err := json.Unmarshal(raw, &desc); err != nil {
		return Description{}, err
	}
	return desc, nil
}

func encodeDescription(desc Description) json.RawMessage {
	data, _ := json.Marshal(desc)
	return data
}
