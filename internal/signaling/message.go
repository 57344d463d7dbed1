// Package signaling defines the messages exchanged between participants and
// the room coordinator, and the client side of the signaling channel.
package signaling

import (
	"bytes"
	"encoding/json"
)

// Message type constants.
const (
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"

	TypeJoined   = "joined"
	TypeReady    = "ready"
	TypeFull     = "full"
	TypePeerLeft = "peer-left"
)

// Message represents every frame on the signaling channel in either
// direction. Description and Candidate are opaque to the coordinator and are
// forwarded byte for byte.
type Message struct {
	Type        string          `json:"type"`
	Room        string          `json:"room,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	Count       int             `json:"count,omitempty"`
	SelfID      string          `json:"selfId,omitempty"`
	InitiatorID string          `json:"initiatorId,omitempty"`
}

// IsRelay reports whether the message is one the coordinator forwards to the
// other member of a room.
func (m *Message) IsRelay() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// Payload returns the opaque body carried by a relay message.
func (m *Message) Payload() json.RawMessage {
	if m.Type == TypeCandidate {
		return m.Candidate
	}
	return m.Description
}

// HasPayload reports whether a relay message carries a non-empty body.
// A JSON null counts as absent.
func (m *Message) HasPayload() bool {
	p := bytes.TrimSpace(m.Payload())
	return len(p) > 0 && !bytes.Equal(p, []byte("null"))
}

// Relayed returns the copy of a relay message delivered to the other member.
func (m *Message) Relayed() *Message {
	out := &Message{Type: m.Type, Room: m.Room}
	if m.Type == TypeCandidate {
		out.Candidate = m.Candidate
	} else {
		out.Description = m.Description
	}
	return out
}

func Join(room string) *Message  { return &Message{Type: TypeJoin, Room: room} }
func Leave(room string) *Message { return &Message{Type: TypeLeave, Room: room} }

func Offer(room string, description json.RawMessage) *Message {
	return &Message{Type: TypeOffer, Room: room, Description: description}
}

func Answer(room string, description json.RawMessage) *Message {
	return &Message{Type: TypeAnswer, Room: room, Description: description}
}

func Candidate(room string, candidate json.RawMessage) *Message {
	return &Message{Type: TypeCandidate, Room: room, Candidate: candidate}
}

func Joined(room string, count int, selfID string) *Message {
	return &Message{Type: TypeJoined, Room: room, Count: count, SelfID: selfID}
}

func Ready(room, initiatorID string) *Message {
	return &Message{Type: TypeReady, Room: room, InitiatorID: initiatorID}
}

func Full(room string) *Message     { return &Message{Type: TypeFull, Room: room} }
func PeerLeft(room string) *Message { return &Message{Type: TypePeerLeft, Room: room} }
