package negotiation

import (
	"encoding/json"
	"time"
)

// SDPType is the kind of a session description.
type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// Description is a session description. It travels as the opaque
// description field of offer and answer messages.
type Description struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp,omitempty"`
}

// Candidate is an opaque ICE candidate, relayed without inspection.
type Candidate = json.RawMessage

// MediaKind is audio or video.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Track is a local media source handed to the engine.
type Track interface {
	ID() string
	MediaKind() MediaKind
}

// RemoteMedia describes a remote track that became available.
type RemoteMedia struct {
	ID   string
	Kind MediaKind
}

// ConnectionState is the engine's view of the media transport.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	}
	return "unknown"
}

// ICEServer is one candidate-gathering server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Policy is fixed for the lifetime of a session. Changing it requires a new
// session.
type Policy struct {
	ICEServers []ICEServer
	RelayOnly  bool
}

// Engine is the media transport. Callbacks may fire on any goroutine.
type Engine interface {
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(desc Description) error
	SetRemoteDescription(desc Description) error

	// Rollback discards an outstanding local offer. The engine comes back
	// with no descriptions applied and keeps its tracks and callbacks. It
	// fails when no local offer is outstanding.
	Rollback() error

	AddCandidate(c Candidate) error
	AddLocalMedia(tracks []Track) error

	OnLocalCandidate(fn func(Candidate))
	OnRemoteMedia(fn func(RemoteMedia))
	OnConnectionState(fn func(ConnectionState))

	Close() error
}

// EngineFactory creates one engine per session.
type EngineFactory func(policy Policy) (Engine, error)

// PeerHello is what the remote side announced about itself.
type PeerHello struct {
	Name    string
	Version string
}

// ControlChannel is implemented by engines that carry an in-band control
// channel next to the media.
type ControlChannel interface {
	OnPeerHello(fn func(PeerHello))
	OnRoundTrip(fn func(rtt time.Duration))

	// SayBye tells the remote side this end is stopping on purpose.
	SayBye()
}
