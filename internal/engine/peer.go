// Package engine is the pion-backed media transport used by participants.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Pairlink/internal/negotiation"
)

const (
	controlLabel = "control"
	controlID    = uint16(0)

	defaultPingInterval = 5 * time.Second
)

var (
	ErrUnsupportedTrack = errors.New("track was not created by this engine")
	ErrPeerClosed       = errors.New("peer is closed")
)

// Options describes this participant on the control channel.
type Options struct {
	Name    string
	Version string

	// PingInterval is the control channel ping period. Zero means 5s.
	PingInterval time.Duration

	Logger *slog.Logger
}

// NewFactory returns an EngineFactory that builds a Peer per session.
func NewFactory(opts Options) negotiation.EngineFactory {
	return func(policy negotiation.Policy) (negotiation.Engine, error) {
		return New(policy, opts)
	}
}

// Peer wraps one pion PeerConnection and its control data channel. The
// connection is replaced on Rollback, so it is only reached through conn.
type Peer struct {
	policy negotiation.Policy
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	control     *webrtc.DataChannel
	tracks      []*LocalTrack
	closed      bool
	onCandidate func(negotiation.Candidate)
	onMedia     func(negotiation.RemoteMedia)
	onState     func(negotiation.ConnectionState)
	onHello     func(negotiation.PeerHello)
	onRTT       func(time.Duration)

	seq       atomic.Uint32
	pinging   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ negotiation.Engine         = (*Peer)(nil)
	_ negotiation.ControlChannel = (*Peer)(nil)
)

// New creates a Peer. The policy is applied once and never changes.
func New(policy negotiation.Policy, opts Options) (*Peer, error) {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Peer{
		policy: policy,
		opts:   opts,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
	pc, control, err := p.connect(nil)
	if err != nil {
		return nil, err
	}
	p.pc, p.control = pc, control
	return p, nil
}

func configuration(policy negotiation.Policy) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(policy.ICEServers))
	for _, s := range policy.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	transport := webrtc.ICETransportPolicyAll
	if policy.RelayOnly {
		transport = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: transport,
	}
}

// connect builds a connection from the fixed policy, with the control
// channel, the given tracks and the Peer's handlers attached.
func (p *Peer) connect(tracks []*LocalTrack) (*webrtc.PeerConnection, *webrtc.DataChannel, error) {
	pc, err := webrtc.NewPeerConnection(configuration(p.policy))
	if err != nil {
		return nil, nil, fmt.Errorf("create peer connection: %w", err)
	}

	// Both sides create the channel with the same ID, so it needs no
	// in-band announcement and exists before the first offer.
	ordered := true
	negotiated := true
	id := controlID
	control, err := pc.CreateDataChannel(controlLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("create control channel: %w", err)
	}

	for _, t := range tracks {
		if err := addTrack(pc, t); err != nil {
			pc.Close()
			return nil, nil, err
		}
	}

	p.setupHandlers(pc, control)
	return pc, control, nil
}

func addTrack(pc *webrtc.PeerConnection, t *LocalTrack) error {
	sender, err := pc.AddTrack(t.TrackLocal)
	if err != nil {
		return fmt.Errorf("add track %s: %w", t.ID(), err)
	}

	// Read and discard RTCP packets to keep the connection alive
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// conn returns the live connection.
func (p *Peer) conn() *webrtc.PeerConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

// live reports whether pc is still the Peer's connection. Callbacks from a
// replaced connection are dropped.
func (p *Peer) live(pc *webrtc.PeerConnection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc == pc
}

func (p *Peer) setupHandlers(pc *webrtc.PeerConnection, control *webrtc.DataChannel) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		p.mu.Lock()
		fn := p.onCandidate
		live := p.pc == pc
		p.mu.Unlock()
		if fn != nil && live {
			fn(data)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Debug("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)

		// Drain RTP so the receive buffer never stalls the transport.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()

		p.mu.Lock()
		fn := p.onMedia
		live := p.pc == pc
		p.mu.Unlock()
		if fn != nil && live {
			fn(negotiation.RemoteMedia{ID: track.ID(), Kind: mediaKind(track.Kind())})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("peer connection state", "state", state.String())
		p.mu.Lock()
		fn := p.onState
		live := p.pc == pc
		p.mu.Unlock()
		if fn != nil && live {
			fn(connectionState(state))
		}
	})

	control.OnOpen(func() {
		if !p.live(pc) {
			return
		}
		p.sendHello()
		if p.pinging.CompareAndSwap(false, true) {
			go p.pingLoop()
		}
	})

	control.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !p.live(pc) {
			return
		}
		message, err := DecodeMessage(msg.Data)
		if err != nil {
			p.logger.Debug("dropping malformed control message", "error", err)
			return
		}
		p.handleControl(message)
	})
}

func (p *Peer) handleControl(message Message) {
	switch message.Type {
	case MessageTypeHello:
		var hello HelloPayload
		if err := message.DecodePayload(&hello); err != nil {
			return
		}
		p.mu.Lock()
		fn := p.onHello
		p.mu.Unlock()
		if fn != nil {
			fn(negotiation.PeerHello{Name: hello.Name, Version: hello.Version})
		}

	case MessageTypePing:
		var ping PingPayload
		if err := message.DecodePayload(&ping); err != nil {
			return
		}
		p.send(MessageTypePong, ping)

	case MessageTypePong:
		var pong PingPayload
		if err := message.DecodePayload(&pong); err != nil {
			return
		}
		rtt := time.Since(time.Unix(0, pong.SentAt))
		p.mu.Lock()
		fn := p.onRTT
		p.mu.Unlock()
		if fn != nil && rtt >= 0 {
			fn(rtt)
		}

	case MessageTypeBye:
		p.logger.Debug("peer said bye")
	}
}

func (p *Peer) sendHello() {
	p.send(MessageTypeHello, HelloPayload{Name: p.opts.Name, Version: p.opts.Version})
}

func (p *Peer) pingLoop() {
	ticker := time.NewTicker(p.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.send(MessageTypePing, PingPayload{
				Seq:    p.seq.Add(1),
				SentAt: time.Now().UnixNano(),
			})
		case <-p.done:
			return
		}
	}
}

func (p *Peer) send(typ string, payload any) {
	p.mu.Lock()
	control := p.control
	p.mu.Unlock()
	if control.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	msg, err := NewMessage(typ, payload)
	if err != nil {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		return
	}
	if err := control.Send(data); err != nil {
		p.logger.Debug("control send failed", "type", typ, "error", err)
	}
}

// ensureReceiveIntent adds a receive-only transceiver for every media kind
// that has none, so the remote side can always attach its media.
func (p *Peer) ensureReceiveIntent(pc *webrtc.PeerConnection) error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range pc.GetTransceivers() {
		have[t.Kind()] = true
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

func (p *Peer) CreateOffer() (negotiation.Description, error) {
	pc := p.conn()
	if err := p.ensureReceiveIntent(pc); err != nil {
		return negotiation.Description{}, err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return negotiation.Description{}, fmt.Errorf("create offer: %w", err)
	}
	return fromSession(offer), nil
}

func (p *Peer) CreateAnswer() (negotiation.Description, error) {
	answer, err := p.conn().CreateAnswer(nil)
	if err != nil {
		return negotiation.Description{}, fmt.Errorf("create answer: %w", err)
	}
	return fromSession(answer), nil
}

func (p *Peer) SetLocalDescription(desc negotiation.Description) error {
	sd, err := toSession(desc)
	if err != nil {
		return err
	}
	if err := p.conn().SetLocalDescription(sd); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

func (p *Peer) SetRemoteDescription(desc negotiation.Description) error {
	sd, err := toSession(desc)
	if err != nil {
		return err
	}
	if err := p.conn().SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (p *Peer) AddCandidate(c negotiation.Candidate) error {
	var ice webrtc.ICECandidateInit
	if err := json.Unmarshal(c, &ice); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	if err := p.conn().AddICECandidate(ice); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (p *Peer) AddLocalMedia(tracks []negotiation.Track) error {
	pc := p.conn()
	for _, t := range tracks {
		lt, ok := t.(*LocalTrack)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedTrack, t.ID())
		}
		if err := addTrack(pc, lt); err != nil {
			return err
		}
		p.mu.Lock()
		p.tracks = append(p.tracks, lt)
		p.mu.Unlock()
	}
	return nil
}

// Rollback discards the outstanding local offer. pion has no local rollback
// out of have-local-offer, so the connection is rebuilt from the same policy
// with the same tracks and control channel. Registered callbacks carry over
// and the description state starts again from stable.
func (p *Peer) Rollback() error {
	p.mu.Lock()
	old, closed := p.pc, p.closed
	tracks := append([]*LocalTrack(nil), p.tracks...)
	p.mu.Unlock()
	if closed {
		return ErrPeerClosed
	}
	if state := old.SignalingState(); state != webrtc.SignalingStateHaveLocalOffer {
		return fmt.Errorf("rollback: no local offer to discard in %s", state)
	}

	pc, control, err := p.connect(tracks)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pc.Close()
		return ErrPeerClosed
	}
	p.pc, p.control = pc, control
	p.mu.Unlock()

	if err := old.Close(); err != nil {
		p.logger.Debug("closing rolled back connection", "error", err)
	}
	return nil
}

func (p *Peer) OnLocalCandidate(fn func(negotiation.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *Peer) OnRemoteMedia(fn func(negotiation.RemoteMedia)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMedia = fn
}

func (p *Peer) OnConnectionState(fn func(negotiation.ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *Peer) OnPeerHello(fn func(negotiation.PeerHello)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onHello = fn
}

func (p *Peer) OnRoundTrip(fn func(time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRTT = fn
}

// SayBye tells the remote side this end is stopping on purpose.
func (p *Peer) SayBye() {
	p.send(MessageTypeBye, nil)
}

// Close stops the control loop and closes the connection. Callbacks are
// detached first so nothing fires into a discarded session.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		p.onCandidate, p.onMedia, p.onState, p.onHello, p.onRTT = nil, nil, nil, nil, nil
		pc := p.pc
		p.mu.Unlock()
		err = pc.Close()
	})
	return err
}

// SignalingState exposes the underlying description state.
func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.conn().SignalingState()
}

func fromSession(sd webrtc.SessionDescription) negotiation.Description {
	return negotiation.Description{Type: negotiation.SDPType(sd.Type.String()), SDP: sd.SDP}
}

func toSession(desc negotiation.Description) (webrtc.SessionDescription, error) {
	var typ webrtc.SDPType
	switch desc.Type {
	case negotiation.SDPOffer:
		typ = webrtc.SDPTypeOffer
	case negotiation.SDPAnswer:
		typ = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unknown description type %q", desc.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: desc.SDP}, nil
}

func mediaKind(kind webrtc.RTPCodecType) negotiation.MediaKind {
	if kind == webrtc.RTPCodecTypeVideo {
		return negotiation.MediaVideo
	}
	return negotiation.MediaAudio
}

func connectionState(state webrtc.PeerConnectionState) negotiation.ConnectionState {
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		return negotiation.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return negotiation.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return negotiation.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return negotiation.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return negotiation.ConnectionClosed
	}
	return negotiation.ConnectionNew
}
