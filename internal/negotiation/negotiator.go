// Package negotiation drives one participant's transport engine to a
// connected state from the messages relayed by the room coordinator.
//
// A Negotiator is a single goroutine (Run) that consumes, one at a time and
// in arrival order, signaling messages, channel notices, caller commands and
// engine events. Offer creation is the only asynchronous engine operation;
// relayed messages arriving while it is pending are deferred until it
// completes, and results from a torn-down session are discarded by epoch.
//
// Glare is resolved by role: the responder rolls back its local offer and
// answers, the initiator keeps its offer and ignores the colliding one.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Pairlink/internal/signaling"
)

// pairSize is the room capacity; the member that completes the pair
// initiates.
const pairSize = 2

// Channel is the participant's signaling channel.
type Channel interface {
	Send(msg *signaling.Message) error
	Incoming() <-chan *signaling.Message
	Notices() <-chan signaling.Notice
}

var _ Channel = (*signaling.Client)(nil)

// Options configures a Negotiator.
type Options struct {
	NewEngine EngineFactory
	Policy    Policy

	// OpenMedia acquires local tracks before each join. Nil means no local
	// media.
	OpenMedia func() ([]Track, error)

	// Rejoin starts a fresh session in the same room after peer-left.
	Rejoin bool

	// OnStatus is called from the Run goroutine and must not block for long.
	OnStatus func(Status)

	Logger *slog.Logger
}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdLeave
)

type command struct {
	kind commandKind
	room string
}

type eventKind int

const (
	evOfferCreated eventKind = iota
	evLocalCandidate
	evConnectionState
	evRemoteMedia
	evPeerHello
	evRoundTrip
)

type event struct {
	kind  eventKind
	epoch uint64

	desc      Description
	err       error
	candidate Candidate
	conn      ConnectionState
	media     RemoteMedia
	hello     PeerHello
	rtt       time.Duration
}

// Negotiator is the participant-side negotiation state machine.
type Negotiator struct {
	ch     Channel
	opts   Options
	logger *slog.Logger

	cmds   chan command
	events chan event
	done   chan struct{}

	state atomic.Int32

	// Owned by the Run goroutine.
	room    string
	joining bool
	joined  bool
	tracks  []Track
	session *Session
	epoch   uint64
	peer    string
	rtt     time.Duration
}

// New creates a Negotiator on ch. Call Run to start it.
func New(ch Channel, opts Options) *Negotiator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{
		ch:     ch,
		opts:   opts,
		logger: logger,
		cmds:   make(chan command, 4),
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
}

// State returns the current state. Safe from any goroutine.
func (n *Negotiator) State() State {
	return State(n.state.Load())
}

// Join asks the Negotiator to join room with a fresh session, leaving any
// current room first.
func (n *Negotiator) Join(room string) error {
	if room == "" {
		return &Error{Op: "join", Err: ErrInvalidState, Details: "empty room name"}
	}
	return n.command(command{kind: cmdJoin, room: room})
}

// Leave performs a full stop: leave the room and discard the session.
func (n *Negotiator) Leave() error {
	return n.command(command{kind: cmdLeave})
}

func (n *Negotiator) command(c command) error {
	select {
	case <-n.done:
		return ErrSessionClosed
	default:
	}

	select {
	case n.cmds <- c:
		return nil
	case <-n.done:
		return ErrSessionClosed
	}
}

// Run processes events until ctx is cancelled or the signaling channel is
// lost. Cancelling ctx leaves the room first.
func (n *Negotiator) Run(ctx context.Context) error {
	defer close(n.done)

	incoming := n.ch.Incoming()
	notices := n.ch.Notices()

	for {
		select {
		case <-ctx.Done():
			n.leave()
			return nil

		case c := <-n.cmds:
			switch c.kind {
			case cmdJoin:
				n.join(c.room)
			case cmdLeave:
				n.leave()
			}

		case msg, ok := <-incoming:
			if !ok {
				return n.lost()
			}
			n.handleMessage(msg)

		case notice := <-notices:
			if notice == signaling.NoticeLost {
				return n.lost()
			}
			n.handleNotice(notice)

		case ev := <-n.events:
			n.handleEvent(ev)
		}
	}
}

func (n *Negotiator) lost() error {
	room := n.room
	n.teardown()
	n.room = ""
	err := NewError("signaling", room, ErrChannelLost)
	n.report(Status{Room: room, Text: "signaling connection lost", Err: err})
	return err
}

func (n *Negotiator) join(room string) {
	if n.room == room && (n.joining || n.joined) {
		return
	}
	if n.room != "" {
		n.leave()
	}

	if n.State() == StateIdle {
		tracks, err := n.openMedia()
		if err != nil {
			n.report(Status{Room: room, Text: "local media unavailable", Err: WrapError("open local media", room, ErrTransport, err)})
			return
		}
		n.tracks = tracks
		n.setState(StateLocalMediaReady)
	}

	n.room = room
	n.joining = true
	if err := n.ch.Send(signaling.Join(room)); err != nil {
		n.joining = false
		n.report(Status{Room: room, Text: "could not send join", Err: WrapError("join", room, ErrChannelLost, err)})
		return
	}
	n.report(Status{Text: "joining room " + room})
}

func (n *Negotiator) openMedia() ([]Track, error) {
	if n.opts.OpenMedia == nil {
		return nil, nil
	}
	return n.opts.OpenMedia()
}

// leave is the full stop.
func (n *Negotiator) leave() {
	room := n.room
	if room == "" {
		n.teardown()
		return
	}

	if s := n.session; s != nil {
		if cc, ok := s.engine.(ControlChannel); ok {
			cc.SayBye()
		}
	}
	if n.joined || n.joining {
		if err := n.ch.Send(signaling.Leave(room)); err != nil {
			n.logger.Debug("could not send leave", "room", room, "error", err)
		}
	}

	n.teardown()
	n.room = ""
	n.report(Status{Room: room, Text: "left room " + room})
}

// teardown discards the session and its engine. Pending asynchronous
// results are invalidated by the epoch bump.
func (n *Negotiator) teardown() {
	if s := n.session; s != nil {
		n.session = nil
		if err := s.engine.Close(); err != nil {
			n.logger.Debug("engine close failed", "room", s.room, "error", err)
		}
	}
	n.epoch++
	n.joining = false
	n.joined = false
	n.tracks = nil
	n.peer = ""
	n.rtt = 0
	n.setState(StateIdle)
}

func (n *Negotiator) handleNotice(notice signaling.Notice) {
	switch notice {
	case signaling.NoticeDisconnected:
		if n.room == "" {
			return
		}
		// The coordinator treats the drop as a leave, so the session is
		// gone on both ends. Keep the room to rejoin after reconnecting.
		room := n.room
		n.teardown()
		n.report(Status{Room: room, Text: "signaling connection lost, reconnecting", Err: NewError("signaling", room, ErrChannelLost)})

	case signaling.NoticeReconnected:
		if n.room == "" {
			return
		}
		room := n.room
		n.room = ""
		n.join(room)
	}
}

func (n *Negotiator) handleMessage(msg *signaling.Message) {
	if n.room == "" || msg.Room != n.room {
		n.logger.Debug("dropping message for another room", "type", msg.Type, "room", msg.Room)
		return
	}

	switch msg.Type {
	case signaling.TypeJoined:
		n.onJoined(msg)
	case signaling.TypeReady:
		n.onReady(msg)
	case signaling.TypeFull:
		n.onFull()
	case signaling.TypePeerLeft:
		n.onPeerLeft()
	case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeCandidate:
		n.onRelay(msg)
	default:
		n.logger.Debug("dropping unknown message", "type", msg.Type)
	}
}

func (n *Negotiator) onJoined(msg *signaling.Message) {
	if n.session != nil || !n.joining {
		return
	}
	n.joining = false
	room := n.room

	engine, err := n.opts.NewEngine(n.opts.Policy)
	if err != nil {
		n.abandon(room, WrapError("create engine", room, ErrTransport, err))
		return
	}
	if err := engine.AddLocalMedia(n.tracks); err != nil {
		engine.Close()
		n.abandon(room, WrapError("add local media", room, ErrTransport, err))
		return
	}

	n.epoch++
	s := newSession(room, msg.SelfID, engine, n.epoch)
	n.attach(s)
	n.session = s
	n.joined = true
	n.setState(StateRoomJoined)
	n.report(Status{Text: fmt.Sprintf("joined room %s (%d/%d)", room, msg.Count, pairSize)})

	// The second arrival initiates. Ready says the same thing; the offer
	// guard makes the two paths safe to combine.
	if msg.Count == pairSize {
		s.role = RoleInitiator
		n.maybeOffer()
	}
}

// abandon gives up a join whose session could not be created.
func (n *Negotiator) abandon(room string, err error) {
	if sendErr := n.ch.Send(signaling.Leave(room)); sendErr != nil {
		n.logger.Debug("could not send leave", "room", room, "error", sendErr)
	}
	n.room = ""
	n.report(Status{Room: room, Text: "could not start session", Err: err})
}

// attach routes engine callbacks into the event loop, tagged with the
// session epoch.
func (n *Negotiator) attach(s *Session) {
	epoch := s.epoch
	s.engine.OnLocalCandidate(func(c Candidate) {
		n.post(event{kind: evLocalCandidate, epoch: epoch, candidate: c})
	})
	s.engine.OnConnectionState(func(state ConnectionState) {
		n.post(event{kind: evConnectionState, epoch: epoch, conn: state})
	})
	s.engine.OnRemoteMedia(func(m RemoteMedia) {
		n.post(event{kind: evRemoteMedia, epoch: epoch, media: m})
	})
	if cc, ok := s.engine.(ControlChannel); ok {
		cc.OnPeerHello(func(h PeerHello) {
			n.post(event{kind: evPeerHello, epoch: epoch, hello: h})
		})
		cc.OnRoundTrip(func(rtt time.Duration) {
			n.post(event{kind: evRoundTrip, epoch: epoch, rtt: rtt})
		})
	}
}

func (n *Negotiator) post(ev event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}

func (n *Negotiator) onReady(msg *signaling.Message) {
	s := n.session
	if s == nil {
		return
	}
	if msg.InitiatorID == s.selfID {
		s.role = RoleInitiator
		n.maybeOffer()
		return
	}
	s.role = RoleResponder
	n.logger.Debug("waiting for offer", "room", s.room)
}

func (n *Negotiator) onFull() {
	room := n.room
	n.joining = false
	n.room = ""
	n.report(Status{Room: room, Text: "room " + room + " is full", Err: NewError("join", room, ErrRoomFull)})
}

func (n *Negotiator) onPeerLeft() {
	room := n.room
	n.teardown()
	n.report(Status{Room: room, Text: "peer left", Err: NewError("session", room, ErrPeerLeft)})

	if n.opts.Rejoin {
		n.room = ""
		n.join(room)
		return
	}
	if err := n.ch.Send(signaling.Leave(room)); err != nil {
		n.logger.Debug("could not send leave", "room", room, "error", err)
	}
	n.room = ""
}

// maybeOffer starts creating an offer unless one was already made or is in
// flight in this session.
func (n *Negotiator) maybeOffer() {
	s := n.session
	if s == nil || s.offered || s.offerInFlight {
		return
	}
	s.offerInFlight = true
	n.setState(StateNegotiating)

	go func(engine Engine, epoch uint64) {
		desc, err := engine.CreateOffer()
		if err == nil {
			err = engine.SetLocalDescription(desc)
		}
		n.post(event{kind: evOfferCreated, epoch: epoch, desc: desc, err: err})
	}(s.engine, s.epoch)
}

func (n *Negotiator) handleEvent(ev event) {
	s := n.session
	if s == nil || ev.epoch != s.epoch {
		n.logger.Debug("discarding event from closed session", "kind", int(ev.kind))
		return
	}

	switch ev.kind {
	case evOfferCreated:
		n.onOfferCreated(s, ev)

	case evLocalCandidate:
		if !n.joined {
			n.logger.Debug("dropping local candidate", "error", ErrNotJoined)
			return
		}
		if s.offerInFlight {
			s.held = append(s.held, ev.candidate)
			return
		}
		n.sendCandidate(s, ev.candidate)

	case evConnectionState:
		n.onConnectionState(s, ev.conn)

	case evRemoteMedia:
		n.report(Status{Text: fmt.Sprintf("remote %s track available", ev.media.Kind)})

	case evPeerHello:
		n.peer = ev.hello.Name
		n.report(Status{Text: "peer " + ev.hello.Name + " says hello"})

	case evRoundTrip:
		n.rtt = ev.rtt
		n.report(Status{Text: "round trip " + ev.rtt.Round(time.Millisecond).String()})
	}
}

func (n *Negotiator) onOfferCreated(s *Session, ev event) {
	s.offerInFlight = false

	if ev.err != nil {
		n.report(Status{Text: "could not create offer", Err: WrapError("create offer", s.room, ErrTransport, ev.err)})
	} else {
		s.offered = true
		s.signal = SignalHaveLocalOffer
		if err := n.ch.Send(signaling.Offer(s.room, encodeDescription(ev.desc))); err != nil {
			n.logger.Debug("could not send offer", "room", s.room, "error", err)
		}
		n.report(Status{Text: "offer sent"})
	}

	held := s.held
	s.held = nil
	for _, c := range held {
		n.sendCandidate(s, c)
	}

	deferred := s.deferred
	s.deferred = nil
	for _, msg := range deferred {
		if n.session != s {
			return
		}
		n.onRelay(msg)
	}
}

func (n *Negotiator) sendCandidate(s *Session, c Candidate) {
	if err := n.ch.Send(signaling.Candidate(s.room, c)); err != nil {
		n.logger.Debug("could not send candidate", "room", s.room, "error", err)
	}
}

func (n *Negotiator) onRelay(msg *signaling.Message) {
	s := n.session
	if s == nil {
		n.logger.Debug("dropping relay without session", "type", msg.Type)
		return
	}
	if s.offerInFlight {
		s.deferred = append(s.deferred, msg)
		return
	}

	switch msg.Type {
	case signaling.TypeOffer:
		n.onOffer(s, msg)
	case signaling.TypeAnswer:
		n.onAnswer(s, msg)
	case signaling.TypeCandidate:
		if err := s.addRemoteCandidate(msg.Candidate); err != nil {
			n.logger.Warn("could not add remote candidate", "room", s.room, "error", err)
		}
	}
}

func (n *Negotiator) onOffer(s *Session, msg *signaling.Message) {
	desc, err := decodeDescription(msg.Description)
	if err != nil || desc.Type != SDPOffer {
		n.logger.Debug("dropping malformed offer", "room", s.room, "error", err)
		return
	}

	if s.signal == SignalHaveLocalOffer {
		if s.role == RoleInitiator {
			n.logger.Debug("ignoring colliding offer", "room", s.room)
			return
		}
		if err := s.engine.Rollback(); err != nil {
			n.report(Status{Text: "rollback failed", Err: WrapError("rollback", s.room, ErrTransport, err)})
			return
		}
		s.signal = SignalNone
		n.logger.Debug("rolled back local offer", "room", s.room)
	}

	if err := s.applyRemote(desc); err != nil {
		n.report(Status{Text: "could not apply offer", Err: WrapError("apply offer", s.room, ErrTransport, err)})
		return
	}
	s.signal = SignalHaveRemoteOffer
	n.flushPending(s)

	answer, err := s.engine.CreateAnswer()
	if err == nil {
		err = s.engine.SetLocalDescription(answer)
	}
	if err != nil {
		n.report(Status{Text: "could not create answer", Err: WrapError("create answer", s.room, ErrTransport, err)})
		return
	}
	s.signal = SignalStable

	if err := n.ch.Send(signaling.Answer(s.room, encodeDescription(answer))); err != nil {
		n.logger.Debug("could not send answer", "room", s.room, "error", err)
	}
	if n.State() != StateConnected {
		n.setState(StateNegotiating)
	}
	n.report(Status{Text: "answer sent"})
}

func (n *Negotiator) onAnswer(s *Session, msg *signaling.Message) {
	desc, err := decodeDescription(msg.Description)
	if err != nil || desc.Type != SDPAnswer {
		n.logger.Debug("dropping malformed answer", "room", s.room, "error", err)
		return
	}

	if s.signal != SignalHaveLocalOffer {
		n.logger.Debug("discarding answer", "room", s.room, "state", s.signal.String(), "error", ErrStaleMessage)
		return
	}

	if err := s.applyRemote(desc); err != nil {
		n.report(Status{Text: "could not apply answer", Err: WrapError("apply answer", s.room, ErrTransport, err)})
		return
	}
	s.signal = SignalStable
	n.flushPending(s)
	n.report(Status{Text: "answer applied"})
}

// flushPending adds the candidates buffered before the remote description,
// in arrival order.
func (n *Negotiator) flushPending(s *Session) {
	for _, c := range s.takePending() {
		if err := s.engine.AddCandidate(c); err != nil {
			n.logger.Warn("could not add remote candidate", "room", s.room, "error", err)
		}
	}
}

func (n *Negotiator) onConnectionState(s *Session, state ConnectionState) {
	switch state {
	case ConnectionConnected:
		n.setState(StateConnected)
		n.report(Status{Text: "connected"})
	case ConnectionFailed:
		n.report(Status{Text: "connection failed", Err: WrapError("connect", s.room, ErrTransport, errors.New("ice failed"))})
	case ConnectionDisconnected:
		n.report(Status{Text: "connection interrupted"})
	default:
		n.logger.Debug("connection state", "room", s.room, "state", state.String())
	}
}

func (n *Negotiator) setState(state State) {
	old := State(n.state.Swap(int32(state)))
	if old != state {
		n.logger.Debug("negotiation state", "room", n.room, "state", state.String())
	}
}

func (n *Negotiator) report(st Status) {
	st.State = n.State()
	if st.Room == "" {
		st.Room = n.room
	}
	st.Peer = n.peer
	st.RTT = n.rtt

	if st.Err != nil {
		n.logger.Info(st.Text, "room", st.Room, "state", st.State.String(), "error", st.Err)
	} else {
		n.logger.Debug(st.Text, "room", st.Room, "state", st.State.String())
	}
	if n.opts.OnStatus != nil {
		n.opts.OnStatus(st)
	}
}
