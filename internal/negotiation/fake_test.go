package negotiation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Pairlink/internal/signaling"
)

var errFakeState = errors.New("fake engine: invalid state")

// fakeEngine models the description state of a WebRTC peer connection.
type fakeEngine struct {
	name string

	// release, when set, blocks CreateOffer until it is closed.
	release chan struct{}

	// autoConnect reports connected once both descriptions are applied.
	autoConnect bool

	mu            sync.Mutex
	signal        SignalState
	local         *Description
	remote        *Description
	pendingLocal  *Description
	pendingRemote *Description
	offers        int
	answers       int
	rollbacks     int
	candidates    []string
	media         []Track
	closed        bool
	connected     bool

	onCandidate func(Candidate)
	onConn      func(ConnectionState)
	onMedia     func(RemoteMedia)
}

var _ Engine = (*fakeEngine)(nil)

func (e *fakeEngine) CreateOffer() (Description, error) {
	if e.release != nil {
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Description{}, ErrSessionClosed
	}
	e.offers++
	return Description{Type: SDPOffer, SDP: fmt.Sprintf("%s-offer-%d", e.name, e.offers)}, nil
}

func (e *fakeEngine) CreateAnswer() (Description, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Description{}, ErrSessionClosed
	}
	if e.signal != SignalHaveRemoteOffer {
		return Description{}, errFakeState
	}
	e.answers++
	return Description{Type: SDPAnswer, SDP: fmt.Sprintf("%s-answer-%d", e.name, e.answers)}, nil
}

// SetLocalDescription and SetRemoteDescription accept only the transitions
// pion's checkNextSignalingState allows. A rollback description is refused
// in every state, as pion refuses it out of have-local-offer.
func (e *fakeEngine) SetLocalDescription(desc Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}

	switch desc.Type {
	case SDPOffer:
		if e.signal != SignalNone && e.signal != SignalStable {
			return errFakeState
		}
		d := desc
		e.pendingLocal = &d
		e.signal = SignalHaveLocalOffer
	case SDPAnswer:
		if e.signal != SignalHaveRemoteOffer {
			return errFakeState
		}
		d := desc
		e.local, e.remote = &d, e.pendingRemote
		e.pendingRemote = nil
		e.signal = SignalStable
		e.maybeConnect()
	default:
		return errFakeState
	}
	return nil
}

// Rollback mirrors engine.Peer, which rebuilds its connection: descriptions
// and remote candidates are gone, local media stays.
func (e *fakeEngine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	if e.signal != SignalHaveLocalOffer {
		return errFakeState
	}
	e.rollbacks++
	e.local, e.remote = nil, nil
	e.pendingLocal, e.pendingRemote = nil, nil
	e.candidates = nil
	e.signal = SignalNone
	return nil
}

func (e *fakeEngine) SetRemoteDescription(desc Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}

	switch desc.Type {
	case SDPOffer:
		if e.signal != SignalNone && e.signal != SignalStable {
			return errFakeState
		}
		d := desc
		e.pendingRemote = &d
		e.signal = SignalHaveRemoteOffer
	case SDPAnswer:
		if e.signal != SignalHaveLocalOffer {
			return errFakeState
		}
		d := desc
		e.local, e.remote = e.pendingLocal, &d
		e.pendingLocal = nil
		e.signal = SignalStable
		e.maybeConnect()
	default:
		return errFakeState
	}
	return nil
}

// maybeConnect is called with mu held.
func (e *fakeEngine) maybeConnect() {
	if !e.autoConnect || e.connected || e.onConn == nil {
		return
	}
	e.connected = true
	fn := e.onConn
	go fn(ConnectionConnected)
}

func (e *fakeEngine) AddCandidate(c Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	if e.remote == nil && e.pendingRemote == nil {
		return errFakeState
	}
	e.candidates = append(e.candidates, string(c))
	return nil
}

func (e *fakeEngine) AddLocalMedia(tracks []Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.media = append(e.media, tracks...)
	return nil
}

func (e *fakeEngine) OnLocalCandidate(fn func(Candidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

func (e *fakeEngine) OnRemoteMedia(fn func(RemoteMedia)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMedia = fn
}

func (e *fakeEngine) OnConnectionState(fn func(ConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onConn = fn
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// emitCandidate simulates local candidate gathering.
func (e *fakeEngine) emitCandidate(c string) {
	e.mu.Lock()
	fn := e.onCandidate
	e.mu.Unlock()
	fn(Candidate(c))
}

func (e *fakeEngine) emitConnection(state ConnectionState) {
	e.mu.Lock()
	fn := e.onConn
	e.mu.Unlock()
	fn(state)
}

// engineView is a point-in-time copy of a fakeEngine's state.
type engineView struct {
	signal     SignalState
	local      *Description
	remote     *Description
	offers     int
	answers    int
	rollbacks  int
	candidates []string
	media      []Track
	closed     bool
}

func (e *fakeEngine) snapshot() engineView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engineView{
		signal:     e.signal,
		local:      e.local,
		remote:     e.remote,
		offers:     e.offers,
		answers:    e.answers,
		rollbacks:  e.rollbacks,
		candidates: append([]string(nil), e.candidates...),
		media:      e.media,
		closed:     e.closed,
	}
}

// fakeFactory creates fakeEngines and remembers them.
type fakeFactory struct {
	name        string
	release     chan struct{}
	autoConnect bool
	err         error

	mu      sync.Mutex
	engines []*fakeEngine
	policy  Policy
}

func (f *fakeFactory) New(policy Policy) (Engine, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = policy
	e := &fakeEngine{
		name:        fmt.Sprintf("%s%d", f.name, len(f.engines)+1),
		release:     f.release,
		autoConnect: f.autoConnect,
		signal:      SignalNone,
	}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) last() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// fakeChannel records outgoing messages.
type fakeChannel struct {
	incoming chan *signaling.Message
	notices  chan signaling.Notice

	mu   sync.Mutex
	sent []*signaling.Message
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan *signaling.Message, 16),
		notices:  make(chan signaling.Notice, 4),
	}
}

func (c *fakeChannel) Send(msg *signaling.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Incoming() <-chan *signaling.Message { return c.incoming }
func (c *fakeChannel) Notices() <-chan signaling.Notice    { return c.notices }

func (c *fakeChannel) ofType(typ string) []*signaling.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*signaling.Message
	for _, m := range c.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// statusLog collects reported statuses.
type statusLog struct {
	mu   sync.Mutex
	list []Status
}

func (l *statusLog) add(st Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, st)
}

func (l *statusLog) withErr(target error) []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Status
	for _, st := range l.list {
		if errors.Is(st.Err, target) {
			out = append(out, st)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	n       *Negotiator
	ch      *fakeChannel
	factory *fakeFactory
	status  *statusLog
}

func newHarness(t *testing.T, name string, mutate func(*Options, *fakeFactory)) *harness {
	t.Helper()
	h := &harness{
		ch:      newFakeChannel(),
		factory: &fakeFactory{name: name},
		status:  &statusLog{},
	}
	opts := Options{
		NewEngine: h.factory.New,
		OnStatus:  h.status.add,
		Logger:    discardLogger(),
	}
	if mutate != nil {
		mutate(&opts, h.factory)
	}
	h.n = New(h.ch, opts)
	return h
}

// step feeds one message through the state machine.
func (h *harness) step(msg *signaling.Message) {
	h.n.handleMessage(msg)
}

// settle processes the next engine event.
func (h *harness) settle(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-h.n.events:
		h.n.handleEvent(ev)
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine event")
	}
	return event{}
}

// settleOffer processes events until the pending offer is created.
func (h *harness) settleOffer(t *testing.T) {
	t.Helper()
	for {
		if ev := h.settle(t); ev.kind == evOfferCreated {
			return
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFakeEngineRefusesForbiddenTransitions(t *testing.T) {
	offer := Description{Type: SDPOffer, SDP: "o"}
	answer := Description{Type: SDPAnswer, SDP: "a"}
	rollback := Description{Type: "rollback"}

	e := &fakeEngine{name: "x"}
	if err := e.Rollback(); err == nil {
		t.Fatal("rollback with no local offer accepted")
	}
	if err := e.SetLocalDescription(answer); err == nil {
		t.Fatal("local answer without remote offer accepted")
	}
	if err := e.SetRemoteDescription(answer); err == nil {
		t.Fatal("remote answer without local offer accepted")
	}

	if err := e.SetLocalDescription(offer); err != nil {
		t.Fatalf("local offer: %v", err)
	}
	if err := e.SetLocalDescription(rollback); err == nil {
		t.Fatal("local rollback description accepted in have-local-offer")
	}
	if err := e.SetRemoteDescription(offer); err == nil {
		t.Fatal("remote offer accepted in have-local-offer")
	}

	if err := e.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if v := e.snapshot(); v.signal != SignalNone || v.rollbacks != 1 {
		t.Fatalf("after rollback signal=%v rollbacks=%d", v.signal, v.rollbacks)
	}
	if err := e.SetRemoteDescription(offer); err != nil {
		t.Fatalf("remote offer after rollback: %v", err)
	}
	if err := e.SetLocalDescription(answer); err != nil {
		t.Fatalf("local answer: %v", err)
	}
	if v := e.snapshot(); v.signal != SignalStable {
		t.Fatalf("signal = %v, want stable", v.signal)
	}
}
