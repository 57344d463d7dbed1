package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Pairlink/internal/coordinator"
	"github.com/BioHazard786/Pairlink/internal/negotiation"
)

func TestCallModelAppliesStatus(t *testing.T) {
	m := newCallModel("demo", make(chan tea.Msg, 1))

	_, cmd := m.Update(statusMsg(negotiation.Status{State: negotiation.StateRoomJoined, Room: "demo", Text: "joined room demo (1/2)"}))
	if cmd == nil {
		t.Fatal("no follow-up listen command")
	}

	view := m.View()
	for _, want := range []string{"demo", "room-joined", "joined room demo (1/2)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestCallModelTracksConnection(t *testing.T) {
	m := newCallModel("demo", make(chan tea.Msg, 1))

	m.Update(statusMsg(negotiation.Status{State: negotiation.StateConnected, Text: "connected", Peer: "bob"}))
	if m.connectedAt.IsZero() {
		t.Fatal("connection time not recorded")
	}

	m.Update(statusMsg(negotiation.Status{State: negotiation.StateConnected, Text: "round trip 12ms", Peer: "bob", RTT: 12 * time.Millisecond}))
	if len(m.events) != 1 {
		t.Fatalf("events = %d, want round trip kept out of the log", len(m.events))
	}
	if !strings.Contains(m.View(), "12ms") || !strings.Contains(m.View(), "bob") {
		t.Fatalf("header missing peer or rtt:\n%s", m.View())
	}

	m.Update(statusMsg(negotiation.Status{State: negotiation.StateIdle, Text: "peer left", Err: negotiation.ErrPeerLeft}))
	if !m.connectedAt.IsZero() {
		t.Fatal("connectedAt survived leaving")
	}
	if !strings.Contains(m.View(), "peer left") {
		t.Fatalf("error not shown:\n%s", m.View())
	}
}

func TestCallModelEventLogIsBounded(t *testing.T) {
	m := newCallModel("demo", make(chan tea.Msg, 1))
	for i := 0; i < maxEvents+4; i++ {
		m.apply(negotiation.Status{Text: "event"})
	}
	if len(m.events) != maxEvents {
		t.Fatalf("events = %d, want %d", len(m.events), maxEvents)
	}
}

func TestCallModelQuitKeys(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	}
	for _, key := range keys {
		m := newCallModel("demo", make(chan tea.Msg, 1))
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("%s: no command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s: command is not quit", key)
		}
		if m.View() != "" {
			t.Fatalf("%s: view not cleared", key)
		}
	}
}

func TestCallModelShowsEndedPrompt(t *testing.T) {
	m := newCallModel("demo", make(chan tea.Msg, 1))
	if !strings.Contains(m.View(), "Press q to hang up") {
		t.Fatalf("hang up hint missing:\n%s", m.View())
	}

	m.Update(statusMsg(negotiation.Status{Room: "demo", Text: "room demo is full", Err: negotiation.ErrRoomFull}))
	_, cmd := m.Update(endedMsg("Room demo is full. Run pairlink call with another room to try again."))
	if cmd == nil {
		t.Fatal("no follow-up listen command")
	}

	view := m.View()
	if !strings.Contains(view, "Run pairlink call with another room") {
		t.Fatalf("ended prompt missing:\n%s", view)
	}
	if strings.Contains(view, "hang up") || !strings.Contains(view, "Press q to exit") {
		t.Fatalf("footer not switched to exit:\n%s", view)
	}
}

func TestCallUIPushDoesNotBlock(t *testing.T) {
	ui := NewCallUI("demo")
	for i := 0; i < 200; i++ {
		ui.Push(negotiation.Status{Text: "x"})
	}
	ui.End("done")
}

func TestRoomsView(t *testing.T) {
	view := RoomsView(coordinator.Stats{
		Rooms:   2,
		Members: 3,
		Occupancy: []coordinator.Occupancy{
			{Room: "alpha", Count: 1},
			{Room: "beta", Count: 2},
		},
	})
	for _, want := range []string{"alpha", "beta", "1/2", "2/2", "waiting", "paired", "2 rooms"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	if got := RoomsView(coordinator.Stats{}); !strings.Contains(got, "No active rooms") {
		t.Fatalf("empty view = %q", got)
	}
}

func TestSessionSummaryView(t *testing.T) {
	view := SessionSummaryView(SessionSummary{Room: "demo", Duration: 90 * time.Second, Result: "peer left"})
	for _, want := range []string{"demo", "1m30s", "peer left", "Last RTT"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary missing %q:\n%s", want, view)
		}
	}
}

func TestSessionInfoView(t *testing.T) {
	view := SessionInfo{Room: "demo", Name: "alice", Server: "ws://localhost:8080/ws", RelayOnly: true, AutoRelay: true}.View()
	if !strings.Contains(view, "restrictive network") || !strings.Contains(view, "alice") {
		t.Fatalf("info view:\n%s", view)
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	sp := NewSimpleSpinner("working")
	sp.out = &strings.Builder{}
	sp.Stop()
	sp.Start()
	sp.Stop()

	sp = NewConnectionSpinner("connecting")
	sp.out = &strings.Builder{}
	sp.Start()
	sp.UpdateMessage("still connecting")
	sp.Stop()
	sp.Stop()
}
