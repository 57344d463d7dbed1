package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Pairlink/internal/negotiation"
)

// maxEvents bounds the event log shown under the status line.
const maxEvents = 6

// CallUI shows live negotiation status until the user quits.
type CallUI struct {
	program *tea.Program
	model   *callModel
	updates chan tea.Msg
	quit    chan struct{}
	wg      sync.WaitGroup
}

type statusMsg negotiation.Status

// endedMsg carries the prompt shown once the call cannot continue.
type endedMsg string

type event struct {
	at   time.Time
	text string
	err  bool
}

type callModel struct {
	room    string
	spinner spinner.Model
	status  negotiation.Status
	events  []event
	started time.Time
	updates chan tea.Msg

	connectedAt time.Time
	ended       string
	quitting    bool
}

// NewCallUI creates a status view for room.
func NewCallUI(room string) *CallUI {
	updates := make(chan tea.Msg, 64)
	return &CallUI{
		model:   newCallModel(room, updates),
		updates: updates,
		quit:    make(chan struct{}),
	}
}

func newCallModel(room string, updates chan tea.Msg) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &callModel{
		room:    room,
		spinner: s,
		started: time.Now(),
		updates: updates,
		status:  negotiation.Status{Room: room, Text: "starting..."},
	}
}

// Start runs the UI in a goroutine. Quit is closed when it exits.
func (ui *CallUI) Start() {
	// Inline mode without alt screen keeps previous terminal output visible
	ui.program = tea.NewProgram(ui.model)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		defer close(ui.quit)
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Push queues a status update. Updates are dropped if the view falls behind.
func (ui *CallUI) Push(st negotiation.Status) {
	ui.send(statusMsg(st))
}

// End shows prompt in place of the hang up hint. The view stays up until
// the user quits.
func (ui *CallUI) End(prompt string) {
	ui.send(endedMsg(prompt))
}

func (ui *CallUI) send(msg tea.Msg) {
	select {
	case ui.updates <- msg:
	default:
	}
}

// Quit is closed once the user pressed q or Ctrl+C, or after Stop.
func (ui *CallUI) Quit() <-chan struct{} {
	return ui.quit
}

// Stop stops the UI and waits for it to restore the terminal.
func (ui *CallUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

func (m *callModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.apply(negotiation.Status(msg))
		return m, m.listenForUpdates()

	case endedMsg:
		m.ended = string(msg)
		return m, m.listenForUpdates()
	}

	return m, nil
}

func (m *callModel) apply(st negotiation.Status) {
	prev := m.status.State
	m.status = st
	if st.State == negotiation.StateConnected && prev != negotiation.StateConnected {
		m.connectedAt = time.Now()
	}
	if st.State != negotiation.StateConnected {
		m.connectedAt = time.Time{}
	}

	// Round trip samples only refresh the header.
	if st.Err == nil && strings.HasPrefix(st.Text, "round trip") {
		return
	}

	m.events = append(m.events, event{at: time.Now(), text: st.Text, err: st.Err != nil})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m *callModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n%s Room %s  %s\n\n", IconRoom, BoldStyle.Render(m.room), StatusStyle.Render(m.status.State.String())))

	icon := m.spinner.View()
	switch {
	case m.status.Err != nil:
		icon = ErrorStyle.Render(IconError)
	case m.status.State == negotiation.StateConnected:
		icon = SuccessStyle.Render(IconSuccess)
	}
	b.WriteString(fmt.Sprintf("%s %s\n", icon, m.status.Text))
	if m.status.Err != nil {
		b.WriteString(MutedStyle.Render("  "+m.status.Err.Error()) + "\n")
	}

	var details []string
	if m.status.Peer != "" {
		details = append(details, fmt.Sprintf("%s %s", IconPeer, m.status.Peer))
	}
	if m.status.RTT > 0 {
		details = append(details, fmt.Sprintf("%s %s", IconTime, m.status.RTT.Round(time.Millisecond)))
	}
	if !m.connectedAt.IsZero() {
		details = append(details, fmt.Sprintf("%s %s", IconConnect, time.Since(m.connectedAt).Round(time.Second)))
	}
	if len(details) > 0 {
		b.WriteString(strings.Join(details, "   ") + "\n")
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, ev := range m.events {
			line := fmt.Sprintf("  %s %s", ev.at.Format("15:04:05"), ev.text)
			if ev.err {
				b.WriteString(WarningStyle.Render(line) + "\n")
			} else {
				b.WriteString(MutedStyle.Render(line) + "\n")
			}
		}
	}

	if m.ended != "" {
		b.WriteString("\n" + WarningStyle.Render(IconWarning+" "+m.ended) + "\n")
		b.WriteString(MutedStyle.Render("Press q to exit"))
		return b.String()
	}
	b.WriteString("\n" + MutedStyle.Render("Press q to hang up"))
	return b.String()
}
