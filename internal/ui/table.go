package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Pairlink/internal/coordinator"
)

// RoomsView renders coordinator occupancy as a table.
func RoomsView(stats coordinator.Stats) string {
	if len(stats.Occupancy) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Color.Header = text.Colors{text.Bold, text.FgCyan}
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(prettytable.Row{"#", "Room", "Members", "Status"})

	for i, o := range stats.Occupancy {
		status := "waiting"
		if o.Count >= 2 {
			status = "paired"
		}
		t.AppendRow(prettytable.Row{i + 1, o.Room, fmt.Sprintf("%d/2", o.Count), status})
	}

	t.AppendFooter(prettytable.Row{"", fmt.Sprintf("%d rooms", stats.Rooms), fmt.Sprintf("%d", stats.Members), ""})
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignCenter, AlignFooter: text.AlignCenter},
	})

	return t.Render()
}

func RenderRooms(stats coordinator.Stats) {
	fmt.Println(RoomsView(stats))
}

// SessionSummary is shown after a call ends.
type SessionSummary struct {
	Room     string
	Peer     string
	Duration time.Duration
	RTT      time.Duration
	Result   string
}

func SessionSummaryView(summary SessionSummary) string {
	peer := summary.Peer
	if peer == "" {
		peer = "-"
	}
	rtt := "-"
	if summary.RTT > 0 {
		rtt = summary.RTT.Round(time.Millisecond).String()
	}

	rows := [][]string{
		{"Room", summary.Room},
		{"Peer", peer},
		{"Duration", summary.Duration.Round(time.Second).String()},
		{"Last RTT", rtt},
		{"Result", summary.Result},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderSessionSummary(summary SessionSummary) {
	fmt.Println(SessionSummaryView(summary))
}

// SessionInfo describes the call before it starts.
type SessionInfo struct {
	Room      string
	Name      string
	Server    string
	RelayOnly bool
	AutoRelay bool
}

func (s SessionInfo) View() string {
	transport := "direct or relayed"
	switch {
	case s.AutoRelay:
		transport = "relay only (restrictive network detected)"
	case s.RelayOnly:
		transport = "relay only"
	}

	content := fmt.Sprintf("%s Room:       %s\n%s You:        %s\n%s Server:     %s\n%s Transport:  %s",
		IconRoom, BoldStyle.Foreground(Primary).Render(s.Room),
		IconPeer, s.Name,
		IconWeb, MutedStyle.Render(s.Server),
		IconLock, transport,
	)
	return InfoBoxStyle.Render(content)
}

func RenderSessionInfo(info SessionInfo) {
	fmt.Println(info.View())
}
