// Package tui is the operator's live view of the core's set stores
// and queue, filling in the real bubbletea.Model the teacher's main.go
// calls (lib.NewModel) but lib/display.go never actually defines.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aodvv2/internal/core"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type tickMsg time.Time

// Model is a tea.Model rendering the core's routes and neighbors as
// two bubbles/table tables, refreshed every interval.
type Model struct {
	snapshot func() core.Snapshot
	interval time.Duration

	routes    table.Model
	neighbors table.Model
	quitting  bool
	last      core.Snapshot
}

// NewModel returns a Model polling snapshot every interval.
func NewModel(snapshot func() core.Snapshot, interval time.Duration) Model {
	routes := table.New(
		table.WithColumns([]table.Column{
			{Title: "Prefix", Width: 24},
			{Title: "Next Hop", Width: 20},
			{Title: "Iface", Width: 6},
			{Title: "Metric", Width: 7},
			{Title: "SeqNum", Width: 7},
			{Title: "State", Width: 11},
		}),
		table.WithFocused(false),
		table.WithHeight(8),
	)

	neighbors := table.New(
		table.WithColumns([]table.Column{
			{Title: "Address", Width: 24},
			{Title: "Iface", Width: 6},
			{Title: "State", Width: 12},
		}),
		table.WithFocused(false),
		table.WithHeight(6),
	)

	return Model{snapshot: snapshot, interval: interval, routes: routes, neighbors: neighbors}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		snap := m.snapshot()
		m.routes.SetRows(routeRows(snap))
		m.neighbors.SetRows(neighborRows(snap))
		m.last = snap
		return m, m.tick()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	out := headerStyle.Render("AODVv2 — Local Route Set") + "\n"
	out += m.routes.View() + "\n\n"
	out += headerStyle.Render("Neighbor Set") + "\n"
	out += m.neighbors.View() + "\n\n"
	out += dimStyle.Render(fmt.Sprintf(
		"router clients: %d  multicast msgs: %d  buffered packets: %d  queue depth: %d  own seqnum: %d",
		m.last.RouterClients, m.last.McMsgs, m.last.Buffered, m.last.QueueDepth, m.last.OwnSeqNum,
	)) + "\n"
	out += dimStyle.Render("press q to quit")
	return out
}

func routeRows(snap core.Snapshot) []table.Row {
	rows := make([]table.Row, len(snap.Routes))
	for i, r := range snap.Routes {
		rows[i] = table.Row{
			r.Prefix,
			r.NextHop,
			r.Iface,
			fmt.Sprintf("%d", r.Metric),
			fmt.Sprintf("%d", r.SeqNum),
			r.State,
		}
	}
	return rows
}

func neighborRows(snap core.Snapshot) []table.Row {
	rows := make([]table.Row, len(snap.Neighbors))
	for i, n := range snap.Neighbors {
		rows[i] = table.Row{n.Addr, n.Iface, n.State}
	}
	return rows
}
