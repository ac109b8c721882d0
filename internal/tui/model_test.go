package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"aodvv2/internal/core"
)

func TestUpdateOnTickRefreshesRows(t *testing.T) {
	snap := core.Snapshot{
		Routes:        []core.RouteRow{{Prefix: "2001:db8::/64", NextHop: "fe80::1", Iface: "1", State: "ACTIVE"}},
		Neighbors:     []core.NeighborRow{{Addr: "fe80::1", Iface: "1", State: "CONFIRMED"}},
		RouterClients: 1,
		QueueDepth:    2,
	}
	m := NewModel(func() core.Snapshot { return snap }, time.Millisecond)

	updated, cmd := m.Update(tickMsg(time.Now()))
	got := updated.(Model)

	if len(got.routes.Rows()) != 1 {
		t.Fatalf("got %d route rows, want 1", len(got.routes.Rows()))
	}
	if len(got.neighbors.Rows()) != 1 {
		t.Fatalf("got %d neighbor rows, want 1", len(got.neighbors.Rows()))
	}
	if cmd == nil {
		t.Fatal("got nil cmd after tick, want another tick scheduled")
	}
}

func TestUpdateOnQuitKeySetsQuitting(t *testing.T) {
	m := NewModel(func() core.Snapshot { return core.Snapshot{} }, time.Second)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	got := updated.(Model)

	if !got.quitting {
		t.Fatal("got quitting=false after 'q', want true")
	}
	if cmd == nil {
		t.Fatal("got nil cmd after quit key, want tea.Quit")
	}
	if got.View() != "" {
		t.Errorf("got non-empty View() while quitting, want empty")
	}
}
