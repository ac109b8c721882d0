package core

import "time"

// RouteRow is one Local Route Set entry as the operator view renders
// it: just the fields worth a column, not the full store.Route.
type RouteRow struct {
	Prefix   string
	NextHop  string
	Iface    string
	Metric   uint32
	SeqNum   uint16
	State    string
	LastUsed time.Time
}

// NeighborRow is one Neighbor Set entry for display.
type NeighborRow struct {
	Addr    string
	Iface   string
	State   string
	Timeout time.Time
}

// Snapshot is a read-only view of the core's set stores and queue
// depth, refreshed on demand by internal/tui rather than pushed.
type Snapshot struct {
	Routes    []RouteRow
	Neighbors []NeighborRow

	RouterClients int
	McMsgs        int
	Buffered      int
	QueueDepth    int
	OwnSeqNum     uint16
}

// Snapshot renders the current state of every set store. It takes
// each store's own lock in turn (via All/Len), so it is safe to call
// from the TUI's own goroutine while the engine runs concurrently.
func (c *Aodvv2Core) Snapshot() Snapshot {
	now := time.Now()

	routes := c.LRS.All(now)
	routeRows := make([]RouteRow, len(routes))
	for i, r := range routes {
		routeRows[i] = RouteRow{
			Prefix:   r.Prefix.String(),
			NextHop:  r.NextHop.String(),
			Iface:    r.Iface,
			Metric:   r.Metric,
			SeqNum:   r.SeqNum,
			State:    r.State.String(),
			LastUsed: r.LastUsed,
		}
	}

	neighbors := c.Neighbors.All(now)
	neighborRows := make([]NeighborRow, len(neighbors))
	for i, n := range neighbors {
		neighborRows[i] = NeighborRow{
			Addr:    n.Addr.String(),
			Iface:   n.Iface,
			State:   n.State.String(),
			Timeout: n.Timeout,
		}
	}

	return Snapshot{
		Routes:        routeRows,
		Neighbors:     neighborRows,
		RouterClients: c.RCS.Len(),
		McMsgs:        c.McMsgs.Len(),
		Buffered:      c.Buffers.Len(),
		QueueDepth:    c.Scheduler.Len(),
		OwnSeqNum:     c.SeqNum.Current(),
	}
}
