// Package discovery implements C7, the route-discovery driver: the
// stack's "no route to destination D for packet P" upcall, and the
// single bounded RREQ retry spec.md §4.7 leaves as an optional design
// choice (resolved in DESIGN.md).
package discovery

import (
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"aodvv2/internal/engine"
	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/seqnum"
	"aodvv2/internal/store"
)

// ErrNotGlobalUnicast is returned by OnRouteNeeded when the requested
// destination isn't a global unicast address (spec.md §4.7 step 1).
var ErrNotGlobalUnicast = errors.New("discovery: destination is not global unicast")

// ErrNoRouterClient is returned when the packet's source doesn't match
// any configured Router Client; the core only originates discovery on
// behalf of its own clients (spec.md §4.7 step 2).
var ErrNoRouterClient = errors.New("discovery: source is not a router client")

// Config bounds the driver's retry policy (spec.md §6 defaults).
type Config struct {
	MaxHopCount      uint8
	RREQWaitTime     time.Duration
	RREQHolddownTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxHopCount == 0 {
		c.MaxHopCount = 64
	}
	if c.RREQWaitTime == 0 {
		c.RREQWaitTime = 2 * time.Second
	}
	if c.RREQHolddownTime == 0 {
		c.RREQHolddownTime = 10 * time.Second
	}
	return c
}

// pendingDiscovery tracks one destination's in-flight RREQ: whether
// the single retry has already been spent, and, once both attempts
// have timed out, the instant holddown lifts.
type pendingDiscovery struct {
	timer         *time.Timer
	retried       bool
	holddownUntil time.Time
}

// Driver is the route-discovery driver: it buffers packets that
// arrive with no route, issues an originating RREQ, and retries once
// before backing off for RREQHolddownTime.
type Driver struct {
	RCS       *store.RCS
	LRS       *store.LRS
	Buffers   *store.BufferSet
	SeqNum    *seqnum.Counter
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger

	cfg Config

	mu      sync.Mutex
	pending map[netip.Addr]*pendingDiscovery

	// Now overrides time.Now for tests; nil means use the real clock.
	Now func() time.Time
}

// New returns a Driver using cfg's retry policy, filling in spec.md §6
// defaults for any zero field.
func New(cfg Config, rcs *store.RCS, lrs *store.LRS, buffers *store.BufferSet, seq *seqnum.Counter, sched *scheduler.Scheduler, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		RCS:       rcs,
		LRS:       lrs,
		Buffers:   buffers,
		SeqNum:    seq,
		Scheduler: sched,
		Logger:    logger,
		cfg:       cfg.withDefaults(),
		pending:   make(map[netip.Addr]*pendingDiscovery),
	}
}

func (d *Driver) nowFn() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// OnRouteNeeded is the stack's "no route to D" upcall (spec.md §4.7,
// steps 1-6). src is the originating packet's source address, dst its
// destination, payload the packet bytes to hold until a route exists.
func (d *Driver) OnRouteNeeded(src, dst netip.Addr, payload []byte) error {
	if !isGlobalUnicast(dst) {
		return ErrNotGlobalUnicast
	}
	client, ok := d.RCS.LongestMatch(src)
	if !ok {
		return ErrNoRouterClient
	}
	if err := d.Buffers.Append(dst, payload); err != nil {
		return err
	}

	now := d.nowFn()
	d.mu.Lock()
	if p, exists := d.pending[dst]; exists {
		switch {
		case p.timer != nil:
			// Discovery already in flight; the new packet rides along
			// in the buffer for whenever the RREP arrives.
			d.mu.Unlock()
			return nil
		case now.Before(p.holddownUntil):
			d.mu.Unlock()
			return nil
		default:
			delete(d.pending, dst)
		}
	}
	d.mu.Unlock()

	d.startDiscovery(client, dst)
	return nil
}

func (d *Driver) startDiscovery(client *store.Client, dst netip.Addr) {
	d.sendRREQ(client, dst)

	entry := &pendingDiscovery{}
	entry.timer = time.AfterFunc(d.cfg.RREQWaitTime, func() { d.onTimeout(client, dst) })

	d.mu.Lock()
	d.pending[dst] = entry
	d.mu.Unlock()
}

// onTimeout fires RREQWaitTime after a RREQ was sent. If a route has
// since been discovered, the wait is over and bookkeeping is cleared.
// Otherwise this is either the single permitted retry, or — if the
// retry has already happened — the point where the destination enters
// holddown until RREQHolddownTime elapses (spec.md §4.7's retry Open
// Question, resolved in DESIGN.md).
func (d *Driver) onTimeout(client *store.Client, dst netip.Addr) {
	now := d.nowFn()

	d.mu.Lock()
	entry, ok := d.pending[dst]
	if !ok {
		d.mu.Unlock()
		return
	}
	if _, found := d.LRS.Find(dst, now); found {
		delete(d.pending, dst)
		d.mu.Unlock()
		return
	}
	if entry.retried {
		entry.timer = nil
		entry.holddownUntil = now.Add(d.cfg.RREQHolddownTime)
		d.mu.Unlock()
		return
	}
	entry.retried = true
	d.mu.Unlock()

	d.sendRREQ(client, dst)

	d.mu.Lock()
	if e, ok := d.pending[dst]; ok && e == entry {
		entry.timer = time.AfterFunc(d.cfg.RREQWaitTime, func() { d.onTimeout(client, dst) })
	}
	d.mu.Unlock()
}

func (d *Driver) sendRREQ(client *store.Client, dst netip.Addr) {
	now := d.nowFn()
	var targSeqNum uint16
	if route, ok := d.LRS.Find(dst, now); ok {
		targSeqNum = route.SeqNum
	}
	origSeqNum := d.SeqNum.New()
	hopLimit := d.cfg.MaxHopCount

	err := d.Scheduler.Enqueue(scheduler.Job{
		Priority: scheduler.PriorityRREQ,
		Selector: rfc5444.AllTargets(),
		Build: func() (rfc5444.Message, error) {
			return engine.BuildRREQ(hopLimit, client, dst, origSeqNum, targSeqNum)
		},
	})
	if err != nil && d.Logger != nil {
		d.Logger.Warn("discovery: failed to send rreq", "dst", dst, "error", err)
	}
}

func isGlobalUnicast(a netip.Addr) bool {
	return a.IsValid() && !a.IsUnspecified() && !a.IsLoopback() &&
		!a.IsLinkLocalUnicast() && !a.IsLinkLocalMulticast() && !a.IsMulticast()
}
