// Package fib adapts the core's fib_add/fib_del downcalls (spec.md §6)
// onto the host's real forwarding table. The engine depends only on
// the narrow interface it declares on Stack; this package supplies the
// concrete implementation plus a lifetime-expiry sweep, since the
// kernel has no native concept of a route TTL.
package fib

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"
)

// entry tracks one FIB-resident route so Sweep can expire it
// without the engine needing to hold a second timer per route.
type entry struct {
	nextHop netip.Addr
	iface   string
	expires time.Time
}

// Manager owns the adapter's bookkeeping (which prefixes it installed,
// and when each one should be withdrawn) and delegates the actual
// netlink syscalls to the platform-specific installRoute/removeRoute
// pair (netlink.go on Linux, noop.go elsewhere).
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[netip.Prefix]*entry
}

// NewManager returns a Manager that logs with logger, or the default
// logger if nil.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, entries: make(map[netip.Prefix]*entry)}
}

// Add installs or replaces the kernel route for prefix (fib_add).
// lifetime is advisory to this adapter only: the kernel route carries
// no expiry of its own, so Sweep must be called periodically to
// withdraw routes past their lifetime.
func (m *Manager) Add(prefix netip.Prefix, nextHop netip.Addr, iface string, lifetime time.Duration) {
	if err := installRoute(prefix, nextHop, iface); err != nil {
		m.logger.Warn("fib: failed to install route", "prefix", prefix, "next_hop", nextHop, "iface", iface, "err", err)
		return
	}
	m.mu.Lock()
	m.entries[prefix] = &entry{nextHop: nextHop, iface: iface, expires: time.Now().Add(lifetime)}
	m.mu.Unlock()
}

// Del withdraws the kernel route for prefix (fib_del). Safe to call
// for a prefix that was never installed.
func (m *Manager) Del(prefix netip.Prefix) {
	m.mu.Lock()
	e, ok := m.entries[prefix]
	delete(m.entries, prefix)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := removeRoute(prefix, e.nextHop, e.iface); err != nil {
		m.logger.Warn("fib: failed to remove route", "prefix", prefix, "err", err)
	}
}

// Sweep withdraws every route whose lifetime has elapsed as of now. It
// is the adapter-side counterpart of the Local Route Set's own idle
// sweep (store.LRS.DrainDeactivated) — the LRS marks a route Invalid
// and the engine's RERR path calls Del directly, but a route can also
// simply age out in the kernel without ever triggering a link-break,
// so this catches that case independently.
func (m *Manager) Sweep(now time.Time) {
	var expired []netip.Prefix
	m.mu.Lock()
	for pfx, e := range m.entries {
		if now.After(e.expires) {
			expired = append(expired, pfx)
		}
	}
	m.mu.Unlock()

	for _, pfx := range expired {
		m.Del(pfx)
	}
}

// Run drains expired routes every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
