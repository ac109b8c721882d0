//go:build !linux

package fib

import "net/netip"

// installRoute and removeRoute have no real forwarding table to touch
// outside Linux (vishvananda/netlink is Linux-only). Manager still
// tracks lifetimes, so the rest of the core — and
// its tests — can run unmodified on any platform.
func installRoute(prefix netip.Prefix, nextHop netip.Addr, iface string) error {
	return nil
}

func removeRoute(prefix netip.Prefix, nextHop netip.Addr, iface string) error {
	return nil
}
