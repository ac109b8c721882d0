//go:build linux

package fib

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/vishvananda/netlink"
)

// installRoute adds or replaces the kernel route for prefix via
// iface's ifindex (the numeric string internal/engine's ifaceKey
// produces). Protocol is tagged RTPROT_STATIC's usual successor,
// RTPROT_BOOT-adjacent daemon protocol numbers being reserved
// upstream, so this adapter just leaves Protocol unset and lets the
// kernel default it.
func installRoute(prefix netip.Prefix, nextHop netip.Addr, iface string) error {
	ifIndex, err := strconv.Atoi(iface)
	if err != nil {
		return fmt.Errorf("fib: bad iface key %q: %w", iface, err)
	}
	route := &netlink.Route{
		LinkIndex: ifIndex,
		Dst:       prefixToIPNet(prefix),
		Gw:        net.IP(nextHop.AsSlice()),
	}
	return netlink.RouteReplace(route)
}

// removeRoute withdraws the kernel route previously installed for
// prefix via nextHop/iface.
func removeRoute(prefix netip.Prefix, nextHop netip.Addr, iface string) error {
	ifIndex, err := strconv.Atoi(iface)
	if err != nil {
		return fmt.Errorf("fib: bad iface key %q: %w", iface, err)
	}
	route := &netlink.Route{
		LinkIndex: ifIndex,
		Dst:       prefixToIPNet(prefix),
		Gw:        net.IP(nextHop.AsSlice()),
	}
	return netlink.RouteDel(route)
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}
