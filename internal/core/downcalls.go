package core

import (
	"net/netip"
	"time"

	"aodvv2/internal/fib"
)

// stackAdapter is the concrete engine.Stack the message engine is
// handed: it fans the engine's downcalls out to the FIB manager and
// the injected ICMP/forwarder adapters.
type stackAdapter struct {
	fib       *fib.Manager
	icmp      ICMPSender
	forwarder PacketForwarder
}

func (s stackAdapter) SendDstUnreachableMetricMismatch(src netip.Addr, iface string) {
	s.icmp.SendDstUnreachableMetricMismatch(src, iface)
}

func (s stackAdapter) FIBAdd(prefix netip.Prefix, nextHop netip.Addr, iface string, lifetime time.Duration) {
	s.fib.Add(prefix, nextHop, iface, lifetime)
}

func (s stackAdapter) FIBDel(prefix netip.Prefix) {
	s.fib.Del(prefix)
}

// ForwardPacket hands one buffered packet for dst to the forwarder.
// The engine calls it once per packet it drains from the buffer when a
// route becomes usable (spec.md §4.5's "dispatch all buffered packets"
// step).
func (s stackAdapter) ForwardPacket(dst netip.Addr, payload []byte) {
	s.forwarder.Forward(dst, payload)
}
