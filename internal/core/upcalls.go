package core

import "net/netip"

// OnUDPRecv is the stack's "a MANET packet arrived" upcall (spec.md
// §6). In practice internal/transport.Conn.Run already calls
// c.Reader.HandlePacket directly as it pumps the socket; this method
// exists so a stack that owns its own receive loop (a test harness,
// or a future non-UDP carrier) can still drive the core through the
// same named entry point spec.md documents.
func (c *Aodvv2Core) OnUDPRecv(src netip.Addr, iface int, payload []byte) error {
	return c.Reader.HandlePacket(payload, src, iface)
}

// OnRouteNeeded is the stack's "no route to dst for this packet"
// upcall (spec.md §4.7, §6). src is the packet's originating Router
// Client address.
func (c *Aodvv2Core) OnRouteNeeded(src, dst netip.Addr, payload []byte) error {
	return c.Discovery.OnRouteNeeded(src, dst, payload)
}
