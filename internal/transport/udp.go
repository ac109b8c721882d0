// Package transport implements the core's UDP carrier: spec.md §6's
// MANET wire (UDP port 269, link-local multicast group ff02::6d,
// "LL-MANET-Routers"). It is the concrete rfc5444.Transport the core
// is handed, and the source of the on_udp_recv upcall.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/net/ipv6"

	"aodvv2/internal/rfc5444"
)

// Port is the MANET UDP port (spec.md §6).
const Port = 269

// MulticastGroup is LL-MANET-Routers (spec.md §6).
const MulticastGroup = "ff02::6d"

// Config selects which interfaces join the MANET multicast group.
type Config struct {
	// Interfaces restricts the join to these interface names. Empty
	// means every up, multicast-capable interface.
	Interfaces []string
	Logger     *slog.Logger
}

// Conn is a bound MANET socket: an rfc5444.Transport for egress, and
// an inbound packet pump for ingress.
type Conn struct {
	pc     *ipv6.PacketConn
	logger *slog.Logger
	joined []*net.Interface
}

// Listen opens the MANET UDP socket and joins ff02::6d on cfg's
// interfaces (or every eligible one). Grounded on the teacher's
// lib/ndp_listener.go ICMPv6 socket setup, adapted for UDP and
// multicast group membership the way
// other_examples/8a4ed62d_Brightgate-product's relay.go joins mDNS/SSDP
// groups per interface with (*ipv6.PacketConn).JoinGroup.
func Listen(cfg Config) (*Conn, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp6: %w", err)
	}

	pc := ipv6.NewPacketConn(c)
	if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		cfg.Logger.Warn("failed to enable ipv6 control messages; continuing", "err", err)
	}

	joined, err := joinInterfaces(pc, cfg.Interfaces, cfg.Logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	return &Conn{pc: pc, logger: cfg.Logger, joined: joined}, nil
}

func joinInterfaces(pc *ipv6.PacketConn, names []string, logger *slog.Logger) ([]*net.Interface, error) {
	var candidates []*net.Interface
	if len(names) == 0 {
		all, err := net.Interfaces()
		if err != nil {
			return nil, fmt.Errorf("transport: list interfaces: %w", err)
		}
		for i := range all {
			ifi := all[i]
			if ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagUp == 0 {
				continue
			}
			candidates = append(candidates, &ifi)
		}
	} else {
		for _, name := range names {
			ifi, err := net.InterfaceByName(name)
			if err != nil {
				logger.Warn("interface not found; skipping", "iface", name, "err", err)
				continue
			}
			candidates = append(candidates, ifi)
		}
	}

	group := &net.UDPAddr{IP: net.ParseIP(MulticastGroup)}
	joined := make([]*net.Interface, 0, len(candidates))
	for _, ifi := range candidates {
		if err := pc.JoinGroup(ifi, group); err != nil {
			logger.Warn("failed to join MANET multicast group", "iface", ifi.Name, "err", err)
			continue
		}
		logger.Info("joined MANET multicast group", "iface", ifi.Name, "ifindex", ifi.Index)
		joined = append(joined, ifi)
	}
	if len(joined) == 0 {
		return nil, errors.New("transport: no interface joined " + MulticastGroup)
	}
	return joined, nil
}

// Send implements rfc5444.Transport. iface is the numeric ifindex
// string produced by internal/engine's ifaceKey.
func (c *Conn) Send(dst netip.Addr, iface string, payload []byte) error {
	ifIndex, err := strconv.Atoi(iface)
	if err != nil {
		return fmt.Errorf("transport: bad iface key %q: %w", iface, err)
	}
	cm := &ipv6.ControlMessage{IfIndex: ifIndex}
	addr := &net.UDPAddr{IP: net.IP(dst.AsSlice()), Port: Port, Zone: dst.Zone()}
	_, err = c.pc.WriteTo(payload, cm, addr)
	return err
}

// Run reads inbound MANET packets until ctx is cancelled, handing each
// to reader.HandlePacket (spec.md §6: "on_udp_recv(src, iface, bytes)
// -> RFC 5444 parse entry point"). Deadline/retry loop lifted from the
// teacher's ndp_listener.go Run method.
func (c *Conn) Run(ctx context.Context, reader *rfc5444.Reader) error {
	buf := make([]byte, 64*1024)
	const readTimeout = 800 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = c.pc.SetReadDeadline(time.Now().Add(readTimeout))
		n, cm, src, err := c.pc.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transport: read: %w", err)
		}

		srcAddr, ok := srcAddrFrom(src)
		if !ok {
			continue
		}
		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}

		if err := reader.HandlePacket(buf[:n], srcAddr, ifIndex); err != nil {
			c.logger.Warn("failed to handle inbound packet", "src", srcAddr, "err", err)
		}
	}
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.pc.Close()
}

// Interfaces returns the interfaces that joined the MANET multicast
// group, so a caller can register ff02::6d as an RFC 5444 writer
// target on each one.
func (c *Conn) Interfaces() []*net.Interface {
	return c.joined
}

func srcAddrFrom(a net.Addr) (netip.Addr, bool) {
	udpAddr, ok := a.(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
