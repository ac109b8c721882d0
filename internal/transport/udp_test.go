package transport

import (
	"net"
	"net/netip"
	"testing"
)

func TestSrcAddrFromUDPAddr(t *testing.T) {
	want := netip.MustParseAddr("fe80::1")
	addr, ok := srcAddrFrom(&net.UDPAddr{IP: net.ParseIP("fe80::1")})
	if !ok {
		t.Fatal("got ok=false, want true")
	}
	if addr != want {
		t.Errorf("got %v, want %v", addr, want)
	}
}

func TestSrcAddrFromRejectsNonUDPAddr(t *testing.T) {
	if _, ok := srcAddrFrom(&net.IPAddr{IP: net.ParseIP("fe80::1")}); ok {
		t.Error("got ok=true for a non-*net.UDPAddr, want false")
	}
}

func TestConnSendRejectsNonNumericIface(t *testing.T) {
	c := &Conn{}
	err := c.Send(netip.MustParseAddr("fe80::1"), "eth0", []byte("x"))
	if err == nil {
		t.Fatal("got nil error for a non-numeric iface key, want an error")
	}
}
