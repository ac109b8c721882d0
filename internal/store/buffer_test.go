package store

import (
	"net/netip"
	"testing"
)

func TestBufferAppendAndDispatchMatching(t *testing.T) {
	s := NewBufferSet(4)
	inside := netip.MustParseAddr("2001:db8::1")
	outside := netip.MustParseAddr("2001:db9::1")

	if err := s.Append(inside, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(outside, []byte("b")); err != nil {
		t.Fatal(err)
	}

	pfx := netip.MustParsePrefix("2001:db8::/32")
	dispatched := s.DispatchMatching(pfx)
	if len(dispatched) != 1 || dispatched[0].Dst != inside {
		t.Fatalf("got %+v", dispatched)
	}
	if s.Len() != 1 {
		t.Fatalf("got %d remaining, want 1", s.Len())
	}
}

func TestBufferAppendFailsWhenFull(t *testing.T) {
	s := NewBufferSet(1)
	addr := netip.MustParseAddr("2001:db8::1")
	if err := s.Append(addr, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(addr, nil); !IsNoSpace(err) {
		t.Fatalf("got %v, want ENOSPC", err)
	}
}
