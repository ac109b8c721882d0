package store

import (
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"
)

// Client is a router client: a prefix this router originates route
// requests for, plus the metric cost added to self-originated RREQs.
type Client struct {
	Addr   netip.Addr
	PfxLen int
	Cost   uint8
}

// RCS is the Router Client Set: bounded, duplicate-free under
// (addr, pfx_len) equality, looked up either by exact prefix or by
// longest-matching-prefix.
type RCS struct {
	mu       sync.Mutex
	table    bart.Table[*Client]
	capacity int
}

// NewRCS returns an empty RCS bounded to capacity entries.
func NewRCS(capacity int) *RCS {
	return &RCS{capacity: capacity}
}

// Alloc finds the client at (addr, pfxLen) or creates one with the
// given cost. Returns ENOSPC if the set is full and no matching entry
// exists.
func (s *RCS) Alloc(addr netip.Addr, pfxLen int, cost uint8) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pfx := netip.PrefixFrom(addr, pfxLen).Masked()
	if c, ok := s.table.Get(pfx); ok {
		return c, nil
	}
	if s.table.Size() >= s.capacity {
		return nil, newOpError("rcs", "alloc", ENOSPC)
	}
	c := &Client{Addr: addr, PfxLen: pfxLen, Cost: cost}
	s.table.Insert(pfx, c)
	return c, nil
}

// Find returns the client at the exact prefix (addr, pfxLen).
func (s *RCS) Find(addr netip.Addr, pfxLen int) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Get(netip.PrefixFrom(addr, pfxLen).Masked())
}

// LongestMatch returns the client whose prefix is the longest match
// containing ip.
func (s *RCS) LongestMatch(ip netip.Addr) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Lookup(ip)
}

// Remove deletes the client at (addr, pfxLen). Returns ENOENT if no
// such client exists.
func (s *RCS) Remove(addr netip.Addr, pfxLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pfx := netip.PrefixFrom(addr, pfxLen).Masked()
	if _, ok := s.table.GetAndDelete(pfx); !ok {
		return newOpError("rcs", "remove", ENOENT)
	}
	return nil
}

// All returns every client currently in the set.
func (s *RCS) All() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, s.table.Size())
	for _, c := range s.table.All() {
		out = append(out, c)
	}
	return out
}

// Len reports the number of clients currently stored.
func (s *RCS) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Size()
}
