package store

import (
	"net/netip"
	"sync"
)

// BufferedPacket is an opaque outbound packet held until a route to
// its destination is discovered.
type BufferedPacket struct {
	Dst     netip.Addr
	Payload []byte
}

// BufferSet is the buffered-packet set. There is no per-packet
// timeout: entries leave only via successful dispatch or because the
// set was full when a new packet arrived.
type BufferSet struct {
	mu       sync.Mutex
	entries  []BufferedPacket
	capacity int
}

// NewBufferSet returns an empty BufferSet bounded to capacity packets.
func NewBufferSet(capacity int) *BufferSet {
	return &BufferSet{capacity: capacity}
}

// Append buffers payload for dst. Returns ENOSPC if the set is full.
func (s *BufferSet) Append(dst netip.Addr, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= s.capacity {
		return newOpError("buffer", "append", ENOSPC)
	}
	s.entries = append(s.entries, BufferedPacket{Dst: dst, Payload: payload})
	return nil
}

// DispatchMatching removes and returns every buffered packet whose
// destination falls under pfx, for release to the stack once a route
// to pfx becomes available.
func (s *BufferSet) DispatchMatching(pfx netip.Prefix) []BufferedPacket {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []BufferedPacket
	kept := s.entries[:0]
	for _, p := range s.entries {
		if pfx.Contains(p.Dst) {
			matched = append(matched, p)
		} else {
			kept = append(kept, p)
		}
	}
	s.entries = kept
	return matched
}

// Len reports the number of packets currently buffered.
func (s *BufferSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
