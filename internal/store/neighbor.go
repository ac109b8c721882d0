package store

import (
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"aodvv2/internal/seqnum"
)

// NeighborState is a neighbor's position in the HEARD / CONFIRMED /
// BLACKLISTED lifecycle.
type NeighborState int

const (
	Heard NeighborState = iota
	Confirmed
	Blacklisted
)

func (s NeighborState) String() string {
	switch s {
	case Heard:
		return "HEARD"
	case Confirmed:
		return "CONFIRMED"
	case Blacklisted:
		return "BLACKLISTED"
	default:
		return "UNKNOWN"
	}
}

// Neighbor is one (link-local address, interface) pair we have heard
// an RFC 5444 packet from.
type Neighbor struct {
	Addr  netip.Addr
	Iface string

	State NeighborState
	// Timeout is the ack-wait deadline while State==Heard with a
	// pending request, or the blacklist-expiry while State==Blacklisted.
	// Zero means no timeout pending.
	Timeout time.Time

	// AckSeqNum is the TIMESTAMP value expected back on the next
	// outstanding RREP_Ack request.
	AckSeqNum uint16
	// HeardRerrSeqNum is the last RERR timestamp accepted from this
	// neighbor, guarding against RERR replay.
	HeardRerrSeqNum uint16
}

type neighborKey struct {
	addr  netip.Addr
	iface string
}

// NeighborSet is the bounded table of known neighbors.
type NeighborSet struct {
	mu           sync.Mutex
	entries      map[neighborKey]*Neighbor
	capacity     int
	maxBlacklist time.Duration
	rng          *rand.Rand
}

// NewNeighborSet returns an empty NeighborSet bounded to capacity
// entries; maxBlacklist is MAX_BLACKLIST_TIME.
func NewNeighborSet(capacity int, maxBlacklist time.Duration) *NeighborSet {
	return &NeighborSet{
		entries:      make(map[neighborKey]*Neighbor),
		capacity:     capacity,
		maxBlacklist: maxBlacklist,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ageLocked applies lazy state transitions for n as of now:
// HEARD-with-elapsed-ack-timeout -> BLACKLISTED,
// BLACKLISTED-with-elapsed-expiry -> HEARD.
func (s *NeighborSet) ageLocked(n *Neighbor, now time.Time) {
	if n.Timeout.IsZero() || now.Before(n.Timeout) {
		return
	}
	switch n.State {
	case Heard:
		n.State = Blacklisted
		n.Timeout = now.Add(s.maxBlacklist)
	case Blacklisted:
		n.State = Heard
		n.Timeout = time.Time{}
	}
}

// Alloc finds the neighbor at (addr, iface) or creates one in state
// HEARD with a random initial ack sequence number. Returns ENOSPC if
// the set is full and no matching entry exists.
func (s *NeighborSet) Alloc(addr netip.Addr, iface string, now time.Time) (*Neighbor, error) {
	n, _, err := s.Observe(addr, iface, now)
	return n, err
}

// Observe finds or creates the neighbor at (addr, iface), reporting
// whether it was just created so the caller can solicit an RREP_Ack
// to confirm the link is bidirectional before trusting routes heard
// through a neighbor it has never seen before (spec.md §3's "created
// on first sighting in HEARD").
func (s *NeighborSet) Observe(addr netip.Addr, iface string, now time.Time) (n *Neighbor, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := neighborKey{addr, iface}
	if n, ok := s.entries[k]; ok {
		s.ageLocked(n, now)
		return n, false, nil
	}
	if len(s.entries) >= s.capacity {
		return nil, false, newOpError("neighbor", "alloc", ENOSPC)
	}
	n = &Neighbor{Addr: addr, Iface: iface, State: Heard, AckSeqNum: uint16(s.rng.Intn(1 << 16))}
	s.entries[k] = n
	return n, true, nil
}

// Find returns the neighbor at (addr, iface), aged as of now.
func (s *NeighborSet) Find(addr netip.Addr, iface string, now time.Time) (*Neighbor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entries[neighborKey{addr, iface}]
	if ok {
		s.ageLocked(n, now)
	}
	return n, ok
}

// IsBlacklisted reports whether the neighbor at (addr, iface) is
// currently blacklisted, aged as of now. An unknown neighbor is not
// blacklisted.
func (s *NeighborSet) IsBlacklisted(addr netip.Addr, iface string, now time.Time) bool {
	n, ok := s.Find(addr, iface, now)
	return ok && n.State == Blacklisted
}

// SetHeard clears a neighbor's timeout and moves it to HEARD,
// allocating the neighbor if it doesn't exist. If reqAck is true, it
// additionally records a pending RREP_Ack request (timestamp
// ackSeqNum, deadline now+ackSentTimeout) and reports that the caller
// must emit that request through the scheduler.
func (s *NeighborSet) SetHeard(addr netip.Addr, iface string, reqAck bool, ackSeqNum uint16, now time.Time, ackSentTimeout time.Duration) (*Neighbor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := neighborKey{addr, iface}
	n, ok := s.entries[k]
	if !ok {
		if len(s.entries) >= s.capacity {
			return nil, false, newOpError("neighbor", "set_heard", ENOSPC)
		}
		n = &Neighbor{Addr: addr, Iface: iface}
		s.entries[k] = n
	}

	n.State = Heard
	n.Timeout = time.Time{}
	if reqAck {
		n.AckSeqNum = ackSeqNum
		n.Timeout = now.Add(ackSentTimeout)
	}
	return n, reqAck, nil
}

// ReceiveAck processes an RREP_Ack reply (ackreq==0). A reply whose
// TIMESTAMP matches the neighbor's stored AckSeqNum while HEARD with a
// pending timeout moves it to CONFIRMED and clears the timeout,
// reporting true. Any other reply increments AckSeqNum (to invalidate
// a replay of the old value) and reports false.
func (s *NeighborSet) ReceiveAck(addr netip.Addr, iface string, timestamp uint16, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.entries[neighborKey{addr, iface}]
	if !ok {
		return false
	}
	s.ageLocked(n, now)
	if n.State == Heard && !n.Timeout.IsZero() && n.AckSeqNum == timestamp {
		n.State = Confirmed
		n.Timeout = time.Time{}
		return true
	}
	n.AckSeqNum++
	return false
}

// ReceiveAckRequest processes an RREP_Ack request (ackreq!=0) from a
// neighbor: the neighbor's AckSeqNum is set to timestamp so the
// caller can echo it straight back with ACKREQ=0.
func (s *NeighborSet) ReceiveAckRequest(addr netip.Addr, iface string, timestamp uint16, now time.Time) (*Neighbor, error) {
	n, err := s.Alloc(addr, iface, now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	n.AckSeqNum = timestamp
	s.mu.Unlock()
	return n, nil
}

// AcceptRerr reports whether a RERR from (addr, iface) carrying
// timestamp seqNum is newer than the last one accepted from that
// neighbor, recording it as the new high-water mark if so
// (HeardRerrSeqNum, spec.md §3's replay guard). The first RERR heard
// from a neighbor is always accepted.
func (s *NeighborSet) AcceptRerr(addr netip.Addr, iface string, seqNum uint16, now time.Time) bool {
	n, _, err := s.Observe(addr, iface, now)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n.HeardRerrSeqNum != 0 && !seqnum.Newer(seqNum, n.HeardRerrSeqNum) {
		return false
	}
	n.HeardRerrSeqNum = seqNum
	return true
}

// All returns every neighbor currently stored, aged as of now.
func (s *NeighborSet) All(now time.Time) []*Neighbor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Neighbor, 0, len(s.entries))
	for _, n := range s.entries {
		s.ageLocked(n, now)
		out = append(out, n)
	}
	return out
}
