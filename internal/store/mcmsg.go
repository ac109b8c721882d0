package store

import (
	"net/netip"
	"sync"
	"time"

	"aodvv2/internal/metric"
	"aodvv2/internal/seqnum"
)

// Verdict is the outcome of feeding an incoming RREQ through the
// Multicast Message Set.
type Verdict int

const (
	OK Verdict = iota
	Redundant
)

// McMsg is a remembered RREQ, used for duplicate suppression.
type McMsg struct {
	OrigPrefix  netip.Prefix
	TargPrefix  netip.Prefix
	OrigSeqNum  uint16
	TargSeqNum  uint16
	MetricType  metric.Type
	Metric      uint32
	SeqNoRtr    uint16
	Iface       string
	Timestamp   time.Time
	RemovalTime time.Time
}

// compatible reports whether a and b describe requests for the same
// (OrigPrefix, TargPrefix, MetricType) triple.
func compatible(a, b *McMsg) bool {
	return a.OrigPrefix == b.OrigPrefix && a.TargPrefix == b.TargPrefix && a.MetricType == b.MetricType
}

// comparable reports whether a and b are compatible and also share a
// SeqNoRtr, identifying the same request instance.
func comparableMsgs(a, b *McMsg) bool {
	return compatible(a, b) && a.SeqNoRtr == b.SeqNoRtr
}

// McMsgSet is the Multicast Message Set.
type McMsgSet struct {
	mu       sync.Mutex
	entries  []*McMsg
	capacity int
	lifetime time.Duration
}

// NewMcMsgSet returns an empty McMsgSet bounded to capacity entries,
// with lifetime MAX_SEQNUM_LIFETIME.
func NewMcMsgSet(capacity int, lifetime time.Duration) *McMsgSet {
	return &McMsgSet{capacity: capacity, lifetime: lifetime}
}

func (s *McMsgSet) reapLocked(now time.Time) {
	kept := s.entries[:0]
	for _, m := range s.entries {
		if now.Before(m.RemovalTime) {
			kept = append(kept, m)
		}
	}
	s.entries = kept
}

// Process runs incoming through duplicate suppression: if no
// comparable entry exists, incoming is recorded and OK is returned.
// Otherwise, incoming is REDUNDANT if it is no fresher (by SeqNum) or
// not strictly cheaper at equal freshness; otherwise the existing
// entry is refreshed and checked against every other compatible,
// non-stale entry — if any of those is no worse, incoming is still
// REDUNDANT.
func (s *McMsgSet) Process(incoming McMsg, now time.Time) Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(now)

	incoming.Timestamp = now
	incoming.RemovalTime = now.Add(s.lifetime)

	var existing *McMsg
	for _, m := range s.entries {
		if comparableMsgs(m, &incoming) {
			existing = m
			break
		}
	}

	if existing == nil {
		s.allocLocked(incoming, now)
		return OK
	}

	cmp := seqnum.Cmp(incoming.OrigSeqNum, existing.OrigSeqNum)
	if cmp < 0 || (cmp == 0 && incoming.Metric >= existing.Metric) {
		return Redundant
	}

	existing.OrigSeqNum = incoming.OrigSeqNum
	existing.Metric = incoming.Metric
	existing.Timestamp = now
	existing.RemovalTime = now.Add(s.lifetime)

	for _, m := range s.entries {
		if m == existing {
			continue
		}
		if compatible(m, existing) && now.Before(m.RemovalTime) && m.Metric <= existing.Metric {
			return Redundant
		}
	}
	return OK
}

// allocLocked appends incoming as a new entry, reclaiming the
// oldest-by-timestamp entry first if the set is full.
func (s *McMsgSet) allocLocked(incoming McMsg, now time.Time) {
	if len(s.entries) >= s.capacity {
		oldest := 0
		for i, m := range s.entries {
			if m.Timestamp.Before(s.entries[oldest].Timestamp) {
				oldest = i
			}
		}
		s.entries[oldest] = &incoming
		return
	}
	s.entries = append(s.entries, &incoming)
}

// Len reports the number of entries currently stored.
func (s *McMsgSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
