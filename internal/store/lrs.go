package store

import (
	"net/netip"
	"sync"
	"time"

	"github.com/gaissmai/bart"

	"aodvv2/internal/metric"
	"aodvv2/internal/seqnum"
)

// RouteState is a local route's position in the
// UNCONFIRMED / IDLE / ACTIVE / INVALID lifecycle.
type RouteState int

const (
	Unconfirmed RouteState = iota
	Idle
	Active
	Invalid
)

func (s RouteState) String() string {
	switch s {
	case Unconfirmed:
		return "UNCONFIRMED"
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Route is one Local Route Set entry. Identity is
// (Prefix, MetricType, SeqNoRtr); several routes may share a Prefix
// if they differ in metric type or originating router.
type Route struct {
	Prefix     netip.Prefix
	MetricType metric.Type
	NextHop    netip.Addr
	Iface      string
	SeqNum     uint16
	Metric     uint32
	SeqNoRtr   uint16

	LastUsed         time.Time
	LastSeqNumUpdate time.Time
	State            RouteState

	// Precursors are the link-local neighbors known to be using this
	// route, recorded so RERR can be forwarded to them.
	Precursors map[netip.Addr]struct{}
}

// AdvRoute is a route advertisement fed into LRS.Process, coming from
// an RREQ's or RREP's originator/target address block.
type AdvRoute struct {
	Prefix     netip.Prefix
	MetricType metric.Type
	NextHop    netip.Addr
	Iface      string
	SeqNum     uint16
	Metric     uint32
	SeqNoRtr   uint16
}

type routeKey struct {
	metricType metric.Type
	seqNoRtr   uint16
}

type routeBucket struct {
	routes map[routeKey]*Route
}

// LRS is the Local Route Set.
type LRS struct {
	mu              sync.Mutex
	table           bart.Table[*routeBucket]
	count           int
	capacity        int
	activeInterval  time.Duration
	maxIdleTime     time.Duration
	maxSeqNumLife   time.Duration
	deactivated     []netip.Prefix
}

// NewLRS returns an empty LRS bounded to capacity routes, aged per
// activeInterval (ACTIVE_INTERVAL), maxIdleTime (MAX_IDLETIME), and
// maxSeqNumLife (MAX_SEQNUM_LIFETIME).
func NewLRS(capacity int, activeInterval, maxIdleTime, maxSeqNumLife time.Duration) *LRS {
	return &LRS{
		capacity:      capacity,
		activeInterval: activeInterval,
		maxIdleTime:    maxIdleTime,
		maxSeqNumLife:  maxSeqNumLife,
	}
}

// ageRouteLocked applies the aging rules to r as of now, recording a
// deactivation event if it just became INVALID. Returns true if r
// should be expunged entirely.
func (s *LRS) ageRouteLocked(prefix netip.Prefix, r *Route, now time.Time) (expunge bool) {
	switch r.State {
	case Active:
		if now.Sub(r.LastUsed) >= s.activeInterval {
			r.State = Idle
			r.LastSeqNumUpdate = now
		}
	case Idle:
		if now.Sub(r.LastSeqNumUpdate) >= s.maxIdleTime {
			r.State = Invalid
			r.LastSeqNumUpdate = now
			s.deactivated = append(s.deactivated, prefix)
		}
	case Invalid:
		if now.Sub(r.LastSeqNumUpdate) >= s.maxSeqNumLife {
			return true
		}
	}
	return false
}

// ageSweepLocked ages every route and removes empty buckets and
// expunged routes. Run at the top of every LRS operation.
func (s *LRS) ageSweepLocked(now time.Time) {
	var emptyPrefixes []netip.Prefix
	for pfx, bucket := range s.table.All() {
		for key, r := range bucket.routes {
			if s.ageRouteLocked(pfx, r, now) {
				delete(bucket.routes, key)
				s.count--
			}
		}
		if len(bucket.routes) == 0 {
			emptyPrefixes = append(emptyPrefixes, pfx)
		}
	}
	for _, pfx := range emptyPrefixes {
		s.table.Delete(pfx)
	}
}

// DrainDeactivated returns and clears the prefixes that transitioned
// to INVALID since the last call, for the caller to issue fib_del on.
func (s *LRS) DrainDeactivated() []netip.Prefix {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.deactivated
	s.deactivated = nil
	return out
}

// Find returns the longest-prefix match among non-INVALID routes
// covering dst.
func (s *LRS) Find(dst netip.Addr, now time.Time) (*Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ageSweepLocked(now)

	_, bucket, ok := s.table.LookupPrefixLPM(netip.PrefixFrom(dst, dst.BitLen()))
	if !ok {
		return nil, false
	}
	return bestNonInvalid(bucket)
}

// FindPrefix returns the longest-prefix match among non-INVALID
// routes covering every address in pfx (used to find the route that
// a newly advertised prefix should forward through).
func (s *LRS) FindPrefix(pfx netip.Prefix, now time.Time) (*Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ageSweepLocked(now)

	_, bucket, ok := s.table.LookupPrefixLPM(pfx)
	if !ok {
		return nil, false
	}
	return bestNonInvalid(bucket)
}

func bestNonInvalid(bucket *routeBucket) (*Route, bool) {
	var best *Route
	for _, r := range bucket.routes {
		if r.State == Invalid {
			continue
		}
		if best == nil || routePreferred(r, best) {
			best = r
		}
	}
	return best, best != nil
}

// routePreferred reports whether a is a better forwarding choice than
// b: ACTIVE beats non-ACTIVE, then fresher SeqNum, then lower metric.
func routePreferred(a, b *Route) bool {
	if (a.State == Active) != (b.State == Active) {
		return a.State == Active
	}
	if c := seqnum.Cmp(a.SeqNum, b.SeqNum); c != 0 {
		return c > 0
	}
	return a.Metric < b.Metric
}

// Process compares adv against any existing route sharing its
// identity (Prefix, MetricType, SeqNoRtr) and updates or creates the
// entry per the offers_improvement rule: the advertisement wins if it
// is strictly fresher, or of strictly lower cost at equal freshness.
// activated reports whether the route just became reachable
// (created, or transitioned from a non-ACTIVE state), meaning the
// caller must install a forwarding-table row.
func (s *LRS) Process(adv AdvRoute, now time.Time) (route *Route, activated bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ageSweepLocked(now)

	pfx := adv.Prefix.Masked()
	bucket, ok := s.table.Get(pfx)
	if !ok {
		bucket = &routeBucket{routes: make(map[routeKey]*Route)}
	}

	key := routeKey{adv.MetricType, adv.SeqNoRtr}
	existing, ok := bucket.routes[key]
	if !ok {
		if s.count >= s.capacity {
			return nil, false, newOpError("lrs", "process", ENOSPC)
		}
		r := &Route{
			Prefix:           pfx,
			MetricType:       adv.MetricType,
			NextHop:          adv.NextHop,
			Iface:            adv.Iface,
			SeqNum:           adv.SeqNum,
			Metric:           adv.Metric,
			SeqNoRtr:         adv.SeqNoRtr,
			LastUsed:         now,
			LastSeqNumUpdate: now,
			State:            Active,
			Precursors:       make(map[netip.Addr]struct{}),
		}
		bucket.routes[key] = r
		s.count++
		s.table.Insert(pfx, bucket)
		return r, true, nil
	}

	cmp := seqnum.Cmp(adv.SeqNum, existing.SeqNum)
	improves := cmp > 0 || (cmp == 0 && adv.Metric < existing.Metric)
	if !improves {
		return existing, false, nil
	}

	// A FIB refresh is owed not just when the route leaves a non-ACTIVE
	// state, but also when it was already ACTIVE and the next hop
	// itself changes underneath it, or the stale FIB entry keeps
	// forwarding to a dead next hop.
	nextHopChanged := existing.NextHop != adv.NextHop || existing.Iface != adv.Iface
	activated := existing.State != Active || nextHopChanged

	existing.SeqNum = adv.SeqNum
	existing.Metric = adv.Metric
	existing.NextHop = adv.NextHop
	existing.Iface = adv.Iface
	existing.LastUsed = now
	existing.LastSeqNumUpdate = now
	existing.State = Active
	return existing, activated, nil
}

// Touch marks r as used at now, resetting the ACTIVE_INTERVAL clock.
func (s *LRS) Touch(r *Route, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.LastUsed = now
}

// Invalidate marks every route whose prefix equals pfx as INVALID
// (used by RERR ingress), returning the routes that were newly
// invalidated.
func (s *LRS) Invalidate(pfx netip.Prefix, now time.Time) []*Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ageSweepLocked(now)

	bucket, ok := s.table.Get(pfx.Masked())
	if !ok {
		return nil
	}
	var changed []*Route
	for _, r := range bucket.routes {
		if r.State != Invalid {
			r.State = Invalid
			r.LastSeqNumUpdate = now
			changed = append(changed, r)
			s.deactivated = append(s.deactivated, r.Prefix)
		}
	}
	return changed
}

// AddPrecursor records that neighborAddr is using the route at pfx.
func (s *LRS) AddPrecursor(pfx netip.Prefix, neighborAddr netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.table.Get(pfx.Masked())
	if !ok {
		return
	}
	for _, r := range bucket.routes {
		if r.Precursors == nil {
			r.Precursors = make(map[netip.Addr]struct{})
		}
		r.Precursors[neighborAddr] = struct{}{}
	}
}

// Precursors returns the neighbors recorded as using any route at pfx.
func (s *LRS) Precursors(pfx netip.Prefix) []netip.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.table.Get(pfx.Masked())
	if !ok {
		return nil
	}
	seen := make(map[netip.Addr]struct{})
	for _, r := range bucket.routes {
		for a := range r.Precursors {
			seen[a] = struct{}{}
		}
	}
	out := make([]netip.Addr, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	return out
}

// All returns every route currently stored, aged as of now.
func (s *LRS) All(now time.Time) []*Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ageSweepLocked(now)

	var out []*Route
	for _, bucket := range s.table.All() {
		for _, r := range bucket.routes {
			out = append(out, r)
		}
	}
	return out
}
