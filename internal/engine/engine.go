package engine

import (
	"encoding/binary"
	"log/slog"
	"net/netip"
	"strconv"
	"time"

	"aodvv2/internal/metric"
	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/seqnum"
	"aodvv2/internal/store"
)

// Stack is the subset of the core→stack downcalls (spec.md §6) that
// the message engine itself must issue, as opposed to the ones C7 or
// cmd/aodvv2d own (udp_send is internal/rfc5444.Transport's concern).
type Stack interface {
	// SendDstUnreachableMetricMismatch answers src on iface with an
	// ICMPv6 Destination-Unreachable, metric-type-mismatch code, for
	// the RREQ that just arrived. spec.md describes this downcall as
	// taking the original packet; this codec's reader callbacks never
	// retain raw bytes past the parse step, so the stack is handed the
	// sender/interface instead and is expected to synthesize the ICMP
	// error toward that peer.
	SendDstUnreachableMetricMismatch(src netip.Addr, iface string)
	FIBAdd(prefix netip.Prefix, nextHop netip.Addr, iface string, lifetime time.Duration)
	FIBDel(prefix netip.Prefix)
	// ForwardPacket resends a buffered data packet now that a route
	// exists, per spec.md §4.5's "dispatch all buffered packets" step.
	ForwardPacket(dst netip.Addr, payload []byte)
}

// Engine wires the RFC 5444 reader/writer to the set stores and
// implements RREQ/RREP/RREP_Ack/RERR per spec.md §4.5. Outgoing
// messages are enqueued on Scheduler rather than written directly;
// Writer is still used to register reply/forward targets before
// enqueueing, since CreateMessage silently no-ops for an unregistered
// target.
type Engine struct {
	RCS       *store.RCS
	Neighbors *store.NeighborSet
	LRS       *store.LRS
	McMsgs    *store.McMsgSet
	Buffers   *store.BufferSet
	SeqNum    *seqnum.Counter
	Writer    *rfc5444.Writer
	Scheduler *scheduler.Scheduler
	Stack     Stack
	Logger    *slog.Logger

	AckSentTimeout time.Duration
	RouteLifetime  time.Duration

	Now func() time.Time // overridable for tests; defaults to time.Now
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Register installs every engine consumer into r.
func (e *Engine) Register(r *rfc5444.Reader) {
	r.Register(&rreqConsumer{eng: e})
	r.Register(&rrepConsumer{eng: e})
	r.Register(&rrepAckConsumer{eng: e})
	r.Register(&rerrConsumer{eng: e})
}

// ensureTarget registers (dst, iface) with the writer if it isn't
// already, so a reply to a neighbor heard for the first time isn't
// silently dropped by CreateMessage finding no matching target.
func (e *Engine) ensureTarget(dst netip.Addr, iface string) {
	e.Writer.RegisterTarget(dst, iface)
}

// ifaceKey turns a Context's numeric interface index into the string
// key the set stores use. internal/transport is responsible for
// resolving the link-layer name; until that wiring lands this is a
// stable, unique surrogate.
func ifaceKey(ifIndex int) string {
	return strconv.Itoa(ifIndex)
}

// seqNoRtrKey collapses the optional SeqNoRtr address from the wire
// into the 16-bit identity LRS buckets routes by (spec.md's own
// resolved Open Question treats "unspecified" and "all-zero" as
// interchangeable): the unspecified address and the zero address both
// map to 0; any other address maps to its low 16 bits, which is
// sufficient to distinguish different advertising routers for a given
// prefix without LRS having to store or compare full addresses.
func seqNoRtrKey(addr netip.Addr) uint16 {
	if !addr.IsValid() || addr.IsUnspecified() {
		return 0
	}
	b := addr.As16()
	return binary.BigEndian.Uint16(b[14:16])
}

// addrAcc accumulates the TLVs seen for one address-block entry; RFC
// 5444 doesn't guarantee ADDRESS_TYPE arrives before SEQ_NUM/
// PATH_METRIC for the same address, so fields are filled in as their
// TLVs are seen and only interpreted once the address block is done.
type addrAcc struct {
	addr          rfc5444.Address
	kind          uint8
	hasKind       bool
	seqNum        *uint16
	pathMetric    *uint8
	metricTypeExt *uint8
}

func mkMetricTLV(metricType metric.Type, cost uint8) rfc5444.TLV {
	ext := uint8(metricType)
	return rfc5444.TLV{Type: tlvPathMetric, TypeExt: &ext, Value: []byte{cost}}
}

func mkSeqNumTLV(v uint16) rfc5444.TLV {
	return rfc5444.TLV{Type: tlvSeqNum, Value: []byte{byte(v >> 8), byte(v)}}
}

func mkAddrTypeTLV(v uint8) rfc5444.TLV {
	return rfc5444.TLV{Type: tlvAddrType, Value: []byte{v}}
}
