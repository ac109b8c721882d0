package rfc5444

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"
)

// Transport is the host stack's UDP send downcall (spec.md §6:
// "udp_send(dst, iface, bytes)").
type Transport interface {
	Send(dst netip.Addr, iface string, payload []byte) error
}

// Selector chooses which registered targets a CreateMessage call
// applies to: a single target, every target, or a predicate over
// targets (spec.md §4.3: "a target selector (single target, all
// targets, or predicate)").
type Selector struct {
	all   bool
	dst   netip.Addr
	iface string
	pred  func(*Target) bool
}

// SingleTarget selects exactly the target registered at (dst, iface).
func SingleTarget(dst netip.Addr, iface string) Selector {
	return Selector{dst: dst, iface: iface}
}

// AllTargets selects every registered target.
func AllTargets() Selector { return Selector{all: true} }

// PredicateTarget selects every target for which pred returns true.
func PredicateTarget(pred func(*Target) bool) Selector {
	return Selector{pred: pred}
}

func (s Selector) match(t *Target) bool {
	switch {
	case s.all:
		return true
	case s.pred != nil:
		return s.pred(t)
	default:
		return t.Dst == s.dst && t.Iface == s.iface
	}
}

// Writer aggregates outgoing messages per target until a flush,
// bounded by packetSize (MTU minus link overhead) and flushed either
// when a target's buffer is full or when the aggregation timer
// elapses (spec.md §4.3/§4.6).
type Writer struct {
	mu         sync.Mutex
	targets    map[targetKey]*Target
	order      []targetKey
	maxTargets int

	transport   Transport
	packetSize  int
	aggregation time.Duration
	logger      *slog.Logger

	seqMu     sync.Mutex
	pktSeq    uint16
	usePktSeq bool
}

// NewWriter returns a Writer bounded to maxTargets registered targets
// (spec.md §8 S3's CONFIG_RFC5444_TARGET_NUMOF) and packetSize bytes
// per outgoing packet. usePktSeqNum enables the packet-level
// sequence number supplemented in SPEC_FULL.md.
func NewWriter(transport Transport, packetSize int, aggregation time.Duration, maxTargets int, usePktSeqNum bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		targets:     make(map[targetKey]*Target),
		maxTargets:  maxTargets,
		transport:   transport,
		packetSize:  packetSize,
		aggregation: aggregation,
		usePktSeq:   usePktSeqNum,
		logger:      logger,
	}
}

// RegisterTarget adds (dst, iface) to the writer's target table,
// returning the target and true, or (nil, false) if the table is
// full (spec.md §8 S3: "the next registration returns 'no space'").
// Registering an already-present (dst, iface) is idempotent.
func (w *Writer) RegisterTarget(dst netip.Addr, iface string) (*Target, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	k := targetKey{dst, iface}
	if t, ok := w.targets[k]; ok {
		return t, true
	}
	if len(w.targets) >= w.maxTargets {
		return nil, false
	}
	t := newTarget(dst, iface)
	w.targets[k] = t
	w.order = append(w.order, k)
	return t, true
}

// GetTarget returns the registered target at (dst, iface), or nil.
func (w *Writer) GetTarget(dst netip.Addr, iface string) *Target {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.targets[targetKey{dst, iface}]
}

// DeleteTarget removes the target at (dst, iface), if present.
func (w *Writer) DeleteTarget(dst netip.Addr, iface string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := targetKey{dst, iface}
	if _, ok := w.targets[k]; !ok {
		return
	}
	delete(w.targets, k)
	for i, kk := range w.order {
		if kk == k {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// DeleteAllTargets removes every registered target.
func (w *Writer) DeleteAllTargets() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets = make(map[targetKey]*Target)
	w.order = nil
}

func (w *Writer) snapshotTargets(sel Selector) []*Target {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Target, 0, len(w.order))
	for _, k := range w.order {
		if t := w.targets[k]; sel.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// CreateMessage builds one message via build, encodes it once, and
// appends the encoded bytes to every target selected by sel,
// flushing a target first if the message wouldn't otherwise fit
// (spec.md §4.3).
func (w *Writer) CreateMessage(sel Selector, build func() (Message, error)) error {
	msg, err := build()
	if err != nil {
		return err
	}
	encoded, err := msg.Encode()
	if err != nil {
		return err
	}

	for _, t := range w.snapshotTargets(sel) {
		if err := t.append(encoded, w.packetSize, w.flush); err != nil {
			w.logger.Warn("message did not fit target packet_size", "dst", t.Dst, "iface", t.Iface, "err", err)
			return err
		}
	}
	return nil
}

// nextPktSeqNum returns the next packet sequence number, or nil if
// packet sequence numbers are disabled.
func (w *Writer) nextPktSeqNum() *uint16 {
	if !w.usePktSeq {
		return nil
	}
	w.seqMu.Lock()
	defer w.seqMu.Unlock()
	w.pktSeq++
	v := w.pktSeq
	return &v
}

// flush hands t's buffered messages, wrapped in a packet header, to
// the transport, and is invoked either by Target.append (buffer full)
// or by the periodic aggregation sweep in Run.
func (w *Writer) flush(t *Target) error {
	seq := w.nextPktSeqNum()
	flags := byte(Version) & 0x0F
	if seq != nil {
		flags |= pktFlagSeqNum
	}
	payload := make([]byte, 0, 3+len(t.buf))
	payload = append(payload, flags)
	if seq != nil {
		payload = append(payload, byte(*seq>>8), byte(*seq))
	}
	payload = append(payload, t.buf...)
	return w.transport.Send(t.Dst, t.Iface, payload)
}

// FlushTarget forces an immediate flush of the target at (dst,
// iface), if it has buffered data.
func (w *Writer) FlushTarget(dst netip.Addr, iface string) error {
	t := w.GetTarget(dst, iface)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(w.flush)
}

// Run periodically flushes targets whose aggregation window has
// elapsed, until ctx is canceled (spec.md §5: the carrier task
// "blocks on inbound UDP or its aggregation timer").
func (w *Writer) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDue()
		}
	}
}

func (w *Writer) flushDue() {
	for _, t := range w.snapshotTargets(AllTargets()) {
		if t.dueSince(w.aggregation) {
			t.mu.Lock()
			if err := t.flushLocked(w.flush); err != nil {
				w.logger.Warn("aggregation flush failed", "dst", t.Dst, "iface", t.Iface, "err", err)
			}
			t.mu.Unlock()
		}
	}
}
