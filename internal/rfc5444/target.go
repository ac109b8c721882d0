package rfc5444

import (
	"net/netip"
	"sync"
	"time"
)

// Target is one output context: a destination (unicast or the
// all-targets multicast group) plus the interface to send on, and
// the packet currently being aggregated for it (spec.md §4.3:
// "(dst_ip, iface, packet_buffer, is_flushed, aggregation_timer)").
type Target struct {
	Dst   netip.Addr
	Iface string

	mu          sync.Mutex
	buf         []byte
	firstQueued time.Time
	flushed     bool
}

func newTarget(dst netip.Addr, iface string) *Target {
	return &Target{Dst: dst, Iface: iface, flushed: true}
}

// key identifies a target for the writer's target map.
func (t *Target) key() targetKey {
	return targetKey{t.Dst, t.Iface}
}

type targetKey struct {
	dst   netip.Addr
	iface string
}

// append adds msgBytes to the target's aggregation buffer, flushing
// first if it wouldn't fit within packetSize. Returns an error only
// when msgBytes alone (the non-fragmentable part of one message)
// cannot fit even in an empty buffer (spec.md §4.3: "inability to fit
// ... into a target's MTU is a fatal per-message error").
func (t *Target) append(msgBytes []byte, packetSize int, flush func(*Target) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(msgBytes) > packetSize {
		return newDecodeError(EndOfBuffer, "message does not fit in packet_size")
	}

	if len(t.buf)+len(msgBytes) > packetSize {
		if err := t.flushLocked(flush); err != nil {
			return err
		}
	}

	if len(t.buf) == 0 {
		t.firstQueued = time.Now()
	}
	t.buf = append(t.buf, msgBytes...)
	t.flushed = false
	return nil
}

func (t *Target) flushLocked(flush func(*Target) error) error {
	if len(t.buf) == 0 {
		return nil
	}
	if err := flush(t); err != nil {
		return err
	}
	t.buf = t.buf[:0]
	t.flushed = true
	return nil
}

// dueSince reports whether the target has buffered data older than d.
func (t *Target) dueSince(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf) > 0 && time.Since(t.firstQueued) >= d
}

// Payload returns a copy of the target's current buffer.
func (t *Target) Payload() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...)
}
