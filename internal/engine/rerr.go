package engine

import (
	"net/netip"
	"sync"

	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/seqnum"
)

// rerrConsumer implements RERR ingress: invalidate matching Local
// Route Set entries and forward to the precursors recorded on them
// (spec.md §4.5; RERR forwarding is a supplemented feature per
// SPEC_FULL.md/DESIGN.md's resolution of the RERR Open Question).
type rerrConsumer struct {
	eng *Engine

	mu  sync.Mutex
	acc *rerrAcc
}

type rerrEntry struct {
	addr   rfc5444.Address
	seqNum uint16
}

type rerrAcc struct {
	entries map[int]*rerrEntry
}

func (c *rerrConsumer) MsgID() uint8  { return MsgRERR }
func (c *rerrConsumer) Default() bool { return false }

func (c *rerrConsumer) Start(ctx rfc5444.Context, msg *rfc5444.Message) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc = &rerrAcc{entries: make(map[int]*rerrEntry)}
	return rfc5444.OK
}

func (c *rerrConsumer) AddressStart(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc.entries[index] = &rerrEntry{addr: addr}
	return rfc5444.OK
}

func (c *rerrConsumer) TLV(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int, t rfc5444.TLV) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Type == tlvUnreachableSeqNum && len(t.Value) == 2 {
		c.acc.entries[index].seqNum = uint16(t.Value[0])<<8 | uint16(t.Value[1])
	}
	return rfc5444.OK
}

func (c *rerrConsumer) End(ctx rfc5444.Context, msg *rfc5444.Message, dropped bool) {
	c.mu.Lock()
	acc := c.acc
	c.acc = nil
	c.mu.Unlock()

	if dropped || acc == nil || len(acc.entries) == 0 {
		return
	}
	c.process(ctx, acc)
}

// unreachable pairs an invalidated prefix with the SeqNum its Local
// Route Set entry carried, so a forwarded RERR reports the same
// sequence number the original advertised route last held.
type unreachable struct {
	prefix netip.Prefix
	seqNum uint16
}

func (c *rerrConsumer) process(ctx rfc5444.Context, acc *rerrAcc) {
	e := c.eng
	now := e.now()
	iface := ifaceKey(ctx.IfIndex)

	// Replay guard: a RERR whose highest carried SeqNum is no newer
	// than the last one this neighbor sent is ignored.
	if !e.Neighbors.AcceptRerr(ctx.Src, iface, maxUnreachableSeqNum(acc.entries), now) {
		return
	}

	var toForward []unreachable
	precursors := make(map[netip.Addr]struct{})

	for _, entry := range acc.entries {
		pfx := entry.addr.Prefix()
		changed := e.LRS.Invalidate(pfx, now)
		if len(changed) == 0 {
			continue
		}
		e.Stack.FIBDel(pfx)
		toForward = append(toForward, unreachable{prefix: pfx, seqNum: changed[0].SeqNum})
		for _, p := range e.LRS.Precursors(pfx) {
			if p != ctx.Src {
				precursors[p] = struct{}{}
			}
		}
	}
	if len(toForward) == 0 || len(precursors) == 0 {
		return
	}

	for p := range precursors {
		e.forwardRERR(p, iface, toForward)
	}
}

// maxUnreachableSeqNum returns the newest SeqNum carried by any entry
// in a RERR, used as that message's replay-guard timestamp.
func maxUnreachableSeqNum(entries map[int]*rerrEntry) uint16 {
	var max uint16
	first := true
	for _, e := range entries {
		if first || seqnum.Newer(e.seqNum, max) {
			max = e.seqNum
			first = false
		}
	}
	return max
}

func (e *Engine) forwardRERR(dst netip.Addr, iface string, entries []unreachable) {
	e.ensureTarget(dst, iface)
	err := e.Scheduler.Enqueue(scheduler.Job{
		Priority: scheduler.PriorityRERRInvalidated,
		Selector: rfc5444.SingleTarget(dst, iface),
		Build: func() (rfc5444.Message, error) {
			b := rfc5444.NewMessageBuilder(MsgRERR, 16)
			for _, u := range entries {
				idx := b.AddAddress(rfc5444.AddressFromPrefix(u.prefix.Addr(), u.prefix.Bits()))
				b.AddAddressTLV(idx, rfc5444.TLV{Type: tlvUnreachableSeqNum, Value: []byte{byte(u.seqNum >> 8), byte(u.seqNum)}})
			}
			return b.Build()
		},
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("rerr: failed to forward", "error", err)
	}
}
