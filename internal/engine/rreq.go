package engine

import (
	"net/netip"
	"sync"

	"aodvv2/internal/metric"
	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/store"
)

// rreqConsumer implements RREQ ingress (spec.md §4.5) and the
// forwarding/reply egress it triggers.
type rreqConsumer struct {
	eng *Engine

	mu  sync.Mutex
	acc *rreqAcc
}

type rreqAcc struct {
	hopLimit uint8
	byIndex  map[int]*addrAcc
}

func (c *rreqConsumer) MsgID() uint8  { return MsgRREQ }
func (c *rreqConsumer) Default() bool { return false }

func (c *rreqConsumer) Start(ctx rfc5444.Context, msg *rfc5444.Message) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.HopLimit == nil || *msg.HopLimit == 0 {
		return rfc5444.DropPacket
	}
	c.acc = &rreqAcc{hopLimit: *msg.HopLimit, byIndex: make(map[int]*addrAcc)}
	return rfc5444.OK
}

func (c *rreqConsumer) AddressStart(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc.byIndex[index] = &addrAcc{addr: addr}
	return rfc5444.OK
}

func (c *rreqConsumer) TLV(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int, t rfc5444.TLV) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return applyAddrTLV(c.acc.byIndex[index], t)
}

// applyAddrTLV folds one address-level TLV into acc, shared by RREQ
// and RREP ingress since both carry the same ADDRESS_TYPE/SEQ_NUM/
// PATH_METRIC TLVs.
func applyAddrTLV(acc *addrAcc, t rfc5444.TLV) rfc5444.DropAction {
	switch t.Type {
	case tlvAddrType:
		if len(t.Value) != 1 {
			return rfc5444.DropPacket
		}
		acc.kind = t.Value[0]
		acc.hasKind = true
	case tlvSeqNum:
		if len(t.Value) != 2 {
			return rfc5444.DropPacket
		}
		v := uint16(t.Value[0])<<8 | uint16(t.Value[1])
		acc.seqNum = &v
	case tlvPathMetric:
		if len(t.Value) != 1 {
			return rfc5444.DropPacket
		}
		v := t.Value[0]
		acc.pathMetric = &v
		acc.metricTypeExt = t.TypeExt
	}
	return rfc5444.OK
}

func (c *rreqConsumer) End(ctx rfc5444.Context, msg *rfc5444.Message, dropped bool) {
	c.mu.Lock()
	acc := c.acc
	c.acc = nil
	c.mu.Unlock()

	if dropped || acc == nil {
		return
	}
	c.process(ctx, acc)
}

func (c *rreqConsumer) process(ctx rfc5444.Context, acc *rreqAcc) {
	e := c.eng
	now := e.now()
	iface := ifaceKey(ctx.IfIndex)

	// Step 1: sender must not be BLACKLISTED.
	neigh, created, err := e.Neighbors.Observe(ctx.Src, iface, now)
	if err != nil {
		return
	}
	if neigh.State == store.Blacklisted {
		return
	}
	if created {
		e.solicitAck(neigh, now)
	}

	var orig, targ *addrAcc
	var seqNoRtr netip.Addr
	for _, a := range acc.byIndex {
		switch {
		case a.hasKind && a.kind == addrOrigPrefix:
			orig = a
		case a.hasKind && a.kind == addrTargPrefix:
			targ = a
		case !a.hasKind:
			seqNoRtr = a.addr.IP()
		}
	}

	// Step 2: required fields, global scope, metric support.
	if orig == nil || targ == nil || orig.seqNum == nil || orig.pathMetric == nil {
		return
	}
	origPrefix := orig.addr.Prefix()
	targPrefix := targ.addr.Prefix()
	if !isGlobalUnicast(origPrefix.Addr()) || !isGlobalUnicast(targPrefix.Addr()) {
		return
	}
	origSeqNum := *orig.seqNum
	if origSeqNum == 0 {
		return
	}

	metricType := metric.HopCount
	if orig.metricTypeExt != nil {
		metricType = metric.Type(*orig.metricTypeExt)
	}
	m, ok := metric.Lookup(metricType)
	if !ok {
		if _, isClient := e.RCS.LongestMatch(targPrefix.Addr()); isClient {
			e.Stack.SendDstUnreachableMetricMismatch(ctx.Src, iface)
		}
		return
	}

	// Step 3: metric ceiling.
	origMetric := uint32(*orig.pathMetric)
	if !metric.WithinCeiling(m, origMetric) {
		return
	}

	// Step 4: accumulate link cost.
	origMetric = m.Update(origMetric)

	// Step 5: feed the Local Route Set.
	adv := store.AdvRoute{
		Prefix:     origPrefix,
		MetricType: metricType,
		NextHop:    ctx.Src,
		Iface:      iface,
		SeqNum:     origSeqNum,
		Metric:     origMetric,
		SeqNoRtr:   seqNoRtrKey(seqNoRtr),
	}
	route, activated, err := e.LRS.Process(adv, now)
	if err != nil {
		return
	}
	if activated {
		e.Stack.FIBAdd(route.Prefix, route.NextHop, route.Iface, e.RouteLifetime)
	}

	// Step 6: redundancy check.
	targSeqNum := uint16(0)
	if targ.seqNum != nil {
		targSeqNum = *targ.seqNum
	}
	mc := store.McMsg{
		OrigPrefix: origPrefix,
		TargPrefix: targPrefix,
		OrigSeqNum: origSeqNum,
		TargSeqNum: targSeqNum,
		MetricType: metricType,
		Metric:     origMetric,
		SeqNoRtr:   adv.SeqNoRtr,
		Iface:      iface,
	}
	if e.McMsgs.Process(mc, now) == store.Redundant {
		return
	}

	// Step 7: reply if TargPrefix is one of our clients.
	if client, ok := e.RCS.LongestMatch(targPrefix.Addr()); ok {
		replyHopLimit := uint8(metric.MaxHopCount) - acc.hopLimit
		e.sendRREP(ctx.Src, iface, replyHopLimit, origPrefix, client, e.SeqNum.New())
		return
	}

	// Step 8: forward.
	if acc.hopLimit <= 1 {
		return
	}
	fwdRoute, ok := e.LRS.FindPrefix(origPrefix, now)
	if !ok {
		return
	}
	// ctx.Src is relying on this node's reverse route to origPrefix to
	// get a reply back; it must hear a RERR if that route breaks.
	e.LRS.AddPrecursor(origPrefix, ctx.Src)
	newHopLimit := acc.hopLimit - 1
	e.forwardRREQ(newHopLimit, origPrefix, origSeqNum, targPrefix, targSeqNum, metricType, fwdRoute.Metric, seqNoRtr)
}

func isGlobalUnicast(a netip.Addr) bool {
	return a.IsValid() && !a.IsUnspecified() && !a.IsLoopback() &&
		!a.IsLinkLocalUnicast() && !a.IsLinkLocalMulticast() && !a.IsMulticast()
}

func (e *Engine) sendRREP(dst netip.Addr, iface string, hopLimit uint8, origPrefix netip.Prefix, client *store.Client, seqNum uint16) {
	e.ensureTarget(dst, iface)
	err := e.Scheduler.Enqueue(scheduler.Job{
		Priority: scheduler.PriorityRREP,
		Selector: rfc5444.SingleTarget(dst, iface),
		Build: func() (rfc5444.Message, error) {
			b := rfc5444.NewMessageBuilder(MsgRREP, 16)
			b.HopLimit = &hopLimit
			origIdx := b.AddAddress(rfc5444.Host(origPrefix.Addr()))
			b.AddAddressTLV(origIdx, mkAddrTypeTLV(addrOrigPrefix))
			targIdx := b.AddAddress(rfc5444.AddressFromPrefix(client.Addr, client.PfxLen))
			b.AddAddressTLV(targIdx, mkAddrTypeTLV(addrTargPrefix))
			b.AddAddressTLV(targIdx, mkSeqNumTLV(seqNum))
			b.AddAddressTLV(targIdx, mkMetricTLV(metric.HopCount, client.Cost))
			return b.Build()
		},
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("rreq: failed to send rrep", "error", err)
	}
}

func (e *Engine) forwardRREQ(hopLimit uint8, origPrefix netip.Prefix, origSeqNum uint16, targPrefix netip.Prefix, targSeqNum uint16, metricType metric.Type, origMetric uint32, seqNoRtr netip.Addr) {
	err := e.Scheduler.Enqueue(scheduler.Job{
		Priority: scheduler.PriorityRREQ,
		Selector: rfc5444.AllTargets(),
		Build: func() (rfc5444.Message, error) {
			b := rfc5444.NewMessageBuilder(MsgRREQ, 16)
			b.HopLimit = &hopLimit
			origIdx := b.AddAddress(rfc5444.AddressFromPrefix(origPrefix.Addr(), origPrefix.Bits()))
			b.AddAddressTLV(origIdx, mkAddrTypeTLV(addrOrigPrefix))
			b.AddAddressTLV(origIdx, mkSeqNumTLV(origSeqNum))
			b.AddAddressTLV(origIdx, mkMetricTLV(metricType, uint8(origMetric)))
			targIdx := b.AddAddress(rfc5444.Host(targPrefix.Addr()))
			b.AddAddressTLV(targIdx, mkAddrTypeTLV(addrTargPrefix))
			if targSeqNum != 0 {
				b.AddAddressTLV(targIdx, mkSeqNumTLV(targSeqNum))
			}
			if seqNoRtr.IsValid() && !seqNoRtr.IsUnspecified() {
				b.AddAddress(rfc5444.Host(seqNoRtr))
			}
			return b.Build()
		},
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("rreq: failed to forward", "error", err)
	}
}
