package engine

import (
	"net/netip"
	"sync"

	"aodvv2/internal/metric"
	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/store"
)

// rrepConsumer implements RREP ingress (spec.md §4.5) and forwarding.
type rrepConsumer struct {
	eng *Engine

	mu  sync.Mutex
	acc *rreqAcc // same shape as RREQ's accumulator
}

func (c *rrepConsumer) MsgID() uint8  { return MsgRREP }
func (c *rrepConsumer) Default() bool { return false }

func (c *rrepConsumer) Start(ctx rfc5444.Context, msg *rfc5444.Message) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.HopLimit == nil || *msg.HopLimit == 0 {
		return rfc5444.DropPacket
	}
	c.acc = &rreqAcc{hopLimit: *msg.HopLimit, byIndex: make(map[int]*addrAcc)}
	return rfc5444.OK
}

func (c *rrepConsumer) AddressStart(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc.byIndex[index] = &addrAcc{addr: addr}
	return rfc5444.OK
}

func (c *rrepConsumer) TLV(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int, t rfc5444.TLV) rfc5444.DropAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return applyAddrTLV(c.acc.byIndex[index], t)
}

func (c *rrepConsumer) End(ctx rfc5444.Context, msg *rfc5444.Message, dropped bool) {
	c.mu.Lock()
	acc := c.acc
	c.acc = nil
	c.mu.Unlock()

	if dropped || acc == nil {
		return
	}
	c.process(ctx, acc)
}

func (c *rrepConsumer) process(ctx rfc5444.Context, acc *rreqAcc) {
	e := c.eng
	now := e.now()
	iface := ifaceKey(ctx.IfIndex)

	var orig, targ *addrAcc
	for _, a := range acc.byIndex {
		switch {
		case a.hasKind && a.kind == addrOrigPrefix:
			orig = a
		case a.hasKind && a.kind == addrTargPrefix:
			targ = a
		}
	}

	if orig == nil || targ == nil {
		return
	}
	origPrefix := orig.addr.Prefix()
	if !isGlobalUnicast(origPrefix.Addr()) {
		return
	}
	if targ.addr.PfxLen == 0 || targ.seqNum == nil || *targ.seqNum == 0 || targ.pathMetric == nil {
		return
	}
	targPrefix := targ.addr.Prefix()

	metricType := metric.HopCount
	if targ.metricTypeExt != nil {
		metricType = metric.Type(*targ.metricTypeExt)
	}
	m, ok := metric.Lookup(metricType)
	if !ok {
		return
	}
	targMetric := uint32(*targ.pathMetric)
	if !metric.WithinCeiling(m, targMetric) {
		return
	}
	targMetric = m.Update(targMetric)

	adv := store.AdvRoute{
		Prefix:     targPrefix,
		MetricType: metricType,
		NextHop:    ctx.Src,
		Iface:      iface,
		SeqNum:     *targ.seqNum,
		Metric:     targMetric,
	}
	route, activated, err := e.LRS.Process(adv, now)
	if err != nil {
		return
	}
	if activated {
		e.Stack.FIBAdd(route.Prefix, route.NextHop, route.Iface, e.RouteLifetime)
		for _, p := range e.Buffers.DispatchMatching(route.Prefix) {
			e.Stack.ForwardPacket(p.Dst, p.Payload)
		}
	}

	if _, isClient := e.RCS.LongestMatch(origPrefix.Addr()); isClient {
		return
	}

	next, ok := e.LRS.FindPrefix(origPrefix, now)
	if !ok || acc.hopLimit <= 1 {
		return
	}
	// next.NextHop is about to learn a route to targPrefix through this
	// node; it becomes a precursor so it hears a RERR if that breaks.
	e.LRS.AddPrecursor(targPrefix, next.NextHop)
	e.forwardRREP(next.NextHop, next.Iface, acc.hopLimit-1, origPrefix, targPrefix, targ.addr.PfxLen, *targ.seqNum, metricType, targMetric)
}

func (e *Engine) forwardRREP(nextHop netip.Addr, iface string, hopLimit uint8, origPrefix, targPrefix netip.Prefix, targPfxLen int, targSeqNum uint16, metricType metric.Type, targMetric uint32) {
	e.ensureTarget(nextHop, iface)
	err := e.Scheduler.Enqueue(scheduler.Job{
		Priority: scheduler.PriorityRREP,
		Selector: rfc5444.SingleTarget(nextHop, iface),
		Build: func() (rfc5444.Message, error) {
			b := rfc5444.NewMessageBuilder(MsgRREP, 16)
			b.HopLimit = &hopLimit
			origIdx := b.AddAddress(rfc5444.Host(origPrefix.Addr()))
			b.AddAddressTLV(origIdx, mkAddrTypeTLV(addrOrigPrefix))
			targIdx := b.AddAddress(rfc5444.AddressFromPrefix(targPrefix.Addr(), targPfxLen))
			b.AddAddressTLV(targIdx, mkAddrTypeTLV(addrTargPrefix))
			b.AddAddressTLV(targIdx, mkSeqNumTLV(targSeqNum))
			b.AddAddressTLV(targIdx, mkMetricTLV(metricType, uint8(targMetric)))
			return b.Build()
		},
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("rrep: failed to forward", "error", err)
	}
}
