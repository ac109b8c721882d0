// Package core wires the seven components (C1-C7) into a single
// Aodvv2Core object and supplies the concrete stack-facing adapter
// (the engine.Stack implementation) that spec.md §6 otherwise
// describes only as a set of downcalls/upcalls.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"aodvv2/internal/discovery"
	"aodvv2/internal/engine"
	"aodvv2/internal/fib"
	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/seqnum"
	"aodvv2/internal/store"
)

// PacketForwarder re-injects a buffered data packet toward dst now
// that a route exists (spec.md's "dispatch all buffered packets"
// step). Re-injection onto the wire is a host-stack concern the core
// only describes as a downcall; LogForwarder below is the default,
// no-op-but-observable implementation, and a deployment that owns a
// TUN device or raw socket can supply its own.
type PacketForwarder interface {
	Forward(dst netip.Addr, payload []byte)
}

// LogForwarder logs an intent to forward rather than touching the
// network; it lets the core run and be tested without a privileged
// data-plane re-injection path wired in.
type LogForwarder struct {
	Logger *slog.Logger
}

func (f LogForwarder) Forward(dst netip.Addr, payload []byte) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("core: forwarding buffered packet", "dst", dst, "bytes", len(payload))
}

// ICMPSender answers a source with an ICMPv6 Destination-Unreachable,
// metric-type-mismatch downcall. Concrete construction of the raw
// ICMPv6 message is a platform-specific, privileged operation, so it
// is injected rather than hardwired through Deps.ICMP; when none is
// injected (as in cmd/aodvv2d) New falls back to a logging-only
// noopICMPSender.
type ICMPSender interface {
	SendDstUnreachableMetricMismatch(src netip.Addr, iface string)
}

// Transport is the subset of internal/transport.Conn the core needs:
// egress via rfc5444.Transport, and the inbound packet pump.
type Transport interface {
	rfc5444.Transport
	Run(ctx context.Context, reader *rfc5444.Reader) error
}

// Aodvv2Core owns every set store, the message engine, the scheduler,
// the route-discovery driver, and the adapters that connect them to
// the host stack. It is the thing cmd/aodvv2d constructs and runs.
type Aodvv2Core struct {
	cfg Config

	RCS       *store.RCS
	Neighbors *store.NeighborSet
	LRS       *store.LRS
	McMsgs    *store.McMsgSet
	Buffers   *store.BufferSet
	SeqNum    *seqnum.Counter

	Reader    *rfc5444.Reader
	Writer    *rfc5444.Writer
	Scheduler *scheduler.Scheduler
	Engine    *engine.Engine
	Discovery *discovery.Driver
	FIB       *fib.Manager

	transport Transport
	logger    *slog.Logger
}

// Deps supplies everything New can't default on its own: the wire
// transport and the stack-side adapters for FIB manipulation and
// ICMP/forwarding intents.
type Deps struct {
	Transport Transport
	ICMP      ICMPSender
	Forwarder PacketForwarder
	Logger    *slog.Logger
}

// New builds an Aodvv2Core from cfg and deps, filling in spec.md §6
// defaults for any zero Config field.
func New(cfg Config, deps Deps) (*Aodvv2Core, error) {
	if deps.Transport == nil {
		return nil, fmt.Errorf("core: Deps.Transport is required")
	}
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	forwarder := deps.Forwarder
	if forwarder == nil {
		forwarder = LogForwarder{Logger: logger}
	}
	icmpSender := deps.ICMP
	if icmpSender == nil {
		icmpSender = noopICMPSender{logger: logger}
	}

	rcs := store.NewRCS(cfg.RCSMaxEntries)
	neighbors := store.NewNeighborSet(cfg.NeighMaxEntries, cfg.MaxBlacklistTime)
	lrs := store.NewLRS(cfg.LRSMaxEntries, cfg.ActiveInterval, cfg.MaxIdleTime, cfg.MaxSeqNumLifetime)
	mcmsgs := store.NewMcMsgSet(cfg.McMsgMaxEntries, cfg.MaxSeqNumLifetime)
	buffers := store.NewBufferSet(cfg.BufferMaxEntries)
	seq := seqnum.NewCounter(cfg.MaxSeqNumLifetime)

	writer := rfc5444.NewWriter(deps.Transport, cfg.RFC5444PacketSize, cfg.RFC5444AggregationTime, cfg.NeighMaxEntries, false, logger)
	sched := scheduler.New(writer, cfg.ControlTrafficLimit, cfg.rateInterval(), logger)
	fibMgr := fib.NewManager(logger)

	c := &Aodvv2Core{
		cfg:       cfg,
		RCS:       rcs,
		Neighbors: neighbors,
		LRS:       lrs,
		McMsgs:    mcmsgs,
		Buffers:   buffers,
		SeqNum:    seq,
		Writer:    writer,
		Scheduler: sched,
		FIB:       fibMgr,
		transport: deps.Transport,
		logger:    logger,
	}

	c.Engine = &engine.Engine{
		RCS:            rcs,
		Neighbors:      neighbors,
		LRS:            lrs,
		McMsgs:         mcmsgs,
		Buffers:        buffers,
		SeqNum:         seq,
		Writer:         writer,
		Scheduler:      sched,
		Stack:          stackAdapter{fib: fibMgr, icmp: icmpSender, forwarder: forwarder},
		Logger:         logger,
		AckSentTimeout: cfg.RREPAckSentTimeout,
		RouteLifetime:  cfg.MaxIdleTime,
	}

	c.Reader = rfc5444.NewReader()
	c.Engine.Register(c.Reader)

	c.Discovery = discovery.New(discovery.Config{
		MaxHopCount:      cfg.MaxHopCount,
		RREQWaitTime:     cfg.RREQWaitTime,
		RREQHolddownTime: cfg.RREQHolddownTime,
	}, rcs, lrs, buffers, seq, sched, logger)

	return c, nil
}

// Run starts every background loop (scheduler dequeue, writer
// aggregation flush, FIB lifetime sweep, own-SeqNum idle reset,
// inbound packet pump) and blocks until ctx is cancelled or one of
// them fails.
func (c *Aodvv2Core) Run(ctx context.Context) error {
	errCh := make(chan error, 5)

	go func() { errCh <- c.Scheduler.Run(ctx) }()
	go func() {
		c.Writer.Run(ctx, c.cfg.RFC5444AggregationTime)
		errCh <- nil
	}()
	go func() {
		c.FIB.Run(ctx, c.cfg.ActiveInterval)
		errCh <- nil
	}()
	go func() {
		c.runSeqNumReset(ctx)
		errCh <- nil
	}()
	go func() { errCh <- c.transport.Run(ctx, c.Reader) }()

	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			c.logger.Warn("core: background loop exited", "err", err)
			return err
		}
	}
	return ctx.Err()
}

// runSeqNumReset ticks at MaxSeqNumLifetime so the own SeqNum counter
// resets to 1 even on a node that stays quiet long enough to idle out
// (spec.md §4.1); New() already performs the same check lazily on
// every issue, so this only matters for a node that never issues one
// during an idle period.
func (c *Aodvv2Core) runSeqNumReset(ctx context.Context) {
	if c.cfg.MaxSeqNumLifetime <= 0 {
		return
	}
	t := time.NewTicker(c.cfg.MaxSeqNumLifetime)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.SeqNum.ResetIfIdle()
		}
	}
}

type noopICMPSender struct {
	logger *slog.Logger
}

func (n noopICMPSender) SendDstUnreachableMetricMismatch(src netip.Addr, iface string) {
	n.logger.Debug("core: would send icmpv6 dst-unreachable (metric mismatch)", "src", src, "iface", iface)
}
