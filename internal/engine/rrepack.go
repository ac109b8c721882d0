package engine

import (
	"net/netip"
	"time"

	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/store"
)

// rrepAckConsumer implements RREP_Ack request/reply processing
// (spec.md §4.5).
type rrepAckConsumer struct {
	eng *Engine
}

func (c *rrepAckConsumer) MsgID() uint8  { return MsgRREPAck }
func (c *rrepAckConsumer) Default() bool { return false }

func (c *rrepAckConsumer) Start(ctx rfc5444.Context, msg *rfc5444.Message) rfc5444.DropAction {
	_, hasAckReq := msg.TLV(tlvACKREQ, nil)
	_, hasTimestamp := msg.TLV(tlvTimestamp, nil)
	if hasAckReq && !hasTimestamp {
		return rfc5444.DropPacket
	}
	return rfc5444.OK
}

func (c *rrepAckConsumer) AddressStart(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int) rfc5444.DropAction {
	return rfc5444.OK
}

func (c *rrepAckConsumer) TLV(ctx rfc5444.Context, msg *rfc5444.Message, addr rfc5444.Address, index int, t rfc5444.TLV) rfc5444.DropAction {
	return rfc5444.OK
}

func (c *rrepAckConsumer) End(ctx rfc5444.Context, msg *rfc5444.Message, dropped bool) {
	if dropped {
		return
	}

	e := c.eng
	now := e.now()
	iface := ifaceKey(ctx.IfIndex)

	ackReqTLV, isRequest := msg.TLV(tlvACKREQ, nil)
	tsTLV, hasTimestamp := msg.TLV(tlvTimestamp, nil)
	if isRequest && len(ackReqTLV.Value) == 1 && ackReqTLV.Value[0] == 0 {
		isRequest = false
	}

	var timestamp uint16
	if hasTimestamp && len(tsTLV.Value) == 2 {
		timestamp = uint16(tsTLV.Value[0])<<8 | uint16(tsTLV.Value[1])
	}

	if isRequest {
		n, err := e.Neighbors.ReceiveAckRequest(ctx.Src, iface, timestamp, now)
		if err != nil {
			return
		}
		e.sendRREPAck(n.Addr, n.Iface, false, n.AckSeqNum)
		return
	}

	e.Neighbors.ReceiveAck(ctx.Src, iface, timestamp, now)
}

func (e *Engine) sendRREPAck(dst netip.Addr, iface string, ackReq bool, timestamp uint16) {
	e.ensureTarget(dst, iface)
	err := e.Scheduler.Enqueue(scheduler.Job{
		Priority: scheduler.PriorityRREPAck,
		Selector: rfc5444.SingleTarget(dst, iface),
		Build: func() (rfc5444.Message, error) {
			b := rfc5444.NewMessageBuilder(MsgRREPAck, 16)
			reqVal := uint8(0)
			if ackReq {
				reqVal = 1
			}
			b.AddMessageTLV(rfc5444.TLV{Type: tlvACKREQ, Value: []byte{reqVal}})
			b.AddMessageTLV(mkSeqNumAsTimestamp(timestamp))
			return b.Build()
		},
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("rrepack: failed to send", "error", err)
	}
}

func mkSeqNumAsTimestamp(v uint16) rfc5444.TLV {
	return rfc5444.TLV{Type: tlvTimestamp, Value: []byte{byte(v >> 8), byte(v)}}
}

// solicitAck arms n's pending-ack timeout and emits the RREP_Ack
// request that confirms it, so a neighbor heard for the first time
// moves HEARD -> CONFIRMED (or HEARD -> BLACKLISTED on timeout)
// instead of staying HEARD forever (spec.md §3/§4.4).
func (e *Engine) solicitAck(n *store.Neighbor, now time.Time) {
	_, reqAck, err := e.Neighbors.SetHeard(n.Addr, n.Iface, true, n.AckSeqNum, now, e.AckSentTimeout)
	if err != nil || !reqAck {
		return
	}
	e.sendRREPAck(n.Addr, n.Iface, true, n.AckSeqNum)
}
