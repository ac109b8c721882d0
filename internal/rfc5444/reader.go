package rfc5444

import "net/netip"

// DropAction is the result a consumer callback returns, per spec.md
// §4.3's "Any callback may return one of: OK, DROP_TLV, DROP_ADDRESS,
// DROP_MESSAGE, DROP_MESSAGE_BUT_FORWARD, DROP_PACKET."
type DropAction int

const (
	OK DropAction = iota
	DropTLV
	DropAddress
	DropMessage
	DropMessageButForward
	DropPacket
)

// Context is the handle passed into every callback instead of a
// back-pointer to the reader (spec.md §9: "break the cycle with a
// context handle passed into each callback").
type Context struct {
	Src     netip.Addr
	IfIndex int
	// PacketSeqNum is the enclosing packet's sequence number, if any.
	PacketSeqNum *uint16
}

// MessageConsumer receives the start/address/tlv/end callback
// sequence for one message type (or, if Default reports true, for
// every message type not claimed by a more specific consumer).
type MessageConsumer interface {
	MsgID() uint8
	Default() bool
	Start(ctx Context, msg *Message) DropAction
	AddressStart(ctx Context, msg *Message, addr Address, index int) DropAction
	TLV(ctx Context, msg *Message, addr Address, index int, t TLV) DropAction
	End(ctx Context, msg *Message, dropped bool)
}

// Reader dispatches parsed packets to registered MessageConsumers in
// registration order, per spec.md §4.3 and §9 ("Dispatch order is
// deterministic: register order within a priority class").
//
// Dispatch registers at most one consumer per message type in this
// codebase (internal/engine registers exactly one reader per RREQ,
// RREP, RERR, and RREP_Ack), so the cross-consumer visibility rule in
// spec.md §4.3 ("later consumers do not see entities a previous
// consumer dropped") never has more than one consumer to apply to;
// DROP_TLV/DROP_ADDRESS are therefore scoped to the remainder of the
// current consumer's own walk rather than threaded across consumers.
// DROP_MESSAGE, DROP_MESSAGE_BUT_FORWARD, and DROP_PACKET still
// short-circuit the whole dispatch as specified.
type Reader struct {
	specific map[uint8][]MessageConsumer
	defaults []MessageConsumer
}

// NewReader returns an empty Reader.
func NewReader() *Reader {
	return &Reader{specific: make(map[uint8][]MessageConsumer)}
}

// Register adds c to the dispatch table, under its own MsgID if
// Default() is false, or to the default list otherwise.
func (r *Reader) Register(c MessageConsumer) {
	if c.Default() {
		r.defaults = append(r.defaults, c)
		return
	}
	r.specific[c.MsgID()] = append(r.specific[c.MsgID()], c)
}

func (r *Reader) consumersFor(msgID uint8) []MessageConsumer {
	out := append([]MessageConsumer(nil), r.specific[msgID]...)
	out = append(out, r.defaults...)
	return out
}

// HandlePacket parses buf and dispatches every message it contains.
// A decode error aborts the whole packet, matching spec.md §4.3 ("a
// typed error ... abort parsing of the enclosing message or
// packet"). DropPacket from any consumer likewise aborts processing
// of the remaining messages in this packet.
func (r *Reader) HandlePacket(buf []byte, src netip.Addr, ifIndex int) error {
	pkt, err := DecodePacket(buf)
	if err != nil {
		return err
	}

	ctx := Context{Src: src, IfIndex: ifIndex, PacketSeqNum: pkt.SeqNum}

	for i := range pkt.Messages {
		if r.dispatchMessage(ctx, &pkt.Messages[i]) == DropPacket {
			break
		}
	}
	return nil
}

// dispatchMessage runs the start/address/tlv/end sequence for msg
// against every registered consumer of its type, short-circuiting on
// DROP_MESSAGE[_BUT_FORWARD] or DROP_PACKET.
func (r *Reader) dispatchMessage(ctx Context, msg *Message) DropAction {
	for _, c := range r.consumersFor(msg.Type) {
		action, dropped := dispatchOne(ctx, c, msg)
		c.End(ctx, msg, dropped)
		if action == DropMessage || action == DropMessageButForward || action == DropPacket {
			return action
		}
	}
	return OK
}

// dispatchOne runs one consumer's start/address/tlv walk over msg.
func dispatchOne(ctx Context, c MessageConsumer, msg *Message) (DropAction, bool) {
	if action := c.Start(ctx, msg); action != OK {
		return action, true
	}

	dropped := false
	for bi := range msg.AddrBlocks {
		ab := &msg.AddrBlocks[bi]
		for ai := range ab.Addresses {
			addrAction := c.AddressStart(ctx, msg, ab.Addresses[ai], ai)
			switch addrAction {
			case OK:
			case DropAddress:
				dropped = true
				continue
			default:
				return addrAction, true
			}

			for _, t := range ab.TLVs {
				if !t.appliesTo(ai) {
					continue
				}
				tlvAction := c.TLV(ctx, msg, ab.Addresses[ai], ai, t)
				switch tlvAction {
				case OK:
				case DropTLV:
					dropped = true
				default:
					return tlvAction, true
				}
			}
		}
	}
	return OK, dropped
}
