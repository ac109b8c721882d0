package rfc5444

import (
	"net/netip"
	"testing"
)

type recordingConsumer struct {
	msgID     uint8
	isDefault bool
	starts    int
	addrs     []int
	tlvs      int
	ends      int
	droppedAt []DropAction
	onStart   func(msg *Message) DropAction
}

func (c *recordingConsumer) MsgID() uint8  { return c.msgID }
func (c *recordingConsumer) Default() bool { return c.isDefault }

func (c *recordingConsumer) Start(ctx Context, msg *Message) DropAction {
	c.starts++
	if c.onStart != nil {
		return c.onStart(msg)
	}
	return OK
}

func (c *recordingConsumer) AddressStart(ctx Context, msg *Message, addr Address, index int) DropAction {
	c.addrs = append(c.addrs, index)
	return OK
}

func (c *recordingConsumer) TLV(ctx Context, msg *Message, addr Address, index int, t TLV) DropAction {
	c.tlvs++
	return OK
}

func (c *recordingConsumer) End(ctx Context, msg *Message, dropped bool) {
	c.ends++
}

func TestReaderDispatchesByMessageType(t *testing.T) {
	rreq := &recordingConsumer{msgID: 1}
	rrep := &recordingConsumer{msgID: 2}
	r := NewReader()
	r.Register(rreq)
	r.Register(rrep)

	pkt := Packet{Messages: []Message{
		{Type: 1, AddrLen: 16, AddrBlocks: []AddressBlock{{Addresses: []Address{Host(mustAddr(t, "2001:db8::1"))}}}},
	}}
	buf, err := pkt.Encode()
	if err != nil {
		t.Fatal(err)
	}

	if err := r.HandlePacket(buf, netip.IPv6Unspecified(), 1); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if rreq.starts != 1 || rreq.ends != 1 || len(rreq.addrs) != 1 {
		t.Errorf("rreq consumer state: %+v", rreq)
	}
	if rrep.starts != 0 {
		t.Errorf("rrep consumer should not have been invoked: %+v", rrep)
	}
}

func TestReaderDropMessageShortCircuitsConsumer(t *testing.T) {
	c := &recordingConsumer{msgID: 1, onStart: func(msg *Message) DropAction { return DropMessage }}
	r := NewReader()
	r.Register(c)

	pkt := Packet{Messages: []Message{
		{Type: 1, AddrLen: 16, AddrBlocks: []AddressBlock{{Addresses: []Address{Host(mustAddr(t, "2001:db8::1"))}}}},
	}}
	buf, err := pkt.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.HandlePacket(buf, netip.IPv6Unspecified(), 1); err != nil {
		t.Fatal(err)
	}
	if c.starts != 1 || len(c.addrs) != 0 || c.ends != 1 {
		t.Errorf("expected address walk to be skipped after DropMessage: %+v", c)
	}
}

func TestReaderDropPacketStopsRemainingMessages(t *testing.T) {
	first := &recordingConsumer{msgID: 1, onStart: func(msg *Message) DropAction { return DropPacket }}
	second := &recordingConsumer{msgID: 2}
	r := NewReader()
	r.Register(first)
	r.Register(second)

	pkt := Packet{Messages: []Message{
		{Type: 1, AddrLen: 16, AddrBlocks: []AddressBlock{{Addresses: []Address{Host(mustAddr(t, "2001:db8::1"))}}}},
		{Type: 2, AddrLen: 16, AddrBlocks: []AddressBlock{{Addresses: []Address{Host(mustAddr(t, "2001:db8::2"))}}}},
	}}
	buf, err := pkt.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.HandlePacket(buf, netip.IPv6Unspecified(), 1); err != nil {
		t.Fatal(err)
	}
	if second.starts != 0 {
		t.Errorf("second message should not have been dispatched after DropPacket")
	}
}

func TestReaderDefaultConsumerCatchesUnclaimedTypes(t *testing.T) {
	def := &recordingConsumer{isDefault: true}
	r := NewReader()
	r.Register(def)

	pkt := Packet{Messages: []Message{{Type: 99, AddrLen: 16}}}
	buf, err := pkt.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.HandlePacket(buf, netip.IPv6Unspecified(), 1); err != nil {
		t.Fatal(err)
	}
	if def.starts != 1 {
		t.Errorf("default consumer not invoked: %+v", def)
	}
}
