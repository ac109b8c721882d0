package rfc5444

import "testing"

func TestMessageRoundTrip(t *testing.T) {
	hopLimit := uint8(255)
	hopCount := uint8(0)
	seq := uint16(42)
	orig := Host(mustAddr(t, "2001:db8::1"))

	msg := Message{
		Type:     1,
		AddrLen:  16,
		OrigAddr: &orig,
		HopLimit: &hopLimit,
		HopCount: &hopCount,
		SeqNum:   &seq,
		TLVs:     []TLV{{Type: 5, Value: []byte("hi")}},
		AddrBlocks: []AddressBlock{{
			Addresses: []Address{Host(mustAddr(t, "2001:db8::2"))},
		}},
	}

	buf, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, n, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d bytes, want %d", n, len(buf))
	}
	if got.Type != msg.Type || got.AddrLen != msg.AddrLen {
		t.Errorf("header mismatch: got %+v", got)
	}
	if got.OrigAddr == nil || got.OrigAddr.IP() != orig.IP() {
		t.Errorf("orig addr mismatch: got %+v", got.OrigAddr)
	}
	if got.HopLimit == nil || *got.HopLimit != hopLimit {
		t.Errorf("hop limit mismatch: got %v", got.HopLimit)
	}
	if got.SeqNum == nil || *got.SeqNum != seq {
		t.Errorf("seqnum mismatch: got %v", got.SeqNum)
	}
	if tlv, ok := got.TLV(5, nil); !ok || string(tlv.Value) != "hi" {
		t.Errorf("message TLV missing or wrong: %+v %v", tlv, ok)
	}
	if len(got.AddrBlocks) != 1 || len(got.AddrBlocks[0].Addresses) != 1 {
		t.Fatalf("got addr blocks %+v", got.AddrBlocks)
	}
}

func TestMessageMinimalNoOptionalFields(t *testing.T) {
	msg := Message{Type: 2, AddrLen: 16}
	buf, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, n, err := DecodeMessage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) || got.OrigAddr != nil || got.HopLimit != nil || got.SeqNum != nil {
		t.Errorf("got %+v", got)
	}
}
