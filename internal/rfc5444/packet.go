package rfc5444

// Packet-header flag bits, sharing the version-and-flags octet with
// the 4-bit version in the low nibble (spec.md §4.3).
const (
	pktFlagSeqNum = 0x80
	pktFlagTLV    = 0x40
)

// Version is the only packet version this codec understands; any
// other value drops the whole packet (spec.md §4.3).
const Version = 0

// Packet is one RFC 5444 packet: a version/flags octet, an optional
// packet sequence number, an optional packet-level TLV block, and
// zero or more messages.
type Packet struct {
	SeqNum   *uint16
	TLVs     []TLV
	Messages []Message
}

// Encode serializes p to its wire form.
func (p Packet) Encode() ([]byte, error) {
	flags := byte(Version) & 0x0F
	if p.SeqNum != nil {
		flags |= pktFlagSeqNum
	}
	hasTLV := len(p.TLVs) > 0
	if hasTLV {
		flags |= pktFlagTLV
	}

	out := []byte{flags}
	if p.SeqNum != nil {
		out = append(out, byte(*p.SeqNum>>8), byte(*p.SeqNum))
	}
	if hasTLV {
		var err error
		out, err = encodeTLVBlock(out, p.TLVs)
		if err != nil {
			return nil, err
		}
	}
	for _, m := range p.Messages {
		mb, err := m.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, mb...)
	}
	return out, nil
}

// DecodePacket parses a complete packet from buf. A version octet
// other than 0 drops the whole packet with UnsupportedVersion.
func DecodePacket(buf []byte) (Packet, error) {
	var p Packet
	c := newCursor(buf)

	flags, err := c.byte()
	if err != nil {
		return p, err
	}
	if flags&0x0F != Version {
		return p, newDecodeError(UnsupportedVersion, "packet version octet is not 0")
	}

	if flags&pktFlagSeqNum != 0 {
		v, err := c.uint16()
		if err != nil {
			return p, err
		}
		p.SeqNum = &v
	}
	if flags&pktFlagTLV != 0 {
		tlvs, err := decodeTLVBlock(c)
		if err != nil {
			return p, err
		}
		p.TLVs = tlvs
	}

	for c.remaining() > 0 {
		msg, n, err := DecodeMessage(c.buf[c.pos:])
		if err != nil {
			return p, err
		}
		p.Messages = append(p.Messages, msg)
		c.pos += n
	}

	return p, nil
}
