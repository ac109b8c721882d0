package rfc5444

// Message-header flag bits occupy the upper nibble of the
// flags-and-address-length octet; the lower nibble holds addr_len-1
// (spec.md §4.3).
const (
	msgFlagOrigAddr = 0x80
	msgFlagHopLimit = 0x40
	msgFlagHopCount = 0x20
	msgFlagSeqNum   = 0x10
)

// Message is one RFC 5444 message: a fixed header, an optional
// originator address/hop-limit/hop-count/seqnum, a message-level TLV
// block, and zero or more address blocks each with their own TLVs.
type Message struct {
	Type    uint8
	AddrLen int // 1…16 octets per address in this message

	OrigAddr *Address
	HopLimit *uint8
	HopCount *uint8
	SeqNum   *uint16

	TLVs       []TLV
	AddrBlocks []AddressBlock
}

func (m Message) flagsByte() byte {
	f := byte(m.AddrLen-1) & 0x0F
	if m.OrigAddr != nil {
		f |= msgFlagOrigAddr
	}
	if m.HopLimit != nil {
		f |= msgFlagHopLimit
	}
	if m.HopCount != nil {
		f |= msgFlagHopCount
	}
	if m.SeqNum != nil {
		f |= msgFlagSeqNum
	}
	return f
}

// Encode serializes m to its wire form, including the leading
// type/flags/size header.
func (m Message) Encode() ([]byte, error) {
	if m.AddrLen < 1 || m.AddrLen > 16 {
		return nil, newDecodeError(EndOfBuffer, "addr_len out of range")
	}

	var body []byte
	if m.OrigAddr != nil {
		body = append(body, m.OrigAddr.Bytes[:m.AddrLen]...)
	}
	if m.HopLimit != nil {
		body = append(body, *m.HopLimit)
	}
	if m.HopCount != nil {
		body = append(body, *m.HopCount)
	}
	if m.SeqNum != nil {
		body = append(body, byte(*m.SeqNum>>8), byte(*m.SeqNum))
	}

	var err error
	body, err = encodeTLVBlock(body, m.TLVs)
	if err != nil {
		return nil, err
	}

	for _, ab := range m.AddrBlocks {
		body, err = encodeAddressBlock(body, ab, m.AddrLen)
		if err != nil {
			return nil, err
		}
	}

	total := 4 + len(body) // type(1) + flags(1) + size(2) + body
	out := make([]byte, 0, total)
	out = append(out, m.Type, m.flagsByte())
	out = append(out, byte(total>>8), byte(total))
	out = append(out, body...)
	return out, nil
}

// DecodeMessage parses one message, including its header, from buf.
// It returns the message and the number of bytes consumed.
func DecodeMessage(buf []byte) (Message, int, error) {
	var m Message
	c := newCursor(buf)

	typ, err := c.byte()
	if err != nil {
		return m, 0, err
	}
	flags, err := c.byte()
	if err != nil {
		return m, 0, err
	}
	size, err := c.uint16()
	if err != nil {
		return m, 0, err
	}
	if int(size) > len(buf) {
		return m, 0, newDecodeError(EndOfBuffer, "message size exceeds buffer")
	}

	m.Type = typ
	m.AddrLen = int(flags&0x0F) + 1

	body := newCursor(buf[4:size])

	if flags&msgFlagOrigAddr != 0 {
		b, err := body.bytes(m.AddrLen)
		if err != nil {
			return m, 0, err
		}
		var a Address
		a.Len = m.AddrLen
		copy(a.Bytes[:], b)
		m.OrigAddr = &a
	}
	if flags&msgFlagHopLimit != 0 {
		v, err := body.byte()
		if err != nil {
			return m, 0, err
		}
		m.HopLimit = &v
	}
	if flags&msgFlagHopCount != 0 {
		v, err := body.byte()
		if err != nil {
			return m, 0, err
		}
		m.HopCount = &v
	}
	if flags&msgFlagSeqNum != 0 {
		v, err := body.uint16()
		if err != nil {
			return m, 0, err
		}
		m.SeqNum = &v
	}

	tlvs, err := decodeTLVBlock(body)
	if err != nil {
		return m, 0, err
	}
	m.TLVs = tlvs

	for body.remaining() > 0 {
		ab, err := decodeAddressBlock(body, m.AddrLen)
		if err != nil {
			return m, 0, err
		}
		m.AddrBlocks = append(m.AddrBlocks, ab)
	}

	return m, int(size), nil
}

// TLV returns the first message-level TLV with the given type (and,
// if ext is non-nil, matching type-extension), and whether one was
// found.
func (m Message) TLV(typ uint8, ext *uint8) (TLV, bool) {
	for _, t := range m.TLVs {
		if t.Type != typ {
			continue
		}
		if ext == nil || (t.TypeExt != nil && *t.TypeExt == *ext) {
			return t, true
		}
	}
	return TLV{}, false
}
