package rfc5444

// encodeTLVBlock appends a 2-byte length prefix followed by the
// encoded tlvs, so a reader can skip or bound the block without
// decoding every TLV (used for both the message-level TLV block and
// each address block's trailing TLV block, spec.md §4.3).
func encodeTLVBlock(buf []byte, tlvs []TLV) ([]byte, error) {
	var body []byte
	for _, t := range tlvs {
		var err error
		body, err = t.encode(body)
		if err != nil {
			return nil, err
		}
	}
	n := len(body)
	buf = append(buf, byte(n>>8), byte(n))
	buf = append(buf, body...)
	return buf, nil
}

// decodeTLVBlock reads a 2-byte length prefix and decodes that many
// bytes' worth of TLVs.
func decodeTLVBlock(c *cursor) ([]TLV, error) {
	n, err := c.uint16()
	if err != nil {
		return nil, err
	}
	raw, err := c.bytes(int(n))
	if err != nil {
		return nil, newDecodeError(BadTLVLength, "tlv block length exceeds buffer")
	}
	sub := newCursor(raw)
	var tlvs []TLV
	for sub.remaining() > 0 {
		t, err := decodeTLV(sub)
		if err != nil {
			return nil, err
		}
		tlvs = append(tlvs, t)
	}
	return tlvs, nil
}
