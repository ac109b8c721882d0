package rfc5444

// TLV flag bits (spec.md §4.3: "type, flags, optional type-extension,
// optional index or index range ..., optional value with optional
// extended-length").
const (
	tlvFlagTypeExt    = 0x80
	tlvFlagSingleIdx  = 0x40
	tlvFlagIdxRange   = 0x20
	tlvFlagHasValue   = 0x10
	tlvFlagExtLen     = 0x08
)

// TLV is one type/flags/[type-ext]/[index(es)]/[value] tuple. The
// same (Type, TypeExt) pair may appear multiple times in one block;
// readers receive each occurrence in order (spec.md §4.3).
type TLV struct {
	Type uint8
	// TypeExt, when non-nil, is the type-extension octet (e.g. the
	// metric type for PATH_METRIC).
	TypeExt *uint8
	// IndexStart/IndexStop address which addresses in the enclosing
	// address block this TLV applies to. Both nil means "applies to
	// every address in the block" (only legal for address-block TLVs;
	// message-level TLVs never set these).
	IndexStart *uint8
	IndexStop  *uint8
	// Value is the TLV's payload, or nil if it carries none.
	Value []byte
}

// SingleIndex builds an address-TLV index referring to exactly one
// address in the block.
func SingleIndex(i uint8) (start, stop *uint8) {
	return &i, nil
}

func (t TLV) flags() (byte, error) {
	var f byte
	if t.TypeExt != nil {
		f |= tlvFlagTypeExt
	}
	switch {
	case t.IndexStart != nil && t.IndexStop != nil && *t.IndexStop != *t.IndexStart:
		f |= tlvFlagIdxRange
	case t.IndexStart != nil:
		f |= tlvFlagSingleIdx
	case t.IndexStop != nil:
		return 0, newDecodeError(BadTLVIdxFlags, "IndexStop set without IndexStart")
	}
	if t.Value != nil {
		f |= tlvFlagHasValue
		if len(t.Value) > 255 {
			f |= tlvFlagExtLen
		}
	}
	return f, nil
}

// encode appends the wire representation of t to buf.
func (t TLV) encode(buf []byte) ([]byte, error) {
	flags, err := t.flags()
	if err != nil {
		return nil, err
	}
	buf = append(buf, flags, t.Type)
	if t.TypeExt != nil {
		buf = append(buf, *t.TypeExt)
	}
	if flags&tlvFlagSingleIdx != 0 {
		buf = append(buf, *t.IndexStart)
	} else if flags&tlvFlagIdxRange != 0 {
		buf = append(buf, *t.IndexStart, *t.IndexStop)
	}
	if flags&tlvFlagHasValue != 0 {
		if flags&tlvFlagExtLen != 0 {
			n := len(t.Value)
			buf = append(buf, byte(n>>8), byte(n))
		} else {
			buf = append(buf, byte(len(t.Value)))
		}
		buf = append(buf, t.Value...)
	}
	return buf, nil
}

// decodeTLV parses one TLV from c.
func decodeTLV(c *cursor) (TLV, error) {
	var t TLV

	flags, err := c.byte()
	if err != nil {
		return t, err
	}
	if flags&tlvFlagSingleIdx != 0 && flags&tlvFlagIdxRange != 0 {
		return t, newDecodeError(BadTLVIdxFlags, "both single-index and index-range set")
	}
	if flags&tlvFlagExtLen != 0 && flags&tlvFlagHasValue == 0 {
		return t, newDecodeError(BadTLVValueFlags, "extended-length set without a value")
	}

	typ, err := c.byte()
	if err != nil {
		return t, err
	}
	t.Type = typ

	if flags&tlvFlagTypeExt != 0 {
		ext, err := c.byte()
		if err != nil {
			return t, err
		}
		t.TypeExt = &ext
	}

	if flags&tlvFlagSingleIdx != 0 {
		idx, err := c.byte()
		if err != nil {
			return t, err
		}
		t.IndexStart = &idx
	} else if flags&tlvFlagIdxRange != 0 {
		start, err := c.byte()
		if err != nil {
			return t, err
		}
		stop, err := c.byte()
		if err != nil {
			return t, err
		}
		t.IndexStart = &start
		t.IndexStop = &stop
	}

	if flags&tlvFlagHasValue != 0 {
		var n int
		if flags&tlvFlagExtLen != 0 {
			hi, err := c.byte()
			if err != nil {
				return t, err
			}
			lo, err := c.byte()
			if err != nil {
				return t, err
			}
			n = int(hi)<<8 | int(lo)
		} else {
			lo, err := c.byte()
			if err != nil {
				return t, err
			}
			n = int(lo)
		}
		val, err := c.bytes(n)
		if err != nil {
			return t, newDecodeError(BadTLVLength, "value length exceeds buffer")
		}
		t.Value = append([]byte(nil), val...)
	}

	return t, nil
}

// appliesTo reports whether this address-block TLV applies to address
// index i.
func (t TLV) appliesTo(i int) bool {
	if t.IndexStart == nil {
		return true
	}
	start := int(*t.IndexStart)
	stop := start
	if t.IndexStop != nil {
		stop = int(*t.IndexStop)
	}
	return i >= start && i <= stop
}
