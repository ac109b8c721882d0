package rfc5444

// Address block flag bits (spec.md §4.3).
const (
	abFlagHasHead      = 0x80
	abFlagHasFullTail  = 0x40
	abFlagHasZeroTail  = 0x20
	abFlagSinglePfxLen = 0x10
	abFlagPfxLenArray  = 0x08
)

// AddressBlock is a decompressed set of addresses plus the
// address-TLV block that follows it. Addresses[i]'s associated TLVs
// are whichever entries of TLVs have appliesTo(i) true.
type AddressBlock struct {
	Addresses []Address
	TLVs      []TLV
}

// commonHeadLen returns the length of the longest byte prefix shared
// by every address in addrs, over the first addrLen bytes.
func commonHeadLen(addrs []Address, addrLen int) int {
	if len(addrs) < 2 {
		return 0
	}
	n := addrLen
	for i := 1; i < len(addrs); i++ {
		for j := 0; j < n; j++ {
			if addrs[0].Bytes[j] != addrs[i].Bytes[j] {
				n = j
				break
			}
		}
	}
	return n
}

// commonTailLen returns the length of the longest byte suffix shared
// by every address in addrs, over the first addrLen bytes, not
// overlapping a head of length head.
func commonTailLen(addrs []Address, addrLen, head int) int {
	if len(addrs) < 2 {
		return 0
	}
	max := addrLen - head
	n := max
	for i := 1; i < len(addrs); i++ {
		for j := 0; j < n; j++ {
			a := addrLen - 1 - j
			if addrs[0].Bytes[a] != addrs[i].Bytes[a] {
				n = j
				break
			}
		}
	}
	return n
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// encodeAddressBlock compresses ab and appends its wire form to buf.
// addrLen is the message's address length (1…16, shared by the whole
// message per spec.md §4.3).
func encodeAddressBlock(buf []byte, ab AddressBlock, addrLen int) ([]byte, error) {
	n := len(ab.Addresses)
	if n == 0 {
		return nil, newDecodeError(EmptyAddrBlock, "address block has no addresses")
	}

	head := commonHeadLen(ab.Addresses, addrLen)
	tail := commonTailLen(ab.Addresses, addrLen, head)

	headBytes := ab.Addresses[0].Bytes[:head]
	tailBytes := ab.Addresses[0].Bytes[addrLen-tail : addrLen]

	var flags byte
	if head > 0 {
		flags |= abFlagHasHead
	}
	zeroTail := tail > 0 && allZero(tailBytes)
	if tail > 0 {
		if zeroTail {
			flags |= abFlagHasZeroTail
		} else {
			flags |= abFlagHasFullTail
		}
	}

	singlePfx := true
	for _, a := range ab.Addresses[1:] {
		if a.PfxLen != ab.Addresses[0].PfxLen {
			singlePfx = false
			break
		}
	}
	impliedPfx := addrLen * 8
	omitPfx := singlePfx && ab.Addresses[0].PfxLen == impliedPfx
	if singlePfx && !omitPfx {
		flags |= abFlagSinglePfxLen
	} else if !singlePfx {
		flags |= abFlagPfxLenArray
	}

	buf = append(buf, byte(n), flags)

	if flags&abFlagHasHead != 0 {
		buf = append(buf, byte(head))
		buf = append(buf, headBytes...)
	}
	if flags&(abFlagHasFullTail|abFlagHasZeroTail) != 0 {
		buf = append(buf, byte(tail))
		if flags&abFlagHasFullTail != 0 {
			buf = append(buf, tailBytes...)
		}
	}
	for _, a := range ab.Addresses {
		buf = append(buf, a.Bytes[head:addrLen-tail]...)
	}
	if flags&abFlagSinglePfxLen != 0 {
		buf = append(buf, byte(ab.Addresses[0].PfxLen))
	} else if flags&abFlagPfxLenArray != 0 {
		for _, a := range ab.Addresses {
			buf = append(buf, byte(a.PfxLen))
		}
	}

	return encodeTLVBlock(buf, ab.TLVs)
}

// decodeAddressBlock parses one address block (and its trailing TLV
// block) from c.
func decodeAddressBlock(c *cursor, addrLen int) (AddressBlock, error) {
	var ab AddressBlock

	numAddr, err := c.byte()
	if err != nil {
		return ab, err
	}
	if numAddr == 0 {
		return ab, newDecodeError(EmptyAddrBlock, "num_addr is 0")
	}
	n := int(numAddr)

	flags, err := c.byte()
	if err != nil {
		return ab, err
	}
	if flags&abFlagHasFullTail != 0 && flags&abFlagHasZeroTail != 0 {
		return ab, newDecodeError(BadMsgTailFlags, "both full-tail and zero-tail set")
	}
	if flags&abFlagSinglePfxLen != 0 && flags&abFlagPfxLenArray != 0 {
		return ab, newDecodeError(BadMsgPrefixFlags, "both single and array prefix-length flags set")
	}

	var head, tail int
	var headBytes, tailBytes []byte

	if flags&abFlagHasHead != 0 {
		h, err := c.byte()
		if err != nil {
			return ab, err
		}
		head = int(h)
		headBytes, err = c.bytes(head)
		if err != nil {
			return ab, err
		}
	}
	if flags&(abFlagHasFullTail|abFlagHasZeroTail) != 0 {
		tl, err := c.byte()
		if err != nil {
			return ab, err
		}
		tail = int(tl)
		if flags&abFlagHasFullTail != 0 {
			tailBytes, err = c.bytes(tail)
			if err != nil {
				return ab, err
			}
		} else {
			tailBytes = make([]byte, tail)
		}
	}

	midLen := addrLen - head - tail
	if midLen < 0 {
		return ab, newDecodeError(BadMsgTailFlags, "head+tail exceeds addr_len")
	}

	addrs := make([]Address, n)
	for i := 0; i < n; i++ {
		mid, err := c.bytes(midLen)
		if err != nil {
			return ab, err
		}
		var a Address
		a.Len = addrLen
		copy(a.Bytes[0:head], headBytes)
		copy(a.Bytes[head:head+midLen], mid)
		copy(a.Bytes[head+midLen:addrLen], tailBytes)
		addrs[i] = a
	}

	impliedPfx := addrLen * 8
	switch {
	case flags&abFlagSinglePfxLen != 0:
		p, err := c.byte()
		if err != nil {
			return ab, err
		}
		for i := range addrs {
			addrs[i].PfxLen = int(p)
		}
	case flags&abFlagPfxLenArray != 0:
		for i := range addrs {
			p, err := c.byte()
			if err != nil {
				return ab, err
			}
			addrs[i].PfxLen = int(p)
		}
	default:
		for i := range addrs {
			addrs[i].PfxLen = impliedPfx
		}
	}

	ab.Addresses = addrs

	tlvs, err := decodeTLVBlock(c)
	if err != nil {
		return ab, err
	}
	ab.TLVs = tlvs

	return ab, nil
}
