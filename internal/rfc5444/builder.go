package rfc5444

// MessageBuilder assembles one Message, deferring the choice of how
// many address blocks to emit to Build's segmentation step.
type MessageBuilder struct {
	Type     uint8
	AddrLen  int
	OrigAddr *Address
	HopLimit *uint8
	HopCount *uint8
	SeqNum   *uint16
	MsgTLVs  []TLV

	addrs    []Address
	addrTLVs []TLV // IndexStart/IndexStop index into addrs (global index)
}

// NewMessageBuilder starts a message of the given type whose addresses
// are addrLen octets each (16 for full IPv6, fewer once the originator
// prefix's host bits are known to be redundant).
func NewMessageBuilder(msgType uint8, addrLen int) *MessageBuilder {
	return &MessageBuilder{Type: msgType, AddrLen: addrLen}
}

// AddAddress appends addr to the message and returns its global index,
// for use with AddAddressTLV.
func (b *MessageBuilder) AddAddress(addr Address) int {
	b.addrs = append(b.addrs, addr)
	return len(b.addrs) - 1
}

// AddMessageTLV adds a message-level TLV.
func (b *MessageBuilder) AddMessageTLV(t TLV) {
	b.MsgTLVs = append(b.MsgTLVs, t)
}

// AddAddressTLV attaches t to the address at the given global index.
func (b *MessageBuilder) AddAddressTLV(index int, t TLV) {
	idx := uint8(index)
	t.IndexStart = &idx
	t.IndexStop = nil
	b.addrTLVs = append(b.addrTLVs, t)
}

// Build assembles the Message, running the address-block segmentation
// step over the addresses added so far (spec.md §4.3).
func (b *MessageBuilder) Build() (Message, error) {
	return Message{
		Type:       b.Type,
		AddrLen:    b.AddrLen,
		OrigAddr:   b.OrigAddr,
		HopLimit:   b.HopLimit,
		HopCount:   b.HopCount,
		SeqNum:     b.SeqNum,
		TLVs:       b.MsgTLVs,
		AddrBlocks: segmentAddresses(b.addrs, b.addrTLVs, b.AddrLen),
	}, nil
}

// segmentAddresses partitions addrs into one or more address blocks
// using a dynamic-programming pass: for every possible split point it
// tracks the cheaper of continuing the current block or closing it and
// starting a new one, then emits the cheapest segmentation overall
// (spec.md §4.3). addrTLVs index into the original, unsegmented addrs
// slice and are translated to per-block-local indices on output.
func segmentAddresses(addrs []Address, addrTLVs []TLV, addrLen int) []AddressBlock {
	n := len(addrs)
	if n == 0 {
		return nil
	}

	// cost[i] is the cheapest encoding, in bytes, of addrs[0:i].
	// from[i] is the start of the last block in that optimum.
	cost := make([]int, n+1)
	from := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best := -1
		bestCost := -1
		for j := 0; j < i; j++ {
			c := cost[j] + addressBlockCost(addrs[j:i], addrLen)
			if bestCost < 0 || c < bestCost {
				bestCost = c
				best = j
			}
		}
		cost[i] = bestCost
		from[i] = best
	}

	var bounds []int
	for i := n; i > 0; i = from[i] {
		bounds = append(bounds, i)
	}
	bounds = append(bounds, 0)
	for l, r := 0, len(bounds)-1; l < r; l, r = l+1, r-1 {
		bounds[l], bounds[r] = bounds[r], bounds[l]
	}

	blocks := make([]AddressBlock, 0, len(bounds)-1)
	for k := 0; k < len(bounds)-1; k++ {
		start, end := bounds[k], bounds[k+1]
		blocks = append(blocks, AddressBlock{
			Addresses: append([]Address(nil), addrs[start:end]...),
			TLVs:      localizeTLVs(addrTLVs, start, end),
		})
	}
	return blocks
}

// addressBlockCost estimates the wire size, in bytes, of encoding
// addrs as a single address block (mirrors encodeAddressBlock's
// compression choices, excluding the trailing TLV block, which is
// unaffected by how addresses are grouped).
func addressBlockCost(addrs []Address, addrLen int) int {
	head := commonHeadLen(addrs, addrLen)
	tail := commonTailLen(addrs, addrLen, head)

	cost := 2 // num_addr + flags
	if head > 0 {
		cost += 1 + head
	}
	if tail > 0 {
		cost++
		if !allZero(addrs[0].Bytes[addrLen-tail : addrLen]) {
			cost += tail
		}
	}
	cost += (addrLen - head - tail) * len(addrs)

	singlePfx := true
	for _, a := range addrs[1:] {
		if a.PfxLen != addrs[0].PfxLen {
			singlePfx = false
			break
		}
	}
	switch {
	case singlePfx && addrs[0].PfxLen == addrLen*8:
		// implied, no bytes
	case singlePfx:
		cost++
	default:
		cost += len(addrs)
	}
	return cost
}

// localizeTLVs returns the subset of global-indexed tlvs that apply
// entirely within [start, end), reindexed to be local to that range.
// A TLV whose range straddles a block boundary is dropped; callers in
// this codebase never span more than one address per TLV, so this
// never arises in practice.
func localizeTLVs(tlvs []TLV, start, end int) []TLV {
	var out []TLV
	for _, t := range tlvs {
		if t.IndexStart == nil {
			out = append(out, t)
			continue
		}
		gs := int(*t.IndexStart)
		ge := gs
		if t.IndexStop != nil {
			ge = int(*t.IndexStop)
		}
		if gs < start || ge >= end {
			continue
		}
		nt := t
		ls := uint8(gs - start)
		nt.IndexStart = &ls
		if t.IndexStop != nil {
			le := uint8(ge - start)
			nt.IndexStop = &le
		}
		out = append(out, nt)
	}
	return out
}
