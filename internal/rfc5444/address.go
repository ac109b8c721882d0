package rfc5444

import "net/netip"

// Address is the codec's internal representation of an RFC 5444
// address: raw bytes (addr_len octets, 1…16) plus a prefix length.
// Address blocks carry addresses in this form so that compression
// (common head/tail/mid, per-address or shared prefix length) can
// operate uniformly regardless of whether the underlying address is
// an IPv6 address, IPv6 prefix, or (in principle) something shorter.
type Address struct {
	Bytes    [16]byte
	Len      int // octets actually significant, 1…16
	PfxLen   int // 1…128 (or Len*8 for a host address)
}

// AddressFromPrefix converts an IPv6 address with an explicit prefix
// length into the codec's internal form (spec.md §8 S5).
func AddressFromPrefix(addr netip.Addr, pfxLen int) Address {
	a := Address{Len: 16, PfxLen: pfxLen}
	if addr.Is4() {
		v4 := addr.As4()
		copy(a.Bytes[12:], v4[:])
		a.Bytes[10], a.Bytes[11] = 0xff, 0xff
	} else {
		a.Bytes = addr.As16()
	}
	return a
}

// Host converts an IPv6 address into the internal form with a full
// /128 prefix length — the common case for an address that names a
// single host rather than a prefix.
func Host(addr netip.Addr) Address {
	return AddressFromPrefix(addr, 128)
}

// IP reconstructs the IPv6 address from the internal form, discarding
// the prefix length (spec.md §8 S5: "the resulting IPv6 address
// equals the input").
func (a Address) IP() netip.Addr {
	return netip.AddrFrom16(a.Bytes)
}

// Prefix reconstructs the address as a netip.Prefix using PfxLen.
func (a Address) Prefix() netip.Prefix {
	return netip.PrefixFrom(a.IP(), a.PfxLen).Masked()
}

// Contains reports whether a (used as a prefix) contains addr, using
// longest-prefix-match semantics.
func (a Address) Contains(addr netip.Addr) bool {
	return a.Prefix().Contains(addr)
}
