package engine

import (
	"net/netip"

	"aodvv2/internal/metric"
	"aodvv2/internal/rfc5444"
	"aodvv2/internal/store"
)

// BuildRREQ constructs a self-originated RREQ (as opposed to the
// forwarding case in rreq.go's forwardRREQ): OrigPrefix is client's own
// prefix, TargPrefix is dst, and orig_metric is the client's configured
// cost rather than an accumulated path metric (spec.md §4.7 step 5).
// Exported so the route-discovery driver (C7) can build a message
// without duplicating the engine's TLV layout.
func BuildRREQ(hopLimit uint8, client *store.Client, dst netip.Addr, origSeqNum, targSeqNum uint16) (rfc5444.Message, error) {
	b := rfc5444.NewMessageBuilder(MsgRREQ, 16)
	b.HopLimit = &hopLimit

	origIdx := b.AddAddress(rfc5444.AddressFromPrefix(client.Addr, client.PfxLen))
	b.AddAddressTLV(origIdx, mkAddrTypeTLV(addrOrigPrefix))
	b.AddAddressTLV(origIdx, mkSeqNumTLV(origSeqNum))
	b.AddAddressTLV(origIdx, mkMetricTLV(metric.HopCount, client.Cost))

	targIdx := b.AddAddress(rfc5444.Host(dst))
	b.AddAddressTLV(targIdx, mkAddrTypeTLV(addrTargPrefix))
	if targSeqNum != 0 {
		b.AddAddressTLV(targIdx, mkSeqNumTLV(targSeqNum))
	}

	return b.Build()
}
