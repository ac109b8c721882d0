// Package engine implements C5, the message engine: reader-side
// validation and processing of RREQ/RREP/RREP_Ack/RERR, and the
// writer-side helpers that serialize replies and forwards back onto
// the RFC 5444 wire.
package engine

// Message types (spec.md §6, matching the IANA-registered AODVv2
// values also used by the original C implementation's msg.h).
const (
	MsgRREQ    uint8 = 10
	MsgRREP    uint8 = 11
	MsgRERR    uint8 = 12
	MsgRREPAck uint8 = 13
)

// Message-level TLV types.
const (
	tlvACKREQ    uint8 = 1
	tlvTimestamp uint8 = 2 // RFC 7182 TIMESTAMP
)

// Address-level TLV types.
const (
	tlvPathMetric uint8 = 1
	tlvSeqNum     uint8 = 2
	tlvAddrType   uint8 = 3
	// tlvUnreachableSeqNum carries a RERR address's last known sequence
	// number (msg.h's RFC5444_MSGTLV_UNREACHABLE_NODE_SEQNUM).
	tlvUnreachableSeqNum uint8 = 4
)

// ADDRESS_TYPE single-octet values.
const (
	addrUnspecified uint8 = 0 // SeqNoRtr
	addrOrigPrefix  uint8 = 1
	addrTargPrefix  uint8 = 2
)
