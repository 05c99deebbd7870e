package wire

import "github.com/dantte-lp/goslip/internal/checksum"

// ICMP echo constants. The identifier and timestamp fields are fixed
// literal bytes, not a real process ID or clock reading; echo peers
// never inspect them, they only copy them back.
const (
	icmpEchoRequest = 8
	icmpEchoCode    = 0

	// EchoPacketLen is the total IPv4 datagram length of every echo
	// request/reply this stack builds: 20 (IP) + 8 (ICMP header, with the
	// identifier and sequence number) + 56 (8-byte timestamp plus 48-byte
	// pattern).
	EchoPacketLen = 84

	icmpHeaderLen  = 8
	icmpPayloadLen = EchoPacketLen - IPv4HeaderLen - icmpHeaderLen
)

// EchoIdentifier is the fixed 2-byte ICMP identifier carried on every
// echo request.
var EchoIdentifier = [2]byte{0xE6, 0xC4}

// EchoTimestamp is the fixed 8-byte "timestamp" field carried on every
// echo request; it is opaque to the receiving peer.
var EchoTimestamp = [8]byte{0x67, 0xD7, 0x65, 0x97, 0x00, 0x06, 0x7E, 0x42}

// BuildEchoRequest writes a complete 84-byte ICMP echo request into buf,
// addressed src->dst, with the given 16-bit sequence number, and returns
// the datagram length (always EchoPacketLen).
func BuildEchoRequest(buf []byte, src, dst [4]byte, id [2]byte, seq uint16) int {
	PutIPv4Shell(buf, EchoPacketLen, id)

	icmp := buf[IPv4HeaderLen:EchoPacketLen]
	icmp[0] = icmpEchoRequest
	icmp[1] = icmpEchoCode
	icmp[2] = 0
	icmp[3] = 0
	icmp[4] = EchoIdentifier[0]
	icmp[5] = EchoIdentifier[1]
	icmp[6] = byte(seq >> 8)
	icmp[7] = byte(seq)
	copy(icmp[8:16], EchoTimestamp[:])
	for i := 16; i < icmpHeaderLen+icmpPayloadLen; i++ {
		icmp[i] = byte(i - 8)
	}

	s := checksum.Sum(icmp)
	icmp[2] = byte(s >> 8)
	icmp[3] = byte(s)

	FinalizeIPv4(buf, src, dst, ProtoICMP)
	return EchoPacketLen
}

// VerifyEchoReply reports whether the ICMP checksum over buf[20:size] is
// valid. The caller has already confirmed the datagram is ICMP.
func VerifyEchoReply(buf []byte, size int) bool {
	return checksum.Valid(buf[IPv4HeaderLen:size])
}
