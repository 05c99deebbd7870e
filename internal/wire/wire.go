// Package wire builds and verifies the IPv4/UDP/ICMP/TCP byte layouts
// shared by the protocol clients. Builders write at fixed offsets into a
// caller-owned buffer rather than hiding behind a typed header object,
// keeping the pseudo-header overwrite trick explicit: bytes [8:20) of
// the buffer serve first as the UDP/TCP pseudo-header and are then
// overwritten with the real IPv4 middle fields once the transport
// checksum has been computed.
package wire

import "github.com/dantte-lp/goslip/internal/checksum"

// PacketSize is the scratch buffer size every builder assumes.
const PacketSize = 1536

// MSSWindow is both the MSS option value advertised on SYN and the fixed
// TCP window this single-segment client always offers.
const MSSWindow = 256

// IPv4 protocol numbers used by this stack.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// IPv4HeaderLen is the fixed (no-options) IPv4 header length.
const IPv4HeaderLen = 20

// PutIPv4Shell writes the common IPv4 prelude: version/IHL, DSCP/ECN
// zero, total length, identification, and zeroed flags/fragment offset.
// The caller must still call FinalizeIPv4 once the payload is in place.
func PutIPv4Shell(buf []byte, totalLen int, id [2]byte) {
	buf[0] = 0x45
	buf[1] = 0x00
	buf[2] = byte(totalLen >> 8)
	buf[3] = byte(totalLen)
	buf[4] = id[0]
	buf[5] = id[1]
	buf[6] = 0x00
	buf[7] = 0x00
}

// PutPseudoHeader writes the UDP/TCP pseudo-header (source IP,
// destination IP, zero, protocol, L4 length) into buf[8:20], exactly the
// bytes later overwritten by FinalizeIPv4.
func PutPseudoHeader(buf []byte, src, dst [4]byte, proto byte, l4Len uint16) {
	copy(buf[8:12], src[:])
	copy(buf[12:16], dst[:])
	buf[16] = 0x00
	buf[17] = proto
	buf[18] = byte(l4Len >> 8)
	buf[19] = byte(l4Len)
}

// ReconstructPseudoHeader rebuilds the UDP/TCP pseudo-header for a
// received datagram already sitting in buf, reusing the source and
// destination addresses already present at buf[12:16]/buf[16:20] (the
// real IPv4 header SLIP handed back) rather than the caller's own
// notion of "my address" and "peer address" — for an inbound reply
// those are reversed from the outbound case, and the addresses already
// in the buffer are authoritative.
func ReconstructPseudoHeader(buf []byte, proto byte, l4Len uint16) {
	var srcIP, dstIP [4]byte
	copy(srcIP[:], buf[12:16])
	copy(dstIP[:], buf[16:20])
	PutPseudoHeader(buf, srcIP, dstIP, proto, l4Len)
}

// FinalizeIPv4 overwrites buf[8:20] (previously the pseudo-header) with
// the real IPv4 middle fields — TTL 64, the given protocol, the header
// checksum, source and destination — completing the 20-byte IPv4 header
// begun by PutIPv4Shell.
func FinalizeIPv4(buf []byte, src, dst [4]byte, proto byte) {
	buf[8] = 64
	buf[9] = proto
	buf[10] = 0
	buf[11] = 0
	copy(buf[12:16], src[:])
	copy(buf[16:20], dst[:])
	s := checksum.Sum(buf[0:IPv4HeaderLen])
	buf[10] = byte(s >> 8)
	buf[11] = byte(s)
}

// PadEvenChecksum computes the RFC 1071 checksum over buf[from:to],
// first copying into scratch and zero-padding by one byte if the span is
// odd, the way every UDP/TCP checksum computation in this stack handles
// an odd payload length.
func PadEvenChecksum(buf []byte, from, to int) uint16 {
	span := buf[from:to]
	if len(span)%2 == 0 {
		return checksum.Sum(span)
	}
	padded := make([]byte, len(span)+1)
	copy(padded, span)
	return checksum.Sum(padded)
}
