package wire

import (
	"errors"

	"github.com/dantte-lp/goslip/internal/checksum"
)

// TCP flag bits used by this client (RFC 793).
const (
	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagPSH = 0x08
	FlagACK = 0x10
	FlagRST = 0x04
)

const (
	tcpHeaderLen    = 20
	tcpHeaderLenSYN = 24
	controlLenSYN   = IPv4HeaderLen + tcpHeaderLenSYN // 44
	controlLenPlain = IPv4HeaderLen + tcpHeaderLen    // 40
)

// BuildControlSegment writes a flags-only TCP control segment (SYN, bare
// ACK, FIN+ACK, RST, ...): no payload, data offset 5 words normally or 6
// with a single MSS option when SYN is set, window always MSSWindow,
// urgent pointer always zero. Returns the total IPv4 datagram length.
func BuildControlSegment(buf []byte, src, dst [4]byte, id [2]byte, srcPort, dstPort uint16, flags byte, seqno, ackno [4]byte) int {
	size := controlLenPlain
	if flags&FlagSYN != 0 {
		size = controlLenSYN
	}

	PutIPv4Shell(buf, size, id)
	PutPseudoHeader(buf, src, dst, ProtoTCP, uint16(size-IPv4HeaderLen))

	tcp := buf[IPv4HeaderLen:size]
	tcp[0] = byte(srcPort >> 8)
	tcp[1] = byte(srcPort)
	tcp[2] = byte(dstPort >> 8)
	tcp[3] = byte(dstPort)
	copy(tcp[4:8], seqno[:])
	copy(tcp[8:12], ackno[:])
	if flags&FlagSYN != 0 {
		tcp[12] = 0x60 // data offset 6 words
	} else {
		tcp[12] = 0x50 // data offset 5 words
	}
	tcp[13] = flags
	tcp[14] = byte(MSSWindow >> 8)
	tcp[15] = byte(MSSWindow & 0xff)
	tcp[16] = 0 // checksum, filled below
	tcp[17] = 0
	tcp[18] = 0 // urgent pointer
	tcp[19] = 0
	if flags&FlagSYN != 0 {
		tcp[20] = 2 // MSS option kind
		tcp[21] = 4 // MSS option length
		tcp[22] = byte(MSSWindow >> 8)
		tcp[23] = byte(MSSWindow & 0xff)
	}

	s := checksum.Sum(buf[8:size])
	tcp[16] = byte(s >> 8)
	tcp[17] = byte(s)

	FinalizeIPv4(buf, src, dst, ProtoTCP)
	return size
}

// BuildDataSegment writes a PSH+ACK segment carrying payload, data offset
// 5 words (no options). Returns the total IPv4 datagram length, or an
// error if the payload would not fit in PacketSize.
func BuildDataSegment(buf []byte, src, dst [4]byte, id [2]byte, srcPort, dstPort uint16, seqno, ackno [4]byte, payload []byte) (int, error) {
	size := controlLenPlain + len(payload)
	if size >= PacketSize {
		return 0, errDataTooLarge
	}

	PutIPv4Shell(buf, size, id)
	PutPseudoHeader(buf, src, dst, ProtoTCP, uint16(size-IPv4HeaderLen))

	tcp := buf[IPv4HeaderLen:size]
	tcp[0] = byte(srcPort >> 8)
	tcp[1] = byte(srcPort)
	tcp[2] = byte(dstPort >> 8)
	tcp[3] = byte(dstPort)
	copy(tcp[4:8], seqno[:])
	copy(tcp[8:12], ackno[:])
	tcp[12] = 0x50
	tcp[13] = FlagPSH | FlagACK
	tcp[14] = byte(MSSWindow >> 8)
	tcp[15] = byte(MSSWindow & 0xff)
	tcp[16] = 0
	tcp[17] = 0
	tcp[18] = 0
	tcp[19] = 0
	copy(tcp[20:], payload)

	s := PadEvenChecksum(buf, 8, size)
	tcp[16] = byte(s >> 8)
	tcp[17] = byte(s)

	FinalizeIPv4(buf, src, dst, ProtoTCP)
	return size, nil
}

// TCPHeaderByteLen returns the byte length of the TCP header (including
// options) described by a segment's data-offset byte (buf[32] of the full
// IPv4 datagram). The offsetByte>>2 derivation is correct only because
// this stack never sets the low nibble (reserved bits) of that byte.
func TCPHeaderByteLen(offsetByte byte) int {
	return int(offsetByte >> 2)
}

// errDataTooLarge reports a payload that cannot fit in one packet buffer.
var errDataTooLarge = errors.New("wire: tcp payload exceeds packet size")
