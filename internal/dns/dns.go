// Package dns implements a one-shot A-record resolver: builds a single
// UDP query, ships it over the SLIP link, and parses the first matching
// reply.
//
// The query carries QDCOUNT=1, recursion-desired, a random transaction
// ID and a random UDP pseudo-port. The answer parser starts decoding at
// the first compressed-pointer byte (0xC0) after the question section;
// a reply that declares answers but carries no such byte there is
// rejected as malformed rather than parsed as a literal NAME.
package dns

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dantte-lp/goslip/internal/checksum"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/randid"
	"github.com/dantte-lp/goslip/internal/slip"
	"github.com/dantte-lp/goslip/internal/wire"
)

const (
	udpHeaderLen   = 8
	dnsHeaderLen   = 12
	maxUDPDNSSize  = 511
	maxLabelLen    = 63
	maxNameLen     = 253
	serverPort     = 53
	qtypeAClass    = 1 // QTYPE=A, QCLASS=IN, both value 1
	compressionTag = 0xC0
)

// MetricsRecorder is the narrow counter Resolve reports against.
// Satisfied structurally by *metrics.Collector.
type MetricsRecorder interface {
	IncChecksumFailures(proto string)
}

type noopMetrics struct{}

func (noopMetrics) IncChecksumFailures(string) {}

// ResolveOption configures optional Resolve behavior.
type ResolveOption func(*resolveOpts)

type resolveOpts struct {
	metrics MetricsRecorder
}

// WithMetrics records UDP checksum failures against m instead of the
// default no-op recorder.
func WithMetrics(m MetricsRecorder) ResolveOption {
	return func(o *resolveOpts) { o.metrics = m }
}

// query bundles the ephemeral identifiers a single resolve chooses.
type query struct {
	transID uint16
	srcPort uint16
}

// encodeName rewrites each '.'-separated label into a length-prefix byte
// sequence terminated by a zero byte, per RFC 1035 Section 3.1.
func encodeName(name string) ([]byte, error) {
	if len(name) == 0 || len(name) > maxNameLen {
		return nil, fmt.Errorf("dns: name length %d out of range: %w", len(name), errs.ErrQuestionMalformed)
	}

	labels := strings.Split(name, ".")
	out := make([]byte, 0, len(name)+2)
	for _, l := range labels {
		if len(l) == 0 || len(l) > maxLabelLen {
			return nil, fmt.Errorf("dns: label %q invalid length: %w", l, errs.ErrQuestionMalformed)
		}
		out = append(out, byte(len(l)))
		out = append(out, l...)
	}
	out = append(out, 0x00)
	return out, nil
}

// buildQuery writes a complete IPv4+UDP+DNS A-record query for name into
// buf and returns the total datagram length. Fails with ErrQueryTooBig if
// the resulting datagram would exceed 511 bytes.
func buildQuery(buf []byte, src, dst [4]byte, name string, q query, id [2]byte) (int, error) {
	encoded, err := encodeName(name)
	if err != nil {
		return 0, err
	}

	questionLen := len(encoded) + 4 // + QTYPE(2) + QCLASS(2)
	size := wire.IPv4HeaderLen + udpHeaderLen + dnsHeaderLen + questionLen
	if size > maxUDPDNSSize {
		return 0, fmt.Errorf("dns: query for %q is %d bytes: %w", name, size, errs.ErrQueryTooBig)
	}

	wire.PutIPv4Shell(buf, size, id)
	udpLen := uint16(size - wire.IPv4HeaderLen)
	wire.PutPseudoHeader(buf, src, dst, wire.ProtoUDP, udpLen)

	udp := buf[wire.IPv4HeaderLen : wire.IPv4HeaderLen+udpHeaderLen]
	udp[0] = byte(q.srcPort >> 8)
	udp[1] = byte(q.srcPort)
	udp[2] = byte(serverPort >> 8)
	udp[3] = byte(serverPort)
	udp[4] = byte(udpLen >> 8)
	udp[5] = byte(udpLen)
	udp[6] = 0
	udp[7] = 0

	dnsHdr := buf[wire.IPv4HeaderLen+udpHeaderLen : wire.IPv4HeaderLen+udpHeaderLen+dnsHeaderLen]
	dnsHdr[0] = byte(q.transID >> 8)
	dnsHdr[1] = byte(q.transID)
	dnsHdr[2] = 0x01 // recursion desired
	dnsHdr[3] = 0x00
	dnsHdr[4] = 0x00
	dnsHdr[5] = 0x01 // QDCOUNT=1
	dnsHdr[6] = 0x00
	dnsHdr[7] = 0x00
	dnsHdr[8] = 0x00
	dnsHdr[9] = 0x00
	dnsHdr[10] = 0x00
	dnsHdr[11] = 0x00

	qStart := wire.IPv4HeaderLen + udpHeaderLen + dnsHeaderLen
	copy(buf[qStart:], encoded)
	copy(buf[qStart+len(encoded):], []byte{0x00, qtypeAClass, 0x00, qtypeAClass})

	s := wire.PadEvenChecksum(buf, 8, size)
	udp[6] = byte(s >> 8)
	udp[7] = byte(s)

	wire.FinalizeIPv4(buf, src, dst, wire.ProtoUDP)
	return size, nil
}

// parseAnswer extracts the first A/IN/4-byte answer record, scanning
// forward from querySize (the end of the question section we sent).
// Returns the ANCOUNT observed at the matching record (>=1) and the
// 4-byte RDATA.
//
// The forward scan from querySize locates the first compressed-pointer
// (0xC0) byte before any record is decoded — the answer section need not
// begin at exactly querySize — and only once that byte is found does the
// per-record loop begin. If no such byte follows while ANCOUNT is
// nonzero, the answer NAME is literal and the reply is malformed. The
// answer count is decremented only on a skipped (non-matching) record,
// never on the record that is actually returned, and a non-compressed-
// pointer NAME at a later record's position is immediately malformed
// rather than skipped.
func parseAnswer(buf []byte, size, querySize int) (uint16, [4]byte, error) {
	var ip [4]byte

	answers := uint16(buf[34])<<8 | uint16(buf[35])

	j := querySize
	for j < size && buf[j] != compressionTag {
		j++
	}
	if j == size {
		if answers != 0 {
			return 0, ip, errs.ErrAnswerMalformed
		}
		return 0, ip, errs.ErrNoAnswers
	}

	for j < size {
		if answers == 0 {
			return 0, ip, errs.ErrNoAnswers
		}
		if buf[j] != compressionTag {
			return 0, ip, errs.ErrAnswerMalformed
		}
		if j+12 > size {
			return 0, ip, errs.ErrAnswerMalformed
		}
		typ := uint16(buf[j+2])<<8 | uint16(buf[j+3])
		cls := uint16(buf[j+4])<<8 | uint16(buf[j+5])
		rdlen := int(uint16(buf[j+10])<<8 | uint16(buf[j+11]))

		if typ != 1 || cls != 1 || rdlen != 4 {
			j += rdlen + 12
			answers--
			continue
		}

		if j+16 > size {
			return 0, ip, errs.ErrAnswerMalformed
		}
		copy(ip[:], buf[j+12:j+16])
		return answers, ip, nil
	}

	return 0, ip, errs.ErrNoAnswers
}

// Resolve performs a one-shot A-record lookup of name, querying dst
// (which must be a directly reachable recursive resolver) from src.
// Non-matching frames on the link are silently discarded; a UDP checksum
// failure aborts immediately since DNS over SLIP is never retransmitted.
func Resolve(logger *slog.Logger, link *slip.Link, rng *randid.Source, src, dst [4]byte, name string, opts ...ResolveOption) ([4]byte, error) {
	var result [4]byte
	if logger == nil {
		logger = slog.Default()
	}

	ro := resolveOpts{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&ro)
	}

	q := query{transID: rng.Uint16(), srcPort: rng.Uint16()}

	sendBuf := make([]byte, wire.PacketSize)
	querySize, err := buildQuery(sendBuf, src, dst, name, q, rng.Bytes2())
	if err != nil {
		return result, err
	}

	if err := link.Ship(sendBuf, querySize); err != nil {
		return result, fmt.Errorf("dns: ship query: %w", err)
	}

	recvBuf := make([]byte, wire.PacketSize)
	for {
		n, err := link.Slurp(recvBuf)
		if err != nil {
			return result, fmt.Errorf("dns: slurp reply: %w", err)
		}

		if recvBuf[9] != wire.ProtoUDP {
			continue
		}

		udpLen := uint16(recvBuf[24])<<8 | uint16(recvBuf[25])
		wire.ReconstructPseudoHeader(recvBuf, wire.ProtoUDP, udpLen)
		if !checksumValidUDP(recvBuf, n) {
			ro.metrics.IncChecksumFailures("udp")
			return result, fmt.Errorf("dns: %w", errs.ErrBadAnswer)
		}

		gotPort := uint16(recvBuf[22])<<8 | uint16(recvBuf[23])
		if gotPort != q.srcPort {
			continue
		}
		if recvBuf[30]&0x80 == 0 { // response bit
			continue
		}
		gotTransID := uint16(recvBuf[28])<<8 | uint16(recvBuf[29])
		if gotTransID != q.transID {
			continue
		}

		answers, ip, err := parseAnswer(recvBuf, n, querySize)
		if err != nil {
			return result, err
		}
		logger.Debug("dns: resolved", "name", name, "answers", answers, "ip", ip)
		return ip, nil
	}
}

// checksumValidUDP verifies the UDP checksum over recvBuf[8:n] (pseudo-
// header plus UDP header and payload), padding to even length if
// necessary, the same way every UDP verification in this stack
// reconstructs the pseudo-header before checking.
func checksumValidUDP(recvBuf []byte, n int) bool {
	span := recvBuf[8:n]
	if len(span)%2 != 0 {
		padded := make([]byte, len(span)+1)
		copy(padded, span)
		return checksum.Valid(padded)
	}
	return checksum.Valid(span)
}
