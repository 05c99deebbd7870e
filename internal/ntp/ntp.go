// Package ntp implements a single-query NTPv3 client: one 48-byte
// request, one reply, and extraction of stratum, reference identifier,
// and transmit timestamp. The human-readable formatting of the result
// is left to the caller.
package ntp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/goslip/internal/checksum"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/randid"
	"github.com/dantte-lp/goslip/internal/slip"
	"github.com/dantte-lp/goslip/internal/wire"
)

const (
	udpHeaderLen  = 8
	requestLen    = 48
	responseLen   = wire.IPv4HeaderLen + udpHeaderLen + requestLen // 76
	serverPort    = 123
	ntpEpochDelta = 2208988800 // seconds between 1900-01-01 and 1970-01-01

	// NTP payload field offsets, relative to the start of the NTP payload
	// (buf[28]).
	offStratum   = 1
	offRefID     = 12
	offTransmit  = 40
	firstOctetLI = 0x1B // LI=0, VN=3, Mode=3 (client)
)

// MetricsRecorder is the narrow counter Query reports against. Satisfied
// structurally by *metrics.Collector.
type MetricsRecorder interface {
	IncChecksumFailures(proto string)
}

type noopMetrics struct{}

func (noopMetrics) IncChecksumFailures(string) {}

// QueryOption configures optional Query behavior.
type QueryOption func(*queryOpts)

type queryOpts struct {
	metrics MetricsRecorder
}

// WithMetrics records UDP checksum failures against m instead of the
// default no-op recorder.
func WithMetrics(m MetricsRecorder) QueryOption {
	return func(o *queryOpts) { o.metrics = m }
}

// Result is everything extracted from a single NTP query/response.
type Result struct {
	Stratum      byte
	RefID        [4]byte
	RefIDText    string // ASCII refid (stratum 1) or dotted-quad (otherwise)
	TransmitTime time.Time
}

// refIDText formats RefID per the stratum-dependent rule of RFC 1305:
// stratum 1 means a primary reference source, whose refid is a
// 4-character ASCII string (truncated at the first non-printable byte);
// any other stratum treats the same 4 bytes as the upstream peer's IPv4
// address.
func refIDText(stratum byte, refID [4]byte) string {
	if stratum == 1 {
		out := make([]byte, 0, 4)
		for _, b := range refID {
			if b < 32 || b > 126 {
				break
			}
			out = append(out, b)
		}
		return string(out)
	}
	return fmt.Sprintf("%d.%d.%d.%d", refID[0], refID[1], refID[2], refID[3])
}

func buildRequest(buf []byte, src, dst [4]byte, id [2]byte, srcPort uint16) int {
	size := responseLen

	wire.PutIPv4Shell(buf, size, id)
	udpLen := uint16(size - wire.IPv4HeaderLen)
	wire.PutPseudoHeader(buf, src, dst, wire.ProtoUDP, udpLen)

	udp := buf[wire.IPv4HeaderLen : wire.IPv4HeaderLen+udpHeaderLen]
	udp[0] = byte(srcPort >> 8)
	udp[1] = byte(srcPort)
	udp[2] = byte(serverPort >> 8)
	udp[3] = byte(serverPort)
	udp[4] = byte(udpLen >> 8)
	udp[5] = byte(udpLen)
	udp[6] = 0
	udp[7] = 0

	ntpStart := wire.IPv4HeaderLen + udpHeaderLen
	ntp := buf[ntpStart:size]
	for i := range ntp {
		ntp[i] = 0
	}
	ntp[0] = firstOctetLI

	s := wire.PadEvenChecksum(buf, 8, size)
	udp[6] = byte(s >> 8)
	udp[7] = byte(s)

	wire.FinalizeIPv4(buf, src, dst, wire.ProtoUDP)
	return size
}

// Query sends one NTP request to dst from src and returns the first
// matching, checksum-valid reply. Neither DNS nor NTP is retransmitted
// over this link, so a truncated, odd-length, or checksum-failing
// response is fatal to the query (ErrCorruptResponse / ErrBadAnswer).
func Query(logger *slog.Logger, link *slip.Link, rng *randid.Source, src, dst [4]byte, opts ...QueryOption) (Result, error) {
	var res Result
	if logger == nil {
		logger = slog.Default()
	}

	qo := queryOpts{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&qo)
	}

	srcPort := rng.Uint16()

	sendBuf := make([]byte, wire.PacketSize)
	size := buildRequest(sendBuf, src, dst, rng.Bytes2(), srcPort)

	if err := link.Ship(sendBuf, size); err != nil {
		return res, fmt.Errorf("ntp: ship request: %w", err)
	}

	recvBuf := make([]byte, wire.PacketSize)
	for {
		n, err := link.Slurp(recvBuf)
		if err != nil {
			return res, fmt.Errorf("ntp: slurp reply: %w", err)
		}

		if recvBuf[9] != wire.ProtoUDP {
			continue
		}

		udpLen := uint16(recvBuf[24])<<8 | uint16(recvBuf[25])
		wire.ReconstructPseudoHeader(recvBuf, wire.ProtoUDP, udpLen)

		gotPort := uint16(recvBuf[22])<<8 | uint16(recvBuf[23])
		if gotPort != srcPort {
			continue
		}

		if n%2 != 0 {
			return res, fmt.Errorf("ntp: %w", errs.ErrCorruptResponse)
		}
		if !checksumValidUDP(recvBuf, n) {
			qo.metrics.IncChecksumFailures("udp")
			return res, fmt.Errorf("ntp: %w", errs.ErrBadAnswer)
		}
		if n < responseLen {
			return res, fmt.Errorf("ntp: %w", errs.ErrCorruptResponse)
		}

		ntpStart := wire.IPv4HeaderLen + udpHeaderLen
		res.Stratum = recvBuf[ntpStart+offStratum]
		copy(res.RefID[:], recvBuf[ntpStart+offRefID:ntpStart+offRefID+4])
		res.RefIDText = refIDText(res.Stratum, res.RefID)

		seconds := uint32(recvBuf[ntpStart+offTransmit])<<24 |
			uint32(recvBuf[ntpStart+offTransmit+1])<<16 |
			uint32(recvBuf[ntpStart+offTransmit+2])<<8 |
			uint32(recvBuf[ntpStart+offTransmit+3])
		res.TransmitTime = time.Unix(int64(seconds)-ntpEpochDelta, 0).UTC()

		logger.Debug("ntp: reply", "stratum", res.Stratum, "refid", res.RefIDText)
		return res, nil
	}
}

func checksumValidUDP(recvBuf []byte, n int) bool {
	span := recvBuf[8:n]
	if len(span)%2 != 0 {
		padded := make([]byte, len(span)+1)
		copy(padded, span)
		return checksum.Valid(padded)
	}
	return checksum.Valid(span)
}
