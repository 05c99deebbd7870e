// Package tcpclient implements the single-connection, single-in-flight-
// segment TCP client: three-way handshake, a send-and-wait-for-flags
// primitive ("twiddle"), the data transfer loop, and four-way teardown.
//
// All per-connection state lives in Conn and is passed explicitly; the
// only process-wide state anywhere in the stack is the SLIP link
// itself.
package tcpclient

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dantte-lp/goslip/internal/checksum"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/randid"
	"github.com/dantte-lp/goslip/internal/seqnum"
	"github.com/dantte-lp/goslip/internal/slip"
	"github.com/dantte-lp/goslip/internal/wire"
)

// CloseReason identifies which of the three terminal conditions ended a
// session.
type CloseReason int

const (
	// CloseNormal is the ordinary FIN/FIN-ACK/ACK four-way close.
	CloseNormal CloseReason = iota
	// CloseReset means the peer sent RST while the connection was
	// established.
	CloseReset
	// CloseAnomalousSYN means the peer sent an unexpected SYN mid-session;
	// this client responds with its own RST and treats it as a normal
	// (not failed) termination.
	CloseAnomalousSYN
)

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case CloseReset:
		return "reset"
	case CloseAnomalousSYN:
		return "anomalous-syn"
	default:
		return "unknown"
	}
}

// MetricsRecorder is the narrow set of counters a Conn reports against.
// Satisfied structurally by *metrics.Collector.
type MetricsRecorder interface {
	IncChecksumFailures(proto string)
	IncRetransmits()
}

// noopMetrics is the default MetricsRecorder: a Conn never carries a nil
// metrics field.
type noopMetrics struct{}

func (noopMetrics) IncChecksumFailures(string) {}
func (noopMetrics) IncRetransmits()            {}

// DialOption configures optional Conn behavior.
type DialOption func(*Conn)

// WithMetrics records TCP checksum failures and retransmits against m
// instead of the default no-op recorder.
func WithMetrics(m MetricsRecorder) DialOption {
	return func(c *Conn) { c.metrics = m }
}

// Conn holds the per-connection state of a single TCP client session:
// chosen pseudo-port, peer address, and the running sequence/
// acknowledgement counters. There is exactly one of these per
// invocation of the client.
type Conn struct {
	logger *slog.Logger
	link   *slip.Link
	rng    *randid.Source

	src, dst [4]byte
	srcPort  uint16
	dstPort  uint16

	seqno [4]byte
	ackno [4]byte

	sendBuf []byte
	recvBuf []byte

	metrics MetricsRecorder
}

// Dial performs the three-way handshake and returns an established Conn,
// or ErrConnectionRefused if the peer answers the SYN with RST.
func Dial(logger *slog.Logger, link *slip.Link, rng *randid.Source, src, dst [4]byte, dstPort uint16, opts ...DialOption) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return dial(logger, link, rng, src, dst, dstPort, rng.Uint16(), rng.Bytes4(), opts...)
}

func dial(logger *slog.Logger, link *slip.Link, rng *randid.Source, src, dst [4]byte, dstPort, srcPort uint16, isn [4]byte, opts ...DialOption) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		logger:  logger,
		link:    link,
		rng:     rng,
		src:     src,
		dst:     dst,
		srcPort: srcPort,
		dstPort: dstPort,
		seqno:   isn,
		sendBuf: make([]byte, wire.PacketSize),
		recvBuf: make([]byte, wire.PacketSize),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}

	// Step 2: SYN, ackno=0.
	synLen := wire.BuildControlSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagSYN, c.seqno, c.ackno)
	segBuf := make([]byte, synLen)
	copy(segBuf, c.sendBuf[:synLen])

	flags, err := c.twiddle(segBuf, wire.FlagSYN|wire.FlagACK, 1)
	if err != nil {
		return nil, fmt.Errorf("tcpclient: handshake: %w", err)
	}
	if flags&wire.FlagRST != 0 {
		return nil, fmt.Errorf("tcpclient: handshake: %w", errs.ErrConnectionRefused)
	}
	// Step 3 done: twiddle already stored the reply's seqno into c.ackno
	// and incremented c.seqno by 1.
	// Step 4: peer's SYN occupies one sequence number.
	seqnum.Add32BE(&c.ackno, 1)

	// Step 5: bare ACK, no wait.
	ackLen := wire.BuildControlSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagACK, c.seqno, c.ackno)
	if err := c.link.Ship(c.sendBuf, ackLen); err != nil {
		return nil, fmt.Errorf("tcpclient: handshake: final ack: %w", err)
	}

	c.logger.Debug("tcpclient: established", "src_port", c.srcPort, "dst_port", c.dstPort)
	return c, nil
}

func (c *Conn) idBytes() [2]byte {
	if c.rng != nil {
		return c.rng.Bytes2()
	}
	return [2]byte{}
}

// twiddle is the send-and-wait-for-flags primitive shared by the
// handshake and teardown. It increments c.seqno by seqnoInc immediately
// (representing the segment segBuf is about to send), then repeatedly
// ships segBuf and reads a reply until one matches waitFor, an RST
// arrives, or a fatal SLIP error occurs.
//
// Match order: the TCP checksum must validate first, then an RST bails
// out before the pseudo-port is even compared (an RST from any source
// cancels the wait), and only then do the port, ackno, and flag
// comparisons run.
func (c *Conn) twiddle(segBuf []byte, waitFor byte, seqnoInc uint16) (byte, error) {
	seqnum.Add32BE(&c.seqno, seqnoInc)

	attempt := 0
	for {
		if attempt > 0 {
			c.metrics.IncRetransmits()
		}
		attempt++
		if err := c.link.Ship(segBuf, len(segBuf)); err != nil {
			return 0, fmt.Errorf("tcpclient: twiddle: ship: %w", err)
		}

		n, err := c.link.Slurp(c.recvBuf)
		if err != nil {
			return 0, fmt.Errorf("tcpclient: twiddle: slurp: %w", err)
		}
		if n%2 != 0 {
			continue
		}
		if c.recvBuf[9] != wire.ProtoTCP {
			continue
		}

		tcpLen := uint16(n - wire.IPv4HeaderLen)
		wire.ReconstructPseudoHeader(c.recvBuf, wire.ProtoTCP, tcpLen)
		if !checksumValidTCP(c.recvBuf, n) {
			c.metrics.IncChecksumFailures("tcp")
			continue
		}

		gotDstPort := uint16(c.recvBuf[wire.IPv4HeaderLen+2])<<8 | uint16(c.recvBuf[wire.IPv4HeaderLen+3])
		flags := c.recvBuf[wire.IPv4HeaderLen+13]

		if flags&wire.FlagRST != 0 {
			return flags, nil
		}
		if gotDstPort != c.srcPort {
			continue
		}

		if waitFor&wire.FlagACK != 0 {
			var gotAckno [4]byte
			copy(gotAckno[:], c.recvBuf[wire.IPv4HeaderLen+8:wire.IPv4HeaderLen+12])
			if !seqnum.Equal(gotAckno, c.seqno) {
				continue
			}
		}

		if waitFor == wire.FlagACK && flags&wire.FlagFIN != 0 {
			copy(c.ackno[:], c.recvBuf[wire.IPv4HeaderLen+4:wire.IPv4HeaderLen+8])
			return flags, nil
		}

		if flags != waitFor && flags != waitFor|wire.FlagPSH {
			continue
		}

		copy(c.ackno[:], c.recvBuf[wire.IPv4HeaderLen+4:wire.IPv4HeaderLen+8])
		return flags, nil
	}
}

// Transact builds a single PSH+ACK segment carrying payload, sends it
// (an empty payload is never sent; the loop then only reads), and
// services the receive loop until the peer
// sends RST, an unexpected SYN, or FIN. Data carried on inbound replies
// is written to out as it is accepted (i.e. only when its sequence
// number matches our current acknowledgement number — a mismatched
// segment is dropped, but still triggers an ACK carrying the old ackno,
// so the peer re-sends).
func (c *Conn) Transact(payload []byte, out io.Writer) (CloseReason, error) {
	oldseqno := c.seqno
	acked := len(payload) == 0

	dataLen, err := wire.BuildDataSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, oldseqno, c.ackno, payload)
	if err != nil {
		return CloseReset, fmt.Errorf("tcpclient: transact: %w", err)
	}
	seqnum.Add32BE(&c.seqno, uint16(len(payload)))

	dataSeg := make([]byte, dataLen)
	copy(dataSeg, c.sendBuf[:dataLen])

	ackBuf := make([]byte, wire.PacketSize)

	attempt := 0
	for {
		if !acked {
			if attempt > 0 {
				c.metrics.IncRetransmits()
			}
			attempt++
			if err := c.link.Ship(dataSeg, len(dataSeg)); err != nil {
				return CloseReset, fmt.Errorf("tcpclient: transact: ship: %w", err)
			}
		}

		n, err := c.link.Slurp(c.recvBuf)
		if err != nil {
			return CloseReset, fmt.Errorf("tcpclient: transact: slurp: %w", err)
		}
		if c.recvBuf[9] != wire.ProtoTCP {
			continue
		}

		// Unlike twiddle, this loop accepts odd-length frames: a
		// data-bearing segment has no length parity guarantee. The
		// checksum span is padded with a zero byte instead.
		tcpLen := uint16(n - wire.IPv4HeaderLen)
		wire.ReconstructPseudoHeader(c.recvBuf, wire.ProtoTCP, tcpLen)
		if !checksumValidTCP(c.recvBuf, n) {
			c.metrics.IncChecksumFailures("tcp")
			continue
		}

		gotDstPort := uint16(c.recvBuf[wire.IPv4HeaderLen+2])<<8 | uint16(c.recvBuf[wire.IPv4HeaderLen+3])
		if gotDstPort != c.srcPort {
			continue
		}

		flags := c.recvBuf[wire.IPv4HeaderLen+13]
		if flags&wire.FlagRST != 0 {
			return CloseReset, nil
		}

		var replyAckno, replySeqno [4]byte
		copy(replyAckno[:], c.recvBuf[wire.IPv4HeaderLen+8:wire.IPv4HeaderLen+12])
		copy(replySeqno[:], c.recvBuf[wire.IPv4HeaderLen+4:wire.IPv4HeaderLen+8])

		// An ACK (or FIN) whose ackno equals our advanced seqno marks the
		// in-flight segment acknowledged, unless the ackno still equals
		// oldseqno, which means the peer spoke first before ACKing us.
		if flags&(wire.FlagACK|wire.FlagFIN) != 0 && seqnum.Equal(replyAckno, c.seqno) && !seqnum.Equal(replyAckno, oldseqno) {
			acked = true
		}

		headerLen := wire.TCPHeaderByteLen(c.recvBuf[wire.IPv4HeaderLen+12])
		dataStart := wire.IPv4HeaderLen + headerLen
		if dataStart >= n {
			// No data: break out on FIN or an anomalous SYN, otherwise
			// just wait for more. A bare ACK is never itself ACKed.
			if flags&wire.FlagFIN != 0 {
				return CloseNormal, nil
			}
			if flags&wire.FlagSYN != 0 {
				c.sendRST()
				return CloseAnomalousSYN, nil
			}
			continue
		}

		// A segment whose seqno is not the expected next byte is dropped,
		// but still triggers the ACK below reflecting the old ackno, so
		// the peer re-sends.
		if seqnum.Equal(replySeqno, c.ackno) {
			if _, werr := out.Write(c.recvBuf[dataStart:n]); werr != nil {
				c.logger.Warn("tcpclient: write received payload", "error", werr)
			}
			seqnum.Add32BE(&c.ackno, uint16(n-dataStart))
		}

		if flags&wire.FlagFIN != 0 {
			return CloseNormal, nil
		}

		ackLen := wire.BuildControlSegment(ackBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagACK, c.seqno, c.ackno)
		if err := c.link.Ship(ackBuf, ackLen); err != nil {
			return CloseReset, fmt.Errorf("tcpclient: transact: ship ack: %w", err)
		}
		if !acked {
			dataLen, err = wire.BuildDataSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, oldseqno, c.ackno, payload)
			if err != nil {
				return CloseReset, fmt.Errorf("tcpclient: transact: rebuild: %w", err)
			}
			dataSeg = dataSeg[:dataLen]
			copy(dataSeg, c.sendBuf[:dataLen])
		}
	}
}

func (c *Conn) sendRST() {
	n := wire.BuildControlSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagRST, c.seqno, c.ackno)
	if err := c.link.Ship(c.sendBuf, n); err != nil {
		c.logger.Debug("tcpclient: send rst failed", "error", err)
	}
}

// Close performs the appropriate teardown for reason, the result of a
// prior Transact call. For CloseReset and CloseAnomalousSYN the wire
// work is already done (nothing more to send, or the RST was already
// sent by Transact); only CloseNormal drives the four-way close.
//
// A SLIP error during the two teardown twiddle calls stops the close
// there; the caller learns only whether the final ACK was sent.
func (c *Conn) Close(reason CloseReason) error {
	defer c.link.Close()

	if reason != CloseNormal {
		return nil
	}

	// First segment: final FIN+ACK, counted into our seqno (seqnoInc=1).
	finAckLen := wire.BuildControlSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagFIN|wire.FlagACK, c.seqno, c.ackno)
	finAck := make([]byte, finAckLen)
	copy(finAck, c.sendBuf[:finAckLen])

	// Both teardown twiddle calls wait for FIN|ACK, not a bare ACK. What
	// we send differs: the first twiddle retransmits the FIN+ACK above,
	// the second a FIN-only segment. Each step runs only if the previous
	// one succeeded.
	if _, err := c.twiddle(finAck, wire.FlagFIN|wire.FlagACK, 1); err != nil {
		c.logger.Debug("tcpclient: teardown: first twiddle failed", "error", err)
		return fmt.Errorf("tcpclient: teardown: %w", err)
	}

	finLen := wire.BuildControlSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagFIN, c.seqno, c.ackno)
	fin := make([]byte, finLen)
	copy(fin, c.sendBuf[:finLen])

	if _, err := c.twiddle(fin, wire.FlagFIN|wire.FlagACK, 0); err != nil {
		c.logger.Debug("tcpclient: teardown: second twiddle failed", "error", err)
		return fmt.Errorf("tcpclient: teardown: %w", err)
	}

	seqnum.Add32BE(&c.ackno, 1) // peer's FIN

	ackLen := wire.BuildControlSegment(c.sendBuf, c.src, c.dst, c.idBytes(), c.srcPort, c.dstPort, wire.FlagACK, c.seqno, c.ackno)
	if err := c.link.Ship(c.sendBuf, ackLen); err != nil {
		return fmt.Errorf("tcpclient: teardown: final ack: %w", err)
	}
	return nil
}

// Seqno and Ackno expose the running counters, mainly for tests and for
// a caller that wants to report the post-handshake values.
func (c *Conn) Seqno() [4]byte { return c.seqno }
func (c *Conn) Ackno() [4]byte { return c.ackno }

func checksumValidTCP(buf []byte, n int) bool {
	span := buf[8:n]
	if len(span)%2 != 0 {
		padded := make([]byte, len(span)+1)
		copy(padded, span)
		return checksum.Valid(padded)
	}
	return checksum.Valid(span)
}
