// Package icmpecho implements the ICMP echo request/reply exchange used
// by the ping demo tool: one echo per call, and a Pinger that drives the
// infinite loop.
//
// A free-running 16-bit sequence counter numbers the echoes. A checksum
// failure on a reply does not resend the current echo; the loop just
// sleeps out the interval and moves on to the next sequence number.
package icmpecho

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/goslip/internal/slip"
	"github.com/dantte-lp/goslip/internal/wire"
)

// ErrMangledReply indicates the reply read back for an echo failed ICMP
// checksum verification. The caller does not resend the echo; it simply
// moves on to the next sequence number.
var ErrMangledReply = errors.New("icmpecho: mangled reply")

// Reply is what one successful echo exchange yields.
type Reply struct {
	Seq uint16
	RTT time.Duration
}

// Echoer sends ICMP echo requests to dst from src over a single SLIP
// link and reads back one reply per request.
type Echoer struct {
	logger *slog.Logger
	link   *slip.Link
	src    [4]byte
	dst    [4]byte

	seq uint16

	sendBuf []byte
	recvBuf []byte
}

// NewEchoer creates an Echoer bound to link.
func NewEchoer(logger *slog.Logger, link *slip.Link, src, dst [4]byte) *Echoer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Echoer{
		logger:  logger,
		link:    link,
		src:     src,
		dst:     dst,
		sendBuf: make([]byte, wire.PacketSize),
		recvBuf: make([]byte, wire.PacketSize),
	}
}

// Once sends one echo request with the next sequence number and reads
// frames until an ICMP one arrives. id seeds the outgoing packet's IPv4
// identification field.
//
// A non-ICMP frame (e.g. stray resync noise) is silently skipped rather
// than failing the call — only a checksum failure on the ICMP frame that
// is finally read returns ErrMangledReply, and even that does not
// trigger a resend: the caller is expected to log it and move on to the
// next sequence number.
func (e *Echoer) Once(id [2]byte) (Reply, error) {
	e.seq++
	seq := e.seq

	n := wire.BuildEchoRequest(e.sendBuf, e.src, e.dst, id, seq)
	sent := time.Now()
	if err := e.link.Ship(e.sendBuf, n); err != nil {
		return Reply{}, fmt.Errorf("icmpecho: ship request: %w", err)
	}

	var recvN int
	for {
		var err error
		recvN, err = e.link.Slurp(e.recvBuf)
		if err != nil {
			return Reply{}, fmt.Errorf("icmpecho: slurp reply: %w", err)
		}
		if e.recvBuf[9] == wire.ProtoICMP {
			break
		}
	}

	if !wire.VerifyEchoReply(e.recvBuf, recvN) {
		return Reply{}, ErrMangledReply
	}

	gotSeq := uint16(e.recvBuf[wire.IPv4HeaderLen+6])<<8 | uint16(e.recvBuf[wire.IPv4HeaderLen+7])
	return Reply{Seq: gotSeq, RTT: time.Since(sent)}, nil
}

// Pinger drives the infinite echo loop: one echo per interval, printing a
// line per successful reply via onReply, until ctx-equivalent cancellation
// is signaled through stop returning true, or a fatal SLIP error occurs.
type Pinger struct {
	echoer   *Echoer
	interval time.Duration
	nextID   func() [2]byte
}

// NewPinger creates a Pinger that sends one echo every interval
// (canonically one second) using nextID to mint each request's IPv4
// identification bytes.
func NewPinger(echoer *Echoer, interval time.Duration, nextID func() [2]byte) *Pinger {
	return &Pinger{echoer: echoer, interval: interval, nextID: nextID}
}

// Run loops until stop returns true or a fatal error occurs, calling
// onReply for every successfully echoed reply and onMangled whenever a
// reply fails checksum verification (the "mangled reply, retrying"
// case). onMangled and onReply may be nil.
func (p *Pinger) Run(stop func() bool, onReply func(Reply), onMangled func()) error {
	for {
		if stop != nil && stop() {
			return nil
		}

		reply, err := p.echoer.Once(p.nextID())
		switch {
		case errors.Is(err, ErrMangledReply):
			if onMangled != nil {
				onMangled()
			}
		case err != nil:
			return err
		default:
			if onReply != nil {
				onReply(reply)
			}
		}

		time.Sleep(p.interval)
	}
}
