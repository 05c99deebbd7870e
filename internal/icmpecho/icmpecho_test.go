package icmpecho_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dantte-lp/goslip/internal/checksum"
	"github.com/dantte-lp/goslip/internal/icmpecho"
	"github.com/dantte-lp/goslip/internal/slip"
	"github.com/dantte-lp/goslip/internal/wire"
)

// fakeTransport is an in-memory slip.Transport backed by a byte queue for
// reads and a buffer for writes.
type fakeTransport struct {
	in  []byte
	pos int
	out bytes.Buffer
}

func (f *fakeTransport) ReadByte() (byte, error) {
	if f.pos >= len(f.in) {
		return 0, io.EOF
	}
	b := f.in[f.pos]
	f.pos++
	return b, nil
}

func (f *fakeTransport) Write(buf []byte) error {
	f.out.Write(buf)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

// slipEncode byte-stuffs raw into a complete SLIP frame.
func slipEncode(raw []byte) []byte {
	out := []byte{slip.End}
	for _, b := range raw {
		switch b {
		case slip.End:
			out = append(out, slip.Esc, slip.EscEnd)
		case slip.Esc:
			out = append(out, slip.Esc, slip.EscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, slip.End)
}

// buildEchoReply constructs a valid ICMP echo reply datagram addressed
// src->dst with the given sequence number.
func buildEchoReply(src, dst [4]byte, seq uint16) []byte {
	buf := make([]byte, wire.PacketSize)
	n := wire.BuildEchoRequest(buf, src, dst, [2]byte{0x01, 0x02}, seq)
	// Flip ICMP type from echo-request(8) to echo-reply(0) and recompute
	// the ICMP checksum the way a real peer's kernel would.
	icmp := buf[wire.IPv4HeaderLen:n]
	icmp[0] = 0
	icmp[2] = 0
	icmp[3] = 0
	s := checksum.Sum(icmp)
	icmp[2] = byte(s >> 8)
	icmp[3] = byte(s)
	return buf[:n]
}

func TestOnceSuccess(t *testing.T) {
	t.Parallel()

	src := [4]byte{10, 0, 2, 15}
	dst := [4]byte{10, 0, 2, 2}

	reply := buildEchoReply(dst, src, 1)
	ft := &fakeTransport{in: slipEncode(reply)}
	link := slip.NewLink(nil, ft)

	e := icmpecho.NewEchoer(nil, link, src, dst)
	r, err := e.Once([2]byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if r.Seq != 1 {
		t.Errorf("Seq = %d, want 1", r.Seq)
	}
}

func TestOnceMangledChecksum(t *testing.T) {
	t.Parallel()

	src := [4]byte{10, 0, 2, 15}
	dst := [4]byte{10, 0, 2, 2}

	reply := buildEchoReply(dst, src, 1)
	// Corrupt the ICMP payload after the checksum was computed.
	reply[wire.IPv4HeaderLen+10] ^= 0xFF

	ft := &fakeTransport{in: slipEncode(reply)}
	link := slip.NewLink(nil, ft)

	e := icmpecho.NewEchoer(nil, link, src, dst)
	_, err := e.Once([2]byte{0xAA, 0xBB})
	if !errors.Is(err, icmpecho.ErrMangledReply) {
		t.Fatalf("Once error = %v, want ErrMangledReply", err)
	}
}

func TestPingerRunStopsAndSkipsMangled(t *testing.T) {
	t.Parallel()

	src := [4]byte{10, 0, 2, 15}
	dst := [4]byte{10, 0, 2, 2}

	goodReply := buildEchoReply(dst, src, 1)
	mangledReply := buildEchoReply(dst, src, 2)
	mangledReply[wire.IPv4HeaderLen+10] ^= 0xFF

	var in []byte
	in = append(in, slipEncode(goodReply)...)
	in = append(in, slipEncode(mangledReply)...)

	ft := &fakeTransport{in: in}
	link := slip.NewLink(nil, ft)
	e := icmpecho.NewEchoer(nil, link, src, dst)

	p := icmpecho.NewPinger(e, time.Microsecond, func() [2]byte { return [2]byte{0x01, 0x02} })

	var replies int
	var mangled int
	iterations := 0
	err := p.Run(func() bool {
		iterations++
		return iterations > 2
	}, func(icmpecho.Reply) { replies++ }, func() { mangled++ })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if replies != 1 {
		t.Errorf("replies = %d, want 1", replies)
	}
	if mangled != 1 {
		t.Errorf("mangled = %d, want 1", mangled)
	}
}
