package slip_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/dantte-lp/goslip/internal/checksum"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/slip"
)

// fakeTransport is an in-memory Transport backed by a byte queue for
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

func TestShipEscaping(t *testing.T) {
	// Hostile payload: every byte needing escaping, plus a literal.
	ft := &fakeTransport{}
	link := slip.NewLink(nil, ft)

	payload := []byte{0xC0, 0xDB, 0xC0, 0xDB, 0x00}
	if err := link.Ship(payload, len(payload)); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	want := []byte{0xC0, 0xDB, 0xDC, 0xDB, 0xDD, 0xDB, 0xDC, 0xDB, 0xDD, 0x00, 0xC0}
	if got := ft.out.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("Ship output = % x, want % x", got, want)
	}
}

// validIPv4 builds a minimal, checksum-valid 20-byte IPv4 header declaring
// totalLen, so Slurp's post-frame validation passes.
func validIPv4(totalLen int) []byte {
	h := make([]byte, 20)
	h[0] = 0x45
	h[1] = 0x00
	h[2] = byte(totalLen >> 8)
	h[3] = byte(totalLen)
	h[8] = 64
	h[9] = 1
	s := checksum.Sum(h)
	h[10] = byte(s >> 8)
	h[11] = byte(s)
	return h
}

func TestSlurpRoundTrip(t *testing.T) {
	header := validIPv4(20)

	// Encode as a SLIP frame without a leading END, the way slattach-style
	// senders do, to exercise resynchronization.
	var frame []byte
	for _, b := range header {
		switch b {
		case slip.End:
			frame = append(frame, slip.Esc, slip.EscEnd)
		case slip.Esc:
			frame = append(frame, slip.Esc, slip.EscEsc)
		default:
			frame = append(frame, b)
		}
	}
	frame = append(frame, slip.End)

	// Prepend noise bytes before the IP signature to prove resync works.
	in := append([]byte{0x01, 0x02, 0x03}, frame...)

	ft := &fakeTransport{in: in}
	link := slip.NewLink(nil, ft)

	buf := make([]byte, 1536)
	n, err := link.Slurp(buf)
	if err != nil {
		t.Fatalf("Slurp: %v", err)
	}
	if n != 20 {
		t.Fatalf("Slurp length = %d, want 20", n)
	}
	if !bytes.Equal(buf[:20], header) {
		t.Fatalf("Slurp payload = % x, want % x", buf[:20], header)
	}
}

func TestSlurpLengthMismatch(t *testing.T) {
	header := validIPv4(999) // declares a length that won't match 20 received bytes
	frame := append(append([]byte{}, header...), slip.End)

	ft := &fakeTransport{in: frame}
	link := slip.NewLink(nil, ft)

	buf := make([]byte, 1536)
	_, err := link.Slurp(buf)
	if !errors.Is(err, errs.ErrSlipFailed) {
		t.Fatalf("Slurp error = %v, want ErrSlipFailed", err)
	}
}

func TestSlurpBadEscape(t *testing.T) {
	header := validIPv4(20)
	frame := append(append([]byte{}, header[:2]...), slip.Esc, 0x99, slip.End)

	ft := &fakeTransport{in: frame}
	link := slip.NewLink(nil, ft)

	buf := make([]byte, 1536)
	_, err := link.Slurp(buf)
	if !errors.Is(err, errs.ErrSlipFailed) {
		t.Fatalf("Slurp error = %v, want ErrSlipFailed", err)
	}
}
