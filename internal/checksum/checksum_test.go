package checksum_test

import (
	"testing"

	"github.com/dantte-lp/goslip/internal/checksum"
)

func TestSumCanonicalExample(t *testing.T) {
	// The canonical RFC 1071 worked example.
	buf := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	got := checksum.Sum(buf)
	want := uint16(0x220D)
	if got != want {
		t.Fatalf("Sum(%x) = %#04x, want %#04x", buf, got, want)
	}
}

func TestSumEmpty(t *testing.T) {
	if got := checksum.Sum(nil); got != 0xFFFF {
		t.Fatalf("Sum(nil) = %#04x, want 0xFFFF", got)
	}
}

func TestSumOddLength(t *testing.T) {
	buf := []byte{0x00, 0x01, 0xff}
	got := checksum.Sum(buf)
	// 0x0001 + 0xff00 = 0xff01, complemented.
	want := ^uint16(0x0001 + 0xff00)
	if got != want {
		t.Fatalf("Sum(%x) = %#04x, want %#04x", buf, got, want)
	}
}

func TestVerifyLaw(t *testing.T) {
	// RFC 1071 verify law: sum(b || checksum_bytes_of(sum(b))) == 0.
	bufs := [][]byte{
		{0x45, 0x00, 0x00, 0x14, 0x00, 0x00, 0x40, 0x00, 0x40, 0x01},
		{0x01, 0x02, 0x03},
		{},
		{0xff},
	}
	for _, b := range bufs {
		s := checksum.Sum(b)
		// After an odd-length b the checksum starts in the low half of a
		// 16-bit word, so its bytes go in swapped order there.
		hi, lo := byte(s>>8), byte(s)
		if len(b)%2 != 0 {
			hi, lo = lo, hi
		}
		full := append(append([]byte{}, b...), hi, lo)
		if !checksum.Valid(full) {
			t.Errorf("verify law failed for %x: sum=%#04x", b, s)
		}
	}
}
