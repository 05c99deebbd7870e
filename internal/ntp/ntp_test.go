package ntp

import (
	"testing"

	"github.com/dantte-lp/goslip/internal/checksum"
)

func TestRefIDTextStratumOne(t *testing.T) {
	got := refIDText(1, [4]byte{'G', 'P', 'S', 0})
	if got != "GPS" {
		t.Fatalf("refIDText stratum 1 = %q, want %q", got, "GPS")
	}
}

func TestRefIDTextOtherStratum(t *testing.T) {
	got := refIDText(2, [4]byte{192, 168, 1, 1})
	if got != "192.168.1.1" {
		t.Fatalf("refIDText stratum 2 = %q, want dotted quad", got)
	}
}

func TestBuildRequest(t *testing.T) {
	buf := make([]byte, 1536)
	src := [4]byte{10, 0, 2, 15}
	dst := [4]byte{192, 168, 1, 1}

	size := buildRequest(buf, src, dst, [2]byte{0, 0}, 4321)
	if size != responseLen {
		t.Fatalf("size = %d, want %d", size, responseLen)
	}
	if !checksum.Valid(buf[0:20]) {
		t.Fatalf("ip checksum invalid")
	}
	ntpStart := 28
	if buf[ntpStart] != firstOctetLI {
		t.Fatalf("first octet = %#02x, want %#02x", buf[ntpStart], firstOctetLI)
	}
	for i := 1; i < requestLen; i++ {
		if buf[ntpStart+i] != 0 {
			t.Fatalf("byte %d of ntp payload = %#02x, want 0", i, buf[ntpStart+i])
		}
	}
}
