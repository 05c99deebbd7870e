// Package slip implements RFC 1055 framing over a raw serial link:
// byte-stuffed send, and resynchronizing, validating receive.
//
// The receiver does not require a leading END delimiter (slattach and
// similar senders omit it): it resynchronizes by scanning for an IPv4
// header signature, and the buffer it returns is validated against the
// declared IPv4 total length and the RFC 1071 header checksum before
// being handed to the caller.
package slip

import (
	"fmt"
	"log/slog"

	"github.com/dantte-lp/goslip/internal/checksum"
	"github.com/dantte-lp/goslip/internal/errs"
)

// Framing delimiters (RFC 1055).
const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// byteWriter and byteReader are the only capabilities the framer needs
// from the transport; internal/serial.Port satisfies both. Tests use an
// in-memory fake.
type byteWriter interface {
	Write(buf []byte) error
}

type byteReader interface {
	ReadByte() (byte, error)
}

// Transport is the combined capability a Link needs from the underlying
// medium.
type Transport interface {
	byteWriter
	byteReader
	Close() error
}

// MetricsRecorder is the narrow set of counters a Link reports against.
// Satisfied structurally by *metrics.Collector; never declared as a
// dependency of that package to avoid an import cycle.
type MetricsRecorder interface {
	IncFramesSent()
	IncFramesReceived()
	IncResyncs()
	IncChecksumFailures(proto string)
}

// noopMetrics is the default MetricsRecorder: a Link never carries a nil
// metrics field, so Ship/Slurp/resync/validate can call it unconditionally.
type noopMetrics struct{}

func (noopMetrics) IncFramesSent()             {}
func (noopMetrics) IncFramesReceived()         {}
func (noopMetrics) IncResyncs()                {}
func (noopMetrics) IncChecksumFailures(string) {}

// LinkOption configures optional Link behavior.
type LinkOption func(*Link)

// WithMetrics records frame, resync, and IP checksum-failure counts
// against m instead of the default no-op recorder.
func WithMetrics(m MetricsRecorder) LinkOption {
	return func(l *Link) { l.metrics = m }
}

// Link is the single, process-wide SLIP handle. The stack is strictly
// synchronous: there is at most one Link per process, and
// every operation on it blocks until its bytes are fully transmitted or a
// full frame has been read.
type Link struct {
	t       Transport
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewLink wraps an already-opened Transport (typically a *serial.Port).
func NewLink(logger *slog.Logger, t Transport, opts ...LinkOption) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Link{t: t, logger: logger, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close releases the underlying transport. Callers MUST NOT invoke Ship
// or Slurp afterward.
func (l *Link) Close() error {
	return l.t.Close()
}

// Ship writes buf[:n] as one SLIP frame: a leading END, the byte-stuffed
// payload, and a trailing END.
func (l *Link) Ship(buf []byte, n int) error {
	if l == nil || l.t == nil {
		return fmt.Errorf("slip: ship on closed link: %w", errs.ErrSlipFailed)
	}

	out := make([]byte, 0, n+4)
	out = append(out, End)
	for _, b := range buf[:n] {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, End)

	if err := l.t.Write(out); err != nil {
		return fmt.Errorf("slip: ship: %w: %w", errs.ErrSlipFailed, err)
	}
	l.metrics.IncFramesSent()
	return nil
}

// Slurp reads one SLIP frame into buf (at most len(buf) bytes) and returns the
// number of bytes placed in it.
//
// The receiver does not require the frame to begin with END: it
// resynchronizes by scanning one byte at a time until it observes the
// 2-byte sequence 0x45,X with X in {0x00,0x08,0x10} (an IPv4 version/IHL
// byte followed by a plausible DSCP/ECN byte). Those two bytes become
// buf[0] and buf[1]. It then reads and unescapes bytes until it reads an
// END byte.
//
// Before returning success it validates: the declared IPv4 total length
// (buf[2:4], big-endian) equals the received length, and the RFC 1071
// checksum over buf[0:20] is zero. A buffer that fills without an END, or
// an ESC followed by anything but ESC_END/ESC_ESC, fails immediately.
func (l *Link) Slurp(buf []byte) (int, error) {
	if l == nil || l.t == nil {
		return 0, fmt.Errorf("slip: slurp on closed link: %w", errs.ErrSlipFailed)
	}
	if len(buf) < 20 {
		return 0, fmt.Errorf("slip: buffer too small for an IPv4 header: %w", errs.ErrNomem)
	}

	if err := l.resync(buf); err != nil {
		return 0, err
	}

	n := 2
	for {
		b, err := l.t.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("slip: slurp: %w: %w", errs.ErrSlipFailed, err)
		}

		switch b {
		case End:
			return l.validate(buf, n)
		case Esc:
			e, err := l.t.ReadByte()
			if err != nil {
				return 0, fmt.Errorf("slip: slurp: %w: %w", errs.ErrSlipFailed, err)
			}
			switch e {
			case EscEnd:
				b = End
			case EscEsc:
				b = Esc
			default:
				return 0, fmt.Errorf("slip: slurp: nonsense escape 0x%02x: %w", e, errs.ErrSlipFailed)
			}
		}

		if n >= len(buf) {
			return 0, fmt.Errorf("slip: slurp: frame exceeds buffer before END: %w", errs.ErrSlipFailed)
		}
		buf[n] = b
		n++
	}
}

// resync scans the transport one byte at a time until it has observed an
// IPv4 header signature (0x45 followed by 0x00/0x08/0x10), writing those
// two bytes into buf[0] and buf[1].
func (l *Link) resync(buf []byte) error {
	var prev byte
	consumed := 0
	for {
		b, err := l.t.ReadByte()
		if err != nil {
			return fmt.Errorf("slip: resync: %w: %w", errs.ErrSlipFailed, err)
		}
		if b != End {
			consumed++
		}
		if prev == 0x45 && (b == 0x00 || b == 0x08 || b == 0x10) {
			buf[0] = 0x45
			buf[1] = b
			// consumed == 2 is the ordinary case: the two signature bytes
			// themselves (END delimiters are not counted). Anything beyond
			// that means real leading garbage (stray bytes, a previous
			// frame's trailing noise) was skipped.
			if consumed > 2 {
				l.metrics.IncResyncs()
			}
			return nil
		}
		prev = b
	}
}

// validate checks the post-frame invariants and returns n on success.
func (l *Link) validate(buf []byte, n int) (int, error) {
	declared := int(buf[2])<<8 | int(buf[3])
	if declared != n {
		l.logger.Debug("slip: length mismatch", "declared", declared, "received", n)
		return 0, fmt.Errorf("slip: declared length %d != received %d: %w", declared, n, errs.ErrSlipFailed)
	}
	if !checksum.Valid(buf[0:20]) {
		l.logger.Debug("slip: ip checksum invalid")
		l.metrics.IncChecksumFailures("ip")
		return 0, fmt.Errorf("slip: ip header checksum invalid: %w", errs.ErrSlipFailed)
	}
	l.metrics.IncFramesReceived()
	return n, nil
}
