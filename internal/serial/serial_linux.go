//go:build linux

// Termios configuration is Linux-specific (TCSETS/TCFLSH ioctl numbers):
// CS8|CREAD|CLOCAL, VMIN=1/VTIME=0 (block for exactly one byte, no
// inter-byte timeout), the requested speed applied to both input and
// output, and the queues flushed on open.
package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// rates maps the bits-per-second values this stack supports to the
// termios speed constant. An unsupported rate is rejected rather than
// silently rounded.
var rates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// Port is an opened, raw-mode serial device.
type Port struct {
	f    *os.File
	path string
}

// Open opens device in raw 8N1 mode at the given bit rate. rate must be
// one of the values in rates; anything else is rejected rather than
// silently rounded.
func Open(device string, rate int) (*Port, error) {
	speed, ok := rates[rate]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", rate)
	}

	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}

	fd := int(f.Fd())

	term := unix.Termios{
		Cflag:  unix.CS8 | unix.CREAD | unix.CLOCAL,
		Ispeed: speed,
		Ospeed: speed,
	}
	term.Cc[unix.VMIN] = 1
	term.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &term); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serial: configure %s: %w", device, err)
	}

	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serial: flush %s: %w", device, err)
	}

	return &Port{f: f, path: device}, nil
}

// ReadByte blocks until exactly one byte is available and returns it.
func (p *Port) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := p.f.Read(b[:])
		if err != nil {
			return 0, fmt.Errorf("serial: read %s: %w", p.path, err)
		}
		if n == 1 {
			return b[0], nil
		}
	}
}

// Write blocks until every byte of buf has been written.
func (p *Port) Write(buf []byte) error {
	_, err := p.f.Write(buf)
	if err != nil {
		return fmt.Errorf("serial: write %s: %w", p.path, err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (p *Port) Close() error {
	return p.f.Close()
}
