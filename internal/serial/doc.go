// Package serial is the only truly OS-dependent module in the stack: it
// opens a serial device in raw 8N1 mode at a fixed bit rate and exposes
// blocking byte read/write. A configured device MUST be placed in a mode
// equivalent to 8 data bits, no parity, 1 stop bit, no flow control, no
// echo, no line discipline, no signal interpretation, blocking reads with
// minimum 1 byte and no inter-byte timeout, with the queues flushed.
package serial
