// Package seqnum implements the endian-independent, register-size
// independent 32-bit counter arithmetic used for TCP sequence and
// acknowledgement numbers.
package seqnum

// Add32BE adds a 16-bit unsigned increment to a 4-byte big-endian counter
// in place. The result is the correct unsigned mod-2^32 value on any host
// regardless of native endianness or native integer width: inc is split
// into two 8-bit halves and added byte-wise, with carry, from byte 3 down
// to byte 0.
//
// It returns the new value of counter[0] (the most significant byte).
// A return value of zero signals that a carry past bit 31 occurred (the
// mod-2^32 wraparound); callers that care about overflow test for this,
// though none currently do.
func Add32BE(counter *[4]byte, inc uint16) byte {
	incH := byte(inc >> 8)
	incL := byte(inc)

	carry := int(counter[3]) + int(incL)
	counter[3] = byte(carry)
	carry >>= 8

	carry = int(counter[2]) + int(incH) + carry
	counter[2] = byte(carry)
	carry >>= 8

	carry = int(counter[1]) + carry
	counter[1] = byte(carry)
	carry >>= 8

	carry = int(counter[0]) + carry
	counter[0] = byte(carry)

	return counter[0]
}

// ReadBE32 interprets counter as an unsigned big-endian 32-bit value.
func ReadBE32(counter [4]byte) uint32 {
	return uint32(counter[0])<<24 | uint32(counter[1])<<16 | uint32(counter[2])<<8 | uint32(counter[3])
}

// WriteBE32 writes v into counter as big-endian.
func WriteBE32(counter *[4]byte, v uint32) {
	counter[0] = byte(v >> 24)
	counter[1] = byte(v >> 16)
	counter[2] = byte(v >> 8)
	counter[3] = byte(v)
}

// Equal reports whether two big-endian counters represent the same value.
func Equal(a, b [4]byte) bool {
	return a == b
}
