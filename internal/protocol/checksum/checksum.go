// Package checksum implements the RSP packet checksum: the modulo-256 sum of
// every payload byte, carried on the wire as two hex digits after '#'.
package checksum

import (
	"errors"
	"fmt"
)

// Len is the number of hex digits carrying a checksum on the wire.
const Len = 2

// ErrMalformed reports checksum digits that are not exactly two hex digits.
var ErrMalformed = errors.New("checksum: malformed checksum")

const hexDigits = "0123456789abcdef"

// Compute returns the modulo-256 sum of payload.
func Compute(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Parse decodes exactly two hex digits, either case.
func Parse(b []byte) (byte, error) {
	if len(b) != Len {
		return 0, fmt.Errorf("%w: want %d hex digits, got %d", ErrMalformed, Len, len(b))
	}
	hi, ok := unhex(b[0])
	if !ok {
		return 0, fmt.Errorf("%w: invalid digit %q", ErrMalformed, b[0])
	}
	lo, ok := unhex(b[1])
	if !ok {
		return 0, fmt.Errorf("%w: invalid digit %q", ErrMalformed, b[1])
	}
	return hi<<4 | lo, nil
}

// Format renders sum as two lowercase hex digits.
func Format(sum byte) [Len]byte {
	return [Len]byte{hexDigits[sum>>4], hexDigits[sum&0x0f]}
}

// Append appends the two-digit form of sum to dst.
func Append(dst []byte, sum byte) []byte {
	f := Format(sum)
	return append(dst, f[:]...)
}

// Verify reports whether want matches the checksum of payload.
func Verify(payload []byte, want byte) bool {
	return Compute(payload) == want
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
