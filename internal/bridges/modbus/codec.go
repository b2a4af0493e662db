package modbus

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Codec limits.
const (
	// maxBitsLen is the longest bit sequence BitsToInt accepts.
	maxBitsLen = 63

	// maxIntBytes is the longest byte sequence BytesToInt accepts.
	maxIntBytes = 4

	// maxIntWords is the longest register sequence WordsToInt accepts.
	maxIntWords = 4

	// wordBits is the width of one Modbus register.
	wordBits = 16

	// halfBits splits wide integers into two 32-bit halves.
	halfBits = 32
)

// BitsToInt concatenates a bit sequence, most significant first, into an
// unsigned integer.
//
// Parameters:
//   - in: 1 to 63 elements, each 0 or 1
//
// Returns:
//   - uint64: Decoded value
//   - error: ErrInvalidLength or ErrInvalidValue on malformed input
func BitsToInt(in []uint16) (uint64, error) {
	if len(in) == 0 || len(in) > maxBitsLen {
		return 0, fmt.Errorf("%w: %d bits", ErrInvalidLength, len(in))
	}
	var v uint64
	for i, b := range in {
		if b > 1 {
			return 0, fmt.Errorf("%w: bit %d is %d", ErrInvalidValue, i, b)
		}
		v = v<<1 | uint64(b)
	}
	return v, nil
}

// BytesToInt decodes 1 to 4 bytes as a big-endian unsigned integer.
func BytesToInt(in []byte) (uint64, error) {
	if len(in) == 0 || len(in) > maxIntBytes {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(in))
	}
	var v uint64
	for _, b := range in {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// WordsToInt decodes 1 to 4 registers, first register most significant.
func WordsToInt(in []uint16) (uint64, error) {
	if len(in) == 0 || len(in) > maxIntWords {
		return 0, fmt.Errorf("%w: %d registers", ErrInvalidLength, len(in))
	}
	var v uint64
	for _, w := range in {
		v = v<<wordBits | uint64(w)
	}
	return v, nil
}

// IntToWords encodes v as registers. Values wider than 32 bits are split
// into a high and a low 32-bit half; each half contributes only the 16-bit
// chunks its magnitude needs. The result length therefore varies and the
// caller pads it to the visitor offset.
func IntToWords(v uint64) []uint16 {
	if v>>halfBits == 0 {
		return halfToWords(uint32(v))
	}
	out := halfToWords(uint32(v >> halfBits))
	return append(out, halfToWords(uint32(v))...)
}

func halfToWords(h uint32) []uint16 {
	if h>>wordBits == 0 {
		return []uint16{uint16(h)}
	}
	return []uint16{uint16(h >> wordBits), uint16(h)}
}

// IntToBits renders v as binary digits, most significant first, with no
// fixed width. Zero renders as a single 0.
func IntToBits(v uint64) []uint16 {
	n := bits.Len64(v)
	if n == 0 {
		return []uint16{0}
	}
	out := make([]uint16, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = uint16(v & 1)
		v >>= 1
	}
	return out
}

// ReverseWords returns the registers in reverse order.
func ReverseWords(in []uint16) []uint16 {
	out := make([]uint16, len(in))
	for i, w := range in {
		out[len(in)-1-i] = w
	}
	return out
}

// SwapWordBytes swaps the high and low byte of every register.
func SwapWordBytes(in []uint16) []uint16 {
	out := make([]uint16, len(in))
	for i, w := range in {
		out[i] = bits.ReverseBytes16(w)
	}
	return out
}

// PadWords left-pads in with zero registers up to width. It fails with
// ErrValueTooWide when in is already longer than width.
func PadWords(in []uint16, width int) ([]uint16, error) {
	if len(in) > width {
		return nil, fmt.Errorf("%w: %d registers, offset %d", ErrValueTooWide, len(in), width)
	}
	out := make([]uint16, width)
	copy(out[width-len(in):], in)
	return out, nil
}

// wordsFromBytes converts a big-endian register payload into registers.
func wordsFromBytes(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd register payload of %d bytes", ErrInvalidLength, len(b))
	}
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return out, nil
}

// bytesFromWords converts registers into a big-endian payload.
func bytesFromWords(words []uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(out[i*2:], w)
	}
	return out
}

// packCoils packs one coil per element, first element in the least
// significant bit of the first byte. Any non-zero element sets the coil.
func packCoils(coils []uint16) []byte {
	out := make([]byte, (len(coils)+7)/8)
	for i, c := range coils {
		if c != 0 {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

// firstCoil returns the state of the first coil in a packed response.
func firstCoil(b []byte) (uint16, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty coil response", ErrInvalidLength)
	}
	return uint16(b[0] & 1), nil
}
