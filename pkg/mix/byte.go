package mix

import (
	"github.com/rotisserie/eris"
)

// ByteSize is the number of distinct values a MIX byte can hold.
const ByteSize = 64

// ErrByteRange is returned when a value doesn't fit into a MIX byte.
var ErrByteRange = eris.New("byte should be less than 64")

// Byte is a single six bit MIX byte
type Byte uint8

// NewByte checks that b fits into six bits and returns it as a Byte.
func NewByte(b uint8) (Byte, error) {
	if b >= ByteSize {
		return 0, eris.Wrapf(ErrByteRange, "got %d", b)
	}

	return Byte(b), nil
}

// MustByte is like NewByte but panics on invalid values. Only use it for constants.
func MustByte(b uint8) Byte {
	result, err := NewByte(b)
	if err != nil {
		panic(err)
	}
	return result
}

// Sign is the sign bit of words, index registers and addresses
type Sign uint8

const (
	Plus Sign = iota
	Minus
)

func (s Sign) String() string {
	if s == Minus {
		return "-"
	}
	return "+"
}

// Toggle is the state of the overflow toggle
type Toggle uint8

const (
	Off Toggle = iota
	On
)

func (t Toggle) String() string {
	if t == On {
		return "on"
	}
	return "off"
}

// Comparison is the value of the comparison indicator
type Comparison int8

const (
	Less Comparison = iota - 1
	Equal
	Greater
)

func (c Comparison) String() string {
	switch c {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// bytesValue interprets bytes as an unsigned base-64 number (most significant byte first).
func bytesValue(bytes []Byte) int64 {
	var value int64
	for _, b := range bytes {
		value = value*ByteSize + int64(b)
	}
	return value
}

// fillBytes writes magnitude into bytes and reports whether it fit.
func fillBytes(bytes []Byte, magnitude int64) bool {
	for idx := len(bytes) - 1; idx >= 0; idx-- {
		bytes[idx] = Byte(magnitude % ByteSize)
		magnitude /= ByteSize
	}
	return magnitude == 0
}

func signOf(value int64) (Sign, int64) {
	if value < 0 {
		return Minus, -value
	}
	return Plus, value
}

func applySign(sign Sign, magnitude int64) int64 {
	if sign == Minus {
		return -magnitude
	}
	return magnitude
}
