package mix

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MaxWordValue is the largest magnitude a word can hold (64^5 - 1).
const MaxWordValue = ByteSize*ByteSize*ByteSize*ByteSize*ByteSize - 1

// Word is a signed five byte MIX word. The A and X registers are words as well.
type Word struct {
	Sign  Sign
	Bytes [5]Byte
}

// WordFromValue encodes value as a word. Values outside of ±MaxWordValue don't fit.
func WordFromValue(value int64) (Word, error) {
	var w Word
	var magnitude int64
	w.Sign, magnitude = signOf(value)

	if !fillBytes(w.Bytes[:], magnitude) {
		return Word{}, eris.Errorf("%d does not fit into a word", value)
	}
	return w, nil
}

// Value returns the signed integer stored in the word. A minus zero yields 0.
func (w Word) Value() int64 {
	return applySign(w.Sign, bytesValue(w.Bytes[:]))
}

// Field extracts the bytes selected by f and shifts them to the right, the way the load
// instructions do. The sign is only taken over if the field includes byte 0.
func (w Word) Field(f FieldSpec) (Word, error) {
	if err := f.Validate(); err != nil {
		return Word{}, err
	}

	var result Word
	l := f.L
	if l == 0 {
		result.Sign = w.Sign
		l = 1
	}

	if f.R == 0 {
		return result, nil
	}

	selected := w.Bytes[l-1 : f.R]
	copy(result.Bytes[len(result.Bytes)-len(selected):], selected)
	return result, nil
}

func (w Word) String() string {
	var b strings.Builder
	b.WriteString(w.Sign.String())
	for _, item := range w.Bytes {
		b.WriteByte(' ')
		b.WriteString(twoDigits(item))
	}
	return b.String()
}

func twoDigits(b Byte) string {
	return string([]byte{'0' + byte(b)/10, '0' + byte(b)%10})
}

// Index is one of the index registers I1 to I6
type Index struct {
	Sign  Sign
	Bytes [2]Byte
}

// Value returns the signed contents of the register
func (i Index) Value() int64 {
	return applySign(i.Sign, bytesValue(i.Bytes[:]))
}

// Set stores value in the register. Only two bytes are available.
func (i *Index) Set(value int64) error {
	var tmp Index
	var magnitude int64
	tmp.Sign, magnitude = signOf(value)
	if !fillBytes(tmp.Bytes[:], magnitude) {
		return eris.Errorf("%d does not fit into an index register", value)
	}

	*i = tmp
	return nil
}

// Jump is the J register. Its sign is always plus.
type Jump struct {
	Bytes [2]Byte
}

// Value returns the stored address
func (j Jump) Value() int64 {
	return bytesValue(j.Bytes[:])
}

// Set stores a (non-negative) address in the register.
func (j *Jump) Set(value int64) error {
	if value < 0 {
		return eris.Errorf("the jump register can't hold negative value %d", value)
	}

	var tmp Jump
	if !fillBytes(tmp.Bytes[:], value) {
		return eris.Errorf("%d does not fit into the jump register", value)
	}

	*j = tmp
	return nil
}
