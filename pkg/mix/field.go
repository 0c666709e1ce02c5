package mix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldSpec selects the bytes L through R of a word. Byte 0 is the sign.
type FieldSpec struct {
	L uint8
	R uint8
}

// FullField covers the whole word including the sign
var FullField = FieldSpec{L: 0, R: 5}

// FieldFromByte unpacks the field specification stored in an instruction's F byte.
func FieldFromByte(b Byte) FieldSpec {
	return FieldSpec{
		L: uint8(b) / 8,
		R: uint8(b) % 8,
	}
}

// Byte packs the field specification as 8*L+R.
func (f FieldSpec) Byte() (Byte, error) {
	if f.R >= 8 {
		return 0, eris.Errorf("field %s: R has to be below 8", f)
	}

	packed := int(f.L)*8 + int(f.R)
	if packed >= ByteSize {
		return 0, eris.Wrapf(ErrByteRange, "field %s packs to %d", f, packed)
	}
	return Byte(packed), nil
}

// Validate checks that the field lies within a word (0 <= L <= R <= 5).
func (f FieldSpec) Validate() error {
	if f.L > f.R {
		return eris.Errorf("field %s: L is larger than R", f)
	}

	if f.R > 5 {
		return eris.Errorf("field %s: R is outside of the word", f)
	}

	return nil
}

func (f FieldSpec) String() string {
	return fmt.Sprintf("%d:%d", f.L, f.R)
}

// ParseFieldSpec parses the L:R notation
func ParseFieldSpec(value string) (FieldSpec, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return FieldSpec{}, eris.Errorf("expected L:R but got %q", value)
	}

	l, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
	if err != nil {
		return FieldSpec{}, eris.Wrapf(err, "invalid L in %q", value)
	}

	r, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 8)
	if err != nil {
		return FieldSpec{}, eris.Wrapf(err, "invalid R in %q", value)
	}

	field := FieldSpec{L: uint8(l), R: uint8(r)}
	if err := field.Validate(); err != nil {
		return FieldSpec{}, err
	}
	return field, nil
}
