package mix

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewByte(t *testing.T) {
	b, err := NewByte(63)
	require.NoError(t, err)
	assert.Equal(t, Byte(63), b)

	_, err = NewByte(64)
	assert.ErrorIs(t, err, ErrByteRange)

	assert.Panics(t, func() { MustByte(200) })
}

func TestWordValues(t *testing.T) {
	tests := []struct {
		value int64
		want  Word
	}{
		{0, Word{}},
		{5, Word{Sign: Plus, Bytes: [5]Byte{0, 0, 0, 0, 5}}},
		{-65, Word{Sign: Minus, Bytes: [5]Byte{0, 0, 0, 1, 1}}},
		{MaxWordValue, Word{Sign: Plus, Bytes: [5]Byte{63, 63, 63, 63, 63}}},
	}

	for _, tt := range tests {
		got, err := WordFromValue(tt.value)
		require.NoError(t, err)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("WordFromValue(%d) mismatch (-want +got):\n%s", tt.value, diff)
		}
		assert.Equal(t, tt.value, got.Value())
	}

	_, err := WordFromValue(MaxWordValue + 1)
	assert.Error(t, err)

	_, err = WordFromValue(-MaxWordValue - 1)
	assert.Error(t, err)
}

func TestMinusZero(t *testing.T) {
	w := Word{Sign: Minus}
	assert.Equal(t, int64(0), w.Value())
	assert.Equal(t, "- 00 00 00 00 00", w.String())
}

func TestWordField(t *testing.T) {
	w := Word{Sign: Minus, Bytes: [5]Byte{1, 2, 3, 4, 5}}

	tests := []struct {
		field FieldSpec
		want  Word
	}{
		{FullField, w},
		{FieldSpec{1, 5}, Word{Sign: Plus, Bytes: [5]Byte{1, 2, 3, 4, 5}}},
		{FieldSpec{3, 5}, Word{Sign: Plus, Bytes: [5]Byte{0, 0, 3, 4, 5}}},
		{FieldSpec{0, 3}, Word{Sign: Minus, Bytes: [5]Byte{0, 0, 1, 2, 3}}},
		{FieldSpec{4, 4}, Word{Sign: Plus, Bytes: [5]Byte{0, 0, 0, 0, 4}}},
		{FieldSpec{0, 0}, Word{Sign: Minus}},
	}

	for _, tt := range tests {
		t.Run(tt.field.String(), func(t *testing.T) {
			got, err := w.Field(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := w.Field(FieldSpec{4, 2})
	assert.Error(t, err)
}

func TestIndexAndJumpRegisters(t *testing.T) {
	var idx Index
	require.NoError(t, idx.Set(-100))
	assert.Equal(t, Minus, idx.Sign)
	assert.Equal(t, int64(-100), idx.Value())
	assert.Error(t, idx.Set(ByteSize*ByteSize))
	assert.Equal(t, int64(-100), idx.Value(), "failed writes must not modify the register")

	var j Jump
	require.NoError(t, j.Set(3999))
	assert.Equal(t, int64(3999), j.Value())
	assert.Error(t, j.Set(-1))
}
