package mix

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// IndexNumber selects one of the index registers. NoIndex means the address isn't modified.
type IndexNumber uint8

const (
	NoIndex IndexNumber = iota
	I1
	I2
	I3
	I4
	I5
	I6
)

// Valid reports whether n refers to an existing register (or NoIndex)
func (n IndexNumber) Valid() bool {
	return n <= I6
}

// Address is the signed two byte address part of an instruction
type Address struct {
	Sign  Sign
	Bytes [2]Byte
}

// AddressFromValue encodes value as an instruction address.
func AddressFromValue(value int64) (Address, error) {
	var a Address
	var magnitude int64
	a.Sign, magnitude = signOf(value)
	if !fillBytes(a.Bytes[:], magnitude) {
		return Address{}, eris.Errorf("%d does not fit into an address", value)
	}
	return a, nil
}

// Value returns the signed address
func (a Address) Value() int64 {
	return applySign(a.Sign, bytesValue(a.Bytes[:]))
}

// Instruction is a decoded MIX instruction. In memory it's laid out as ±AA I F C.
type Instruction struct {
	OpCode       Byte
	Address      Address
	Index        IndexNumber
	Modification Byte
}

// Field interprets the modification byte as a field specification
func (i Instruction) Field() FieldSpec {
	return FieldFromByte(i.Modification)
}

// Word encodes the instruction. It fails if the index doesn't name a register or one of the parts
// doesn't fit into a byte.
func (i Instruction) Word() (Word, error) {
	if !i.Index.Valid() {
		return Word{}, eris.Errorf("invalid index register %d", i.Index)
	}

	w := Word{
		Sign: i.Address.Sign,
		Bytes: [5]Byte{
			i.Address.Bytes[0],
			i.Address.Bytes[1],
			Byte(i.Index),
			i.Modification,
			i.OpCode,
		},
	}

	for pos, b := range w.Bytes {
		if b >= ByteSize {
			return Word{}, eris.Wrapf(ErrByteRange, "byte %d of instruction %s is %d", pos+1, i, b)
		}
	}
	return w, nil
}

// DecodeInstruction splits w into its instruction parts.
func DecodeInstruction(w Word) (Instruction, error) {
	index := IndexNumber(w.Bytes[2])
	if !index.Valid() {
		return Instruction{}, eris.Errorf("invalid index register %d in word %s", index, w)
	}

	return Instruction{
		OpCode: w.Bytes[4],
		Address: Address{
			Sign:  w.Sign,
			Bytes: [2]Byte{w.Bytes[0], w.Bytes[1]},
		},
		Index:        index,
		Modification: w.Bytes[3],
	}, nil
}

func (i Instruction) String() string {
	return fmt.Sprintf("op=%d addr=%d idx=%d mod=%d", i.OpCode, i.Address.Value(), i.Index, i.Modification)
}
