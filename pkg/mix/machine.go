package mix

import (
	"github.com/rotisserie/eris"
)

// MemorySize is the number of words in a MIX machine's memory
const MemorySize = 4000

// Machine holds the complete state of a MIX computer
type Machine struct {
	A          Word
	X          Word
	I          [6]Index
	J          Jump
	Overflow   Toggle
	Comparison Comparison
	Memory     [MemorySize]Word
}

// NewMachine returns a machine with cleared registers and memory
func NewMachine() *Machine {
	return &Machine{
		Overflow:   Off,
		Comparison: Equal,
	}
}

// Index returns a pointer to the index register n
func (m *Machine) Index(n IndexNumber) (*Index, error) {
	if n == NoIndex || !n.Valid() {
		return nil, eris.Errorf("no index register %d", n)
	}

	return &m.I[n-1], nil
}

func checkAddress(addr int64) error {
	if addr < 0 || addr >= MemorySize {
		return eris.Errorf("address %d is outside of memory", addr)
	}
	return nil
}

// Load reads the word at addr
func (m *Machine) Load(addr int64) (Word, error) {
	if err := checkAddress(addr); err != nil {
		return Word{}, err
	}

	return m.Memory[addr], nil
}

// Store writes w to addr
func (m *Machine) Store(addr int64, w Word) error {
	if err := checkAddress(addr); err != nil {
		return err
	}

	m.Memory[addr] = w
	return nil
}

// EffectiveAddress computes M = AA + rIi for inst. The result isn't bounds checked since not
// every instruction uses M as a memory address.
func (m *Machine) EffectiveAddress(inst Instruction) (int64, error) {
	addr := inst.Address.Value()
	if inst.Index == NoIndex {
		return addr, nil
	}

	reg, err := m.Index(inst.Index)
	if err != nil {
		return 0, err
	}

	return addr + reg.Value(), nil
}

// Fetch decodes the instruction stored at addr
func (m *Machine) Fetch(addr int64) (Instruction, error) {
	w, err := m.Load(addr)
	if err != nil {
		return Instruction{}, err
	}

	inst, err := DecodeInstruction(w)
	if err != nil {
		return Instruction{}, eris.Wrapf(err, "failed to decode instruction at %d", addr)
	}
	return inst, nil
}
