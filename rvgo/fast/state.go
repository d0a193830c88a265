package fast

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ExitReason tells the stepping loop why ExecBlock stopped.
type ExitReason uint8

const (
	ExitNone ExitReason = iota
	ExitDirectBranch
	ExitIndirectBranch
	ExitECall
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return "none"
	case ExitDirectBranch:
		return "direct-branch"
	case ExitIndirectBranch:
		return "indirect-branch"
	case ExitECall:
		return "ecall"
	}
	return fmt.Sprintf("exit(%d)", uint8(r))
}

// State is the architectural state of the single hart.
type State struct {
	PC uint64 `json:"pc"`
	// ReEnterPC is where execution resumes after a block-ending instruction.
	ReEnterPC  uint64     `json:"reEnterPC"`
	ExitReason ExitReason `json:"exitReason"`

	Registers [32]uint64 `json:"registers"`
	// FRegisters hold raw bit patterns; single-precision values are NaN-boxed.
	FRegisters [32]uint64 `json:"fregisters"`
	CSR        CSRFile    `json:"csr"`

	// address of the outstanding LR, 0 if none
	LoadReservation uint64 `json:"loadReservation"`

	// instructions retired
	Step uint64 `json:"step"`
}

const (
	canonicalNaN32 = 0x7fc00000
	canonicalNaN64 = 0x7ff8000000000000
	nanBoxMask     = 0xffffffff_00000000
)

func (s *State) loadRegister(reg uint8) uint64 {
	return s.Registers[reg]
}

func (s *State) writeRegister(reg uint8, v uint64) {
	if reg == 0 {
		return // reg 0 must stay 0
	}
	s.Registers[reg] = v
}

// ReadRegister returns integer register reg.
func (s *State) ReadRegister(reg uint8) uint64 { return s.Registers[reg&31] }

// WriteRegister sets integer register reg; writes to x0 are discarded.
func (s *State) WriteRegister(reg uint8, v uint64) { s.writeRegister(reg&31, v) }

// loadF32 reads a single-precision operand. Values that are not properly NaN-boxed read as the canonical NaN.
func (s *State) loadF32(reg uint8) float32 {
	v := s.FRegisters[reg]
	if v&nanBoxMask != nanBoxMask {
		return math.Float32frombits(canonicalNaN32)
	}
	return math.Float32frombits(uint32(v))
}

// writeF32 stores an arithmetic result, canonicalizing NaN.
func (s *State) writeF32(reg uint8, f float32) {
	bits := math.Float32bits(f)
	if f != f {
		bits = canonicalNaN32
	}
	s.writeF32Bits(reg, bits)
}

func (s *State) writeF32Bits(reg uint8, bits uint32) {
	s.FRegisters[reg] = nanBoxMask | uint64(bits)
}

func (s *State) loadF32Bits(reg uint8) uint32 {
	v := s.FRegisters[reg]
	if v&nanBoxMask != nanBoxMask {
		return canonicalNaN32
	}
	return uint32(v)
}

func (s *State) loadF64(reg uint8) float64 {
	return math.Float64frombits(s.FRegisters[reg])
}

func (s *State) writeF64(reg uint8, f float64) {
	bits := math.Float64bits(f)
	if f != f {
		bits = canonicalNaN64
	}
	s.FRegisters[reg] = bits
}

// Instr reads the 32-bit word at PC. A compressed instruction only uses the low half.
func (s *State) Instr(mem *Memory) uint32 {
	return uint32(mem.Load(s.PC, 4))
}

// EncodeState writes the CPU state in a fixed big-endian layout, used for state hashing.
func (s *State) EncodeState(out io.Writer) error {
	var buf []byte
	buf = binary.BigEndian.AppendUint64(buf, s.PC)
	buf = binary.BigEndian.AppendUint64(buf, s.ReEnterPC)
	buf = append(buf, byte(s.ExitReason))
	for _, r := range s.Registers {
		buf = binary.BigEndian.AppendUint64(buf, r)
	}
	for _, r := range s.FRegisters {
		buf = binary.BigEndian.AppendUint64(buf, r)
	}
	for i, v := range s.CSR {
		if v == 0 {
			continue
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(i))
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	buf = binary.BigEndian.AppendUint64(buf, s.LoadReservation)
	buf = binary.BigEndian.AppendUint64(buf, s.Step)
	_, err := out.Write(buf)
	return err
}
