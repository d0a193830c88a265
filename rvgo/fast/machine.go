package fast

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

const (
	// Anonymous mmap regions are handed out upward from here, far above any program image.
	DefaultHeapStart = 0x7f_00_00_00_00_00
	// The initial stack grows down from StackTop.
	StackTop         = 0x7f_ff_ff_ff_f0_00
	DefaultStackSize = 32 << 20
)

// Machine is a loaded guest process: the hart state, its address space and the
// process-level bookkeeping the syscall layer needs.
type Machine struct {
	State  *State  `json:"state"`
	Memory *Memory `json:"memory"`

	// Heap is the next address handed out by anonymous mmap.
	Heap uint64 `json:"heap"`
	// BrkBase is the initial program break, just past the highest loaded segment.
	BrkBase uint64 `json:"brkBase"`
	Brk     uint64 `json:"brk"`

	Exited   bool   `json:"exited"`
	ExitCode uint64 `json:"exitCode"`

	// MaxSteps bounds the instructions Step may retire in total. 0 means no limit.
	MaxSteps uint64 `json:"-"`
	// StackSize bounds the initial stack contents written by SetupStack.
	StackSize uint64 `json:"-"`
	// LinuxOpenFlags passes open flags through unchanged instead of translating newlib values.
	LinuxOpenFlags bool `json:"-"`

	Stdin  io.Reader  `json:"-"`
	Stdout io.Writer  `json:"-"`
	Stderr io.Writer  `json:"-"`
	Logger log.Logger `json:"-"`
	// Clock is the time source of the time syscalls; nil means the host clock.
	Clock func() time.Time `json:"-"`

	// guest fds above stderr, opened on the host
	files  map[uint64]*hostFile
	nextFd uint64
}

// NewMachine returns an empty machine with an unmapped address space.
func NewMachine() *Machine {
	return &Machine{
		State:     &State{},
		Memory:    NewMemory(),
		Heap:      DefaultHeapStart,
		StackSize: DefaultStackSize,
		Stdin:     strings.NewReader(""),
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Logger:    log.Root(),
	}
}

// Step runs the guest until it reaches an ECALL and returns ExitECall with PC already
// past the ECALL. Taken branches and jumps are followed without returning.
func (m *Machine) Step() (ExitReason, error) {
	s := m.State
	for {
		if m.MaxSteps != 0 && s.Step >= m.MaxSteps {
			return ExitNone, fmt.Errorf("%w after %d instructions (pc 0x%x)", riscv.ErrStepLimit, s.Step, s.PC)
		}
		if err := ExecBlock(s, m.Memory); err != nil {
			return ExitNone, err
		}
		reason := s.ExitReason
		s.PC = s.ReEnterPC
		switch reason {
		case ExitDirectBranch, ExitIndirectBranch:
			continue
		case ExitECall:
			return reason, nil
		default:
			return reason, fmt.Errorf("block ended with exit reason %s", reason)
		}
	}
}

// Run alternates Step and HandleSyscall until the guest exits.
// onECall, when non-nil, is called before each syscall is dispatched.
func (m *Machine) Run(onECall func(m *Machine) error) error {
	for !m.Exited {
		if _, err := m.Step(); err != nil {
			return err
		}
		if onECall != nil {
			if err := onECall(m); err != nil {
				return err
			}
		}
		if err := m.HandleSyscall(); err != nil {
			return err
		}
	}
	return nil
}

// StateHash is the keccak256 commitment to the full machine state.
func (m *Machine) StateHash() (common.Hash, error) {
	h := crypto.NewKeccakState()
	if err := m.State.EncodeState(h); err != nil {
		return common.Hash{}, err
	}
	var buf []byte
	buf = binary.BigEndian.AppendUint64(buf, m.Heap)
	buf = binary.BigEndian.AppendUint64(buf, m.BrkBase)
	buf = binary.BigEndian.AppendUint64(buf, m.Brk)
	if m.Exited {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, m.ExitCode)
	digest := m.Memory.Digest()
	buf = append(buf, digest[:]...)
	h.Write(buf)
	var out common.Hash
	h.Read(out[:])
	return out, nil
}

// Serialize writes the machine in a binary format readable by Deserialize.
// Fields are big endian: PC, ReEnterPC, exit reason byte, 32 integer registers,
// 32 float registers, the non-zero CSR count followed by (address uint16, value) pairs,
// load reservation, step, heap, brk base, brk, exited byte, exit code, then the memory.
func (m *Machine) Serialize(out io.Writer) error {
	s := m.State
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
	var count uint16
	for _, v := range s.CSR {
		if v != 0 {
			count++
		}
	}
	buf = binary.BigEndian.AppendUint16(buf, count)
	for i, v := range s.CSR {
		if v != 0 {
			buf = binary.BigEndian.AppendUint16(buf, uint16(i))
			buf = binary.BigEndian.AppendUint64(buf, v)
		}
	}
	buf = binary.BigEndian.AppendUint64(buf, s.LoadReservation)
	buf = binary.BigEndian.AppendUint64(buf, s.Step)
	buf = binary.BigEndian.AppendUint64(buf, m.Heap)
	buf = binary.BigEndian.AppendUint64(buf, m.BrkBase)
	buf = binary.BigEndian.AppendUint64(buf, m.Brk)
	if m.Exited {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, m.ExitCode)
	if _, err := out.Write(buf); err != nil {
		return err
	}
	return m.Memory.Serialize(out)
}

func (m *Machine) Deserialize(in io.Reader) error {
	s := &State{}
	read := func(v any) error {
		return binary.Read(in, binary.BigEndian, v)
	}
	var exitReason, exited uint8
	var csrCount uint16
	if err := read(&s.PC); err != nil {
		return err
	}
	if err := read(&s.ReEnterPC); err != nil {
		return err
	}
	if err := read(&exitReason); err != nil {
		return err
	}
	s.ExitReason = ExitReason(exitReason)
	if err := read(&s.Registers); err != nil {
		return err
	}
	if err := read(&s.FRegisters); err != nil {
		return err
	}
	if err := read(&csrCount); err != nil {
		return err
	}
	for i := uint16(0); i < csrCount; i++ {
		var addr uint16
		var v uint64
		if err := read(&addr); err != nil {
			return err
		}
		if err := read(&v); err != nil {
			return err
		}
		if addr >= riscv.CSRCount {
			return fmt.Errorf("invalid csr address 0x%x", addr)
		}
		s.CSR[addr] = v
	}
	for _, v := range []*uint64{&s.LoadReservation, &s.Step, &m.Heap, &m.BrkBase, &m.Brk} {
		if err := read(v); err != nil {
			return err
		}
	}
	if err := read(&exited); err != nil {
		return err
	}
	if err := read(&m.ExitCode); err != nil {
		return err
	}
	m.Exited = exited != 0
	mem := NewMemory()
	if err := mem.Deserialize(in); err != nil {
		return err
	}
	m.State = s
	m.Memory = mem
	return nil
}
