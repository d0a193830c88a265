package fast

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

// LoadError reports an ELF file that cannot be run.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid ELF: %s: %v", e.Reason, e.Err)
	}
	return "invalid ELF: " + e.Reason
}

func (e *LoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{riscv.ErrInvalidELF, e.Err}
	}
	return []error{riscv.ErrInvalidELF}
}

// OpenELF opens path as an ELF file. Format errors are reported as *LoadError.
func OpenELF(path string) (*elf.File, error) {
	f, err := elf.Open(path)
	if err != nil {
		var formatErr *elf.FormatError
		if errors.As(err, &formatErr) {
			return nil, &LoadError{Reason: path, Err: err}
		}
		return nil, fmt.Errorf("failed to open ELF file %q: %w", path, err)
	}
	return f, nil
}

// LoadELF copies the PT_LOAD segments of a little-endian RV64 executable into a fresh
// machine, zero-fills bss, points PC at the entry and places the program break after
// the highest segment.
func LoadELF(f *elf.File) (*Machine, error) {
	if f.Class != elf.ELFCLASS64 {
		return nil, &LoadError{Reason: fmt.Sprintf("class %s, expected ELFCLASS64", f.Class)}
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, &LoadError{Reason: fmt.Sprintf("data encoding %s, expected little-endian", f.Data)}
	}
	if f.Machine != elf.EM_RISCV {
		return nil, &LoadError{Reason: fmt.Sprintf("machine %s, expected EM_RISCV", f.Machine)}
	}

	out := NewMachine()
	out.State.PC = f.Entry

	var end uint64
	for i, prog := range f.Progs {
		// RISC-V reuses the MIPS_ABIFLAGS program type for its .riscv.attributes segment,
		// which has no memory size; it is skipped with every other non-loadable segment.
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return nil, &LoadError{Reason: fmt.Sprintf("PT_LOAD segment %d: file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)}
		}

		r := io.Reader(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
		if prog.Filesz < prog.Memsz {
			r = io.MultiReader(r, bytes.NewReader(make([]byte, prog.Memsz-prog.Filesz)))
		}
		if err := out.Memory.SetMemoryRange(prog.Vaddr, r); err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("segment %d", i), Err: err}
		}
		if e := prog.Vaddr + prog.Memsz; e > end {
			end = e
		}
	}
	if end == 0 {
		return nil, &LoadError{Reason: "no loadable segments"}
	}

	out.BrkBase = alignUp(end, PageSize)
	out.Brk = out.BrkBase
	return out, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// fixed AT_RANDOM contents, keeping runs deterministic
var stackRandom = [16]byte{'r', 'a', 'n', 'd', ' ', 'p', 'r', 'o', 't', 'o', 'l', 'a', 'm', 'b', 'd', 'a'}

// SetupStack writes the initial process stack below StackTop and points sp at argc:
//
//	sp -> argc
//	      argv[0..argc-1], 0
//	      envp[...], 0
//	      auxv: AT_PAGESZ, AT_RANDOM, AT_NULL pairs
//	      16 random bytes, then the argument and environment strings
func (m *Machine) SetupStack(argv, envp []string) error {
	pos := uint64(StackTop)
	pushString := func(str string) uint64 {
		pos -= uint64(len(str)) + 1
		m.Memory.SetUnaligned(pos, append([]byte(str), 0))
		return pos
	}
	argvPtrs := make([]uint64, len(argv))
	for i, a := range argv {
		argvPtrs[i] = pushString(a)
	}
	envPtrs := make([]uint64, len(envp))
	for i, e := range envp {
		envPtrs[i] = pushString(e)
	}
	pos -= uint64(len(stackRandom))
	randomAddr := pos
	m.Memory.SetUnaligned(randomAddr, stackRandom[:])
	pos &^= 15

	words := []uint64{uint64(len(argv))}
	words = append(words, argvPtrs...)
	words = append(words, 0)
	words = append(words, envPtrs...)
	words = append(words, 0)
	words = append(words,
		riscv.AtPagesz, PageSize,
		riscv.AtRandom, randomAddr,
		riscv.AtNull, 0,
	)

	sp := (pos - uint64(len(words))*8) &^ 15
	if size := uint64(StackTop) - sp; m.StackSize != 0 && size > m.StackSize {
		return fmt.Errorf("initial stack needs %d bytes, stack size is %d", size, m.StackSize)
	}
	buf := make([]byte, 0, len(words)*8)
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	m.Memory.SetUnaligned(sp, buf)
	m.State.writeRegister(riscv.RegSP, sp)
	return nil
}

type SortedSymbols []elf.Symbol

// FindSymbol finds the symbol that intersects with the given addr, or a placeholder if none exists
func (s SortedSymbols) FindSymbol(addr uint64) elf.Symbol {
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Value > addr
	})
	if i == 0 {
		return elf.Symbol{Name: "!start", Value: 0}
	}
	out := &s[i-1]
	if out.Value+out.Size < addr { // addr may be pointing to a gap between symbols
		return elf.Symbol{Name: "!gap", Value: addr}
	}
	return *out
}

// LookupSymbol names the function containing addr, for progress logs.
func (s SortedSymbols) LookupSymbol(addr uint64) string {
	if len(s) == 0 {
		return "!unknown"
	}
	return s.FindSymbol(addr).Name
}

// Symbols returns the ELF symbol table sorted by address. Stripped binaries yield an empty table.
func Symbols(f *elf.File) (SortedSymbols, error) {
	symbols, err := f.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		return SortedSymbols{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	// not every ELF has sorted symbols
	out := make(SortedSymbols, len(symbols))
	copy(out, symbols)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out, nil
}
