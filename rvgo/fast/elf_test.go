package fast

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvemu/rvemu/rvgo/isa"
	"github.com/rvemu/rvemu/rvgo/riscv"
)

type testSegment struct {
	typ    elf.ProgType
	vaddr  uint64
	data   []byte
	memsz  uint64 // defaults to len(data)
	filesz uint64 // defaults to len(data)
}

type testImage struct {
	entry    uint64
	machine  elf.Machine
	segments []testSegment
}

// writeTestELF builds a minimal little-endian ELF64 executable, with program headers
// only, and returns its path.
func writeTestELF(t *testing.T, img testImage) string {
	t.Helper()
	if img.machine == 0 {
		img.machine = elf.EM_RISCV
	}
	const ehsize, phentsize = 64, 56
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(img.machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.entry,
		Phoff:     ehsize,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(img.segments)),
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	off := uint64(ehsize + phentsize*len(img.segments))
	for _, seg := range img.segments {
		filesz, memsz := seg.filesz, seg.memsz
		if filesz == 0 {
			filesz = uint64(len(seg.data))
		}
		if memsz == 0 {
			memsz = uint64(len(seg.data))
		}
		prog := elf.Prog64{
			Type:   uint32(seg.typ),
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Off:    off,
			Vaddr:  seg.vaddr,
			Paddr:  seg.vaddr,
			Filesz: filesz,
			Memsz:  memsz,
			Align:  8,
		}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, prog))
		off += uint64(len(seg.data))
	}
	for _, seg := range img.segments {
		buf.Write(seg.data)
	}

	path := filepath.Join(t.TempDir(), "test.elf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o755))
	return path
}

// assemble encodes prog as little-endian instruction words.
func assemble(prog ...isa.Instr) []byte {
	out := make([]byte, 0, len(prog)*4)
	for _, in := range prog {
		out = binary.LittleEndian.AppendUint32(out, isa.MustEncode(in))
	}
	return out
}

func loadTestELF(t *testing.T, img testImage) (*Machine, error) {
	t.Helper()
	f, err := OpenELF(writeTestELF(t, img))
	require.NoError(t, err)
	defer f.Close()
	return LoadELF(f)
}

func TestLoadELF(t *testing.T) {
	code := assemble(
		isa.Instr{Op: isa.ADDI, Rd: riscv.RegA0, Imm: 42},
		isa.Instr{Op: isa.ECALL},
	)
	m, err := loadTestELF(t, testImage{
		entry: 0x10000,
		segments: []testSegment{
			{typ: elf.PT_LOAD, vaddr: 0x10000, data: code},
			{typ: elf.PT_LOAD, vaddr: 0x12000, data: []byte{1, 2, 3, 4}, memsz: 0x1800},
			{typ: elf.PT_NOTE, vaddr: 0x40000, data: []byte{9, 9, 9, 9}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000), m.State.PC)
	require.Equal(t, uint64(isa.MustEncode(isa.Instr{Op: isa.ECALL})), m.Memory.Load(0x10004, 4))
	require.Equal(t, uint64(0x04030201), m.Memory.Load(0x12000, 4))
	require.Equal(t, uint64(0), m.Memory.Load(0x12004, 8), "bss is zeroed")
	require.Equal(t, uint64(0), m.Memory.Load(0x40000, 4), "non-loadable segments are skipped")
	require.Equal(t, uint64(0x14000), m.BrkBase, "break starts on the page after the image")
	require.Equal(t, m.BrkBase, m.Brk)
	require.Equal(t, uint64(DefaultHeapStart), m.Heap)
}

func TestLoadELFErrors(t *testing.T) {
	code := assemble(isa.Instr{Op: isa.ECALL})
	cases := []struct {
		name string
		img  testImage
		msg  string
	}{
		{
			name: "wrong machine",
			img: testImage{entry: 0x1000, machine: elf.EM_X86_64,
				segments: []testSegment{{typ: elf.PT_LOAD, vaddr: 0x1000, data: code}}},
			msg: "expected EM_RISCV",
		},
		{
			name: "file larger than memory",
			img: testImage{entry: 0x1000,
				segments: []testSegment{{typ: elf.PT_LOAD, vaddr: 0x1000, data: code, memsz: 2}}},
			msg: "file size (4) > mem size (2)",
		},
		{
			name: "nothing to load",
			img: testImage{entry: 0x1000,
				segments: []testSegment{{typ: elf.PT_NOTE, vaddr: 0x1000, data: code}}},
			msg: "no loadable segments",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadTestELF(t, tc.img)
			require.ErrorIs(t, err, riscv.ErrInvalidELF)
			require.ErrorContains(t, err, tc.msg)
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
		})
	}

	t.Run("not an ELF", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o755))
		_, err := OpenELF(path)
		require.ErrorIs(t, err, riscv.ErrInvalidELF)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenELF(filepath.Join(t.TempDir(), "missing"))
		require.ErrorIs(t, err, os.ErrNotExist)
		require.NotErrorIs(t, err, riscv.ErrInvalidELF)
	})
}

func TestSetupStack(t *testing.T) {
	m := NewMachine()
	argv := []string{"prog", "-v"}
	envp := []string{"HOME=/"}
	require.NoError(t, m.SetupStack(argv, envp))

	sp := m.State.Registers[riscv.RegSP]
	require.Zero(t, sp%16, "sp is 16-byte aligned")
	require.Less(t, sp, uint64(StackTop))

	word := func(i uint64) uint64 { return m.Memory.Load(sp+i*8, 8) }
	str := func(addr uint64) string {
		s, err := m.Memory.ReadCString(addr, 256)
		require.NoError(t, err)
		return s
	}
	require.Equal(t, uint64(2), word(0), "argc")
	require.Equal(t, "prog", str(word(1)))
	require.Equal(t, "-v", str(word(2)))
	require.Equal(t, uint64(0), word(3))
	require.Equal(t, "HOME=/", str(word(4)))
	require.Equal(t, uint64(0), word(5))

	require.Equal(t, uint64(riscv.AtPagesz), word(6))
	require.Equal(t, uint64(PageSize), word(7))
	require.Equal(t, uint64(riscv.AtRandom), word(8))
	random := make([]byte, 16)
	m.Memory.GetUnaligned(word(9), random)
	require.Equal(t, stackRandom[:], random)
	require.Equal(t, uint64(riscv.AtNull), word(10))
	require.Equal(t, uint64(0), word(11))

	t.Run("too large", func(t *testing.T) {
		m := NewMachine()
		m.StackSize = 64
		require.Error(t, m.SetupStack([]string{"a-program-name-longer-than-the-stack-allows-for-sure"}, nil))
	})
}

func TestSymbols(t *testing.T) {
	syms := SortedSymbols{
		{Name: "_start", Value: 0x1000, Size: 0x10},
		{Name: "main", Value: 0x1010, Size: 0x20},
		{Name: "exit", Value: 0x1100, Size: 0x8},
	}
	require.Equal(t, "!start", syms.FindSymbol(0x10).Name)
	require.Equal(t, "_start", syms.LookupSymbol(0x1004))
	require.Equal(t, "main", syms.LookupSymbol(0x1020))
	require.Equal(t, "!gap", syms.LookupSymbol(0x1090))
	require.Equal(t, "exit", syms.LookupSymbol(0x1100))
	require.Equal(t, "!unknown", SortedSymbols{}.LookupSymbol(0x1000))

	f, err := OpenELF(writeTestELF(t, testImage{entry: 0x1000, segments: []testSegment{
		{typ: elf.PT_LOAD, vaddr: 0x1000, data: assemble(isa.Instr{Op: isa.ECALL})},
	}}))
	require.NoError(t, err)
	defer f.Close()
	stripped, err := Symbols(f)
	require.NoError(t, err)
	require.Empty(t, stripped)
}
