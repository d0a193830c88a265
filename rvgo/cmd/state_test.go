package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvemu/rvemu/rvgo/fast"
	"github.com/rvemu/rvemu/rvgo/riscv"
)

func TestStateFormatsAgree(t *testing.T) {
	orig := fast.NewMachine()
	orig.State.PC = 0x10040
	orig.State.Step = 99
	orig.State.Registers[riscv.RegA0] = 7
	orig.Memory.Store(0x20000, 8, 0x1122_3344_5566_7788)
	orig.BrkBase = 0x30000
	orig.Brk = 0x31000
	orig.Heap = fast.DefaultHeapStart + 0x4000

	for _, name := range []string{"state.json", "state.json.gz", "state.bin"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteState(path, orig))
			m, err := LoadState(path)
			require.NoError(t, err)

			require.Equal(t, uint64(0x10040), m.State.PC)
			require.Equal(t, uint64(99), m.State.Step)
			require.Equal(t, uint64(7), m.State.Registers[riscv.RegA0])
			require.Equal(t, uint64(0x1122_3344_5566_7788), m.Memory.Load(0x20000, 8))
			require.Equal(t, orig.Heap, m.Heap)
			require.Equal(t, orig.BrkBase, m.BrkBase)
			require.Equal(t, orig.Brk, m.Brk)

			require.Equal(t, uint64(fast.DefaultStackSize), m.StackSize)
			require.NotNil(t, m.Stdin)
			require.NotNil(t, m.Stdout)
			require.NotNil(t, m.Stderr)
			require.NotNil(t, m.Logger)

			// brk into the stack reservation is refused whichever format the state came from
			m.State.Registers[riscv.RegA7] = riscv.SysBrk
			m.State.Registers[riscv.RegA0] = fast.StackTop - 0x1000
			require.NoError(t, m.HandleSyscall())
			require.Equal(t, orig.Brk, m.State.Registers[riscv.RegA0])
		})
	}
}

func TestLoadStateErrors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		msg     string
	}{
		{"incomplete.json", `{"state": null, "heap": 1}`, "incomplete"},
		{"garbage.json", `not json`, "failed to load state"},
		{"short.bin", "\x00\x01", "failed to decode state"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.name)
			require.NoError(t, os.WriteFile(path, []byte(c.content), 0o644))
			_, err := LoadState(path)
			require.ErrorContains(t, err, c.msg)
		})
	}

	for _, name := range []string{"missing.json", "missing.bin"} {
		_, err := LoadState(filepath.Join(dir, name))
		require.ErrorIs(t, err, os.ErrNotExist)
	}
}
