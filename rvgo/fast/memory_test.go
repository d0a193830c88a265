package fast

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

func TestMemoryLoadStore(t *testing.T) {
	cases := []struct {
		name string
		addr uint64
		size uint64
		v    uint64
	}{
		{"byte", 0x1000, 1, 0xab},
		{"half", 0x1002, 2, 0xbeef},
		{"word", 0x1004, 4, 0xdeadbeef},
		{"double", 0x1008, 8, 0x0123_4567_89ab_cdef},
		{"word across pages", PageSize*3 - 2, 4, 0x11223344},
		{"double across pages", PageSize*5 - 3, 8, 0xa1a2a3a4a5a6a7a8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMemory()
			m.Store(tc.addr, tc.size, tc.v)
			require.Equal(t, tc.v, m.Load(tc.addr, tc.size))
		})
	}

	t.Run("little endian", func(t *testing.T) {
		m := NewMemory()
		m.Store(0x2000, 4, 0x11223344)
		var out [4]byte
		m.GetUnaligned(0x2000, out[:])
		require.Equal(t, [4]byte{0x44, 0x33, 0x22, 0x11}, out)
	})

	t.Run("store truncates", func(t *testing.T) {
		m := NewMemory()
		m.Store(0x3000, 8, ^uint64(0))
		m.Store(0x3000, 2, 0x1234_5678)
		require.Equal(t, uint64(0xffff_ffff_ffff_5678), m.Load(0x3000, 8))
	})

	t.Run("unmapped reads zero", func(t *testing.T) {
		m := NewMemory()
		require.Equal(t, uint64(0), m.Load(0xdead_0000, 8))
		require.Equal(t, 0, m.PageCount(), "reads must not allocate")
	})

	t.Run("bad width", func(t *testing.T) {
		cases := []struct {
			name string
			addr uint64
			size uint64
		}{
			{"unmapped", 0, 3},
			{"zero", 0x1000, 0},
			{"wide", 0x1000, 16},
			{"cross page", PageSize - 1, 3},
			{"cross page wide", PageSize - 4, 12},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				m := NewMemory()
				requireWidthPanic(t, func() { m.Load(c.addr, c.size) })
				requireWidthPanic(t, func() { m.Store(c.addr, c.size, 0x0102_0304) })
				require.Equal(t, 0, m.PageCount(), "rejected accesses must not allocate")
			})
		}
	})
}

func requireWidthPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok, "expected an error panic")
		require.ErrorIs(t, err, riscv.ErrUnsupportedMemWidth)
	}()
	fn()
}

func TestMemoryPageCache(t *testing.T) {
	m := NewMemory()
	// alternate between three pages so entries get evicted from the two-entry cache
	for i := uint64(0); i < 30; i++ {
		addr := (i%3)*PageSize + i*8
		m.Store(addr, 8, i+1)
	}
	for i := uint64(0); i < 30; i++ {
		addr := (i%3)*PageSize + i*8
		require.Equal(t, i+1, m.Load(addr, 8))
	}
	require.Equal(t, 3, m.PageCount())
}

func TestMemoryReadWrite(t *testing.T) {
	t.Run("large random", func(t *testing.T) {
		m := NewMemory()
		data := make([]byte, 20_000)
		_, err := rand.Read(data[:])
		require.NoError(t, err)
		require.NoError(t, m.SetMemoryRange(0, bytes.NewReader(data)))
		for _, i := range []uint64{0, 1, 2, 3, 4, 5, 6, 7, 1000, 3333, 4095, 4096, 4097, 20_000 - 32} {
			for s := uint64(1); s <= 32; s++ {
				var res [32]byte
				m.GetUnaligned(i, res[:s])
				var expected [32]byte
				copy(expected[:s], data[i:i+s])
				require.Equalf(t, expected, res, "read %d at %d", s, i)
			}
		}
	})

	t.Run("repeat range", func(t *testing.T) {
		m := NewMemory()
		data := []byte(strings.Repeat("under the big bright yellow sun ", 40))
		require.NoError(t, m.SetMemoryRange(0x1337, bytes.NewReader(data)))
		res, err := io.ReadAll(m.ReadMemoryRange(0x1337-10, uint64(len(data)+20)))
		require.NoError(t, err)
		require.Equal(t, make([]byte, 10), res[:10], "empty start")
		require.Equal(t, data, res[10:len(res)-10], "result")
		require.Equal(t, make([]byte, 10), res[len(res)-10:], "empty end")
	})

	t.Run("read-write-unaligned", func(t *testing.T) {
		m := NewMemory()
		m.SetUnaligned(13, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE})
		var tmp [5]byte
		m.GetUnaligned(13, tmp[:])
		require.Equal(t, [5]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}, tmp)
		m.SetUnaligned(13, []byte{0xAA, 0xBB, 0x1C, 0xDD, 0xEE})
		m.GetUnaligned(13, tmp[:])
		require.Equal(t, [5]byte{0xAA, 0xBB, 0x1C, 0xDD, 0xEE}, tmp)
	})

	t.Run("c string", func(t *testing.T) {
		m := NewMemory()
		m.SetUnaligned(PageSize-3, []byte("hello\x00"))
		s, err := m.ReadCString(PageSize-3, 64)
		require.NoError(t, err)
		require.Equal(t, "hello", s)
		_, err = m.ReadCString(PageSize-3, 4)
		require.Error(t, err)
	})
}

func TestMemoryDigest(t *testing.T) {
	empty := NewMemory().Digest()

	m := NewMemory()
	m.SetUnaligned(0xF000, []byte{0})
	require.Equal(t, empty, m.Digest(), "zero pages do not contribute")

	m.SetUnaligned(0xF004, []byte{1})
	nonZero := m.Digest()
	require.NotEqual(t, empty, nonZero)

	m.SetUnaligned(0xF004, []byte{0})
	require.Equal(t, empty, m.Digest(), "zero again")

	other := NewMemory()
	other.SetUnaligned(0x1F004, []byte{1})
	require.NotEqual(t, nonZero, other.Digest(), "page index is committed")
}

func TestMemoryJSON(t *testing.T) {
	m := NewMemory()
	m.SetUnaligned(8, []byte{123})
	m.SetUnaligned(PageSize*7+1, []byte{1, 2, 3})
	dat, err := json.Marshal(m)
	require.NoError(t, err)
	res := NewMemory()
	require.NoError(t, json.Unmarshal(dat, res))
	require.Equal(t, uint64(123), res.Load(8, 1))
	require.Equal(t, uint64(0x030201), res.Load(PageSize*7+1, 4))
	require.Equal(t, m.Digest(), res.Digest())

	t.Run("duplicate page", func(t *testing.T) {
		page, err := json.Marshal(&Page{})
		require.NoError(t, err)
		doc := `[{"index":1,"data":` + string(page) + `},{"index":1,"data":` + string(page) + `}]`
		require.ErrorContains(t, json.Unmarshal([]byte(doc), NewMemory()), "duplicate page")
	})
}

func TestMemoryBinary(t *testing.T) {
	m := NewMemory()
	m.SetUnaligned(8, []byte{123})
	m.SetUnaligned(0x7f_0000_1000, []byte{9})
	ser := new(bytes.Buffer)
	err := m.Serialize(ser)
	require.NoError(t, err, "must serialize memory")
	m2 := NewMemory()
	err = m2.Deserialize(ser)
	require.NoError(t, err, "must deserialize memory")
	require.Equal(t, uint64(123), m2.Load(8, 1))
	require.Equal(t, uint64(9), m2.Load(0x7f_0000_1000, 1))
	require.Equal(t, m.PageCount(), m2.PageCount())
}

func TestMemoryUsage(t *testing.T) {
	m := NewMemory()
	require.Equal(t, "0 B", m.Usage())
	m.AllocPage(1)
	require.Equal(t, "4.0 KiB", m.Usage())
	for i := uint64(0); i < 512; i++ {
		m.AllocPage(100 + i)
	}
	require.Equal(t, "2.0 MiB", m.Usage())
}
