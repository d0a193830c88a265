package isa

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImmTypeI(t *testing.T) {
	require.Equal(t, int32(-1), ImmTypeI(0xFFF<<20|0x13))
	require.Equal(t, int32(2047), ImmTypeI(0x7FF<<20|0x13))
	require.Equal(t, int32(-2048), ImmTypeI(0x800<<20|0x13))
	require.Equal(t, int32(0), ImmTypeI(0x000FFFFF))
}

func TestImmTypeBJ(t *testing.T) {
	for _, imm := range []int32{0, 2, -2, 4094, -4096, 0x800, -0x7fe} {
		w := EncodeBType(0x63, 0, 1, 2, imm)
		require.Equal(t, imm, ImmTypeB(w), "branch offset %d", imm)
	}
	for _, imm := range []int32{0, 2, -2, 16, 1<<20 - 2, -(1 << 20), 0x800, 0x7fe} {
		w := EncodeJType(0x6F, 1, imm)
		require.Equal(t, imm, ImmTypeJ(w), "jump offset %d", imm)
	}
	require.Equal(t, int32(-4), ImmTypeS(EncodeSType(0x23, 3, 2, 1, -4)))
	require.Equal(t, int32(-0x1000), ImmTypeU(0xFFFFF037))
}

func TestCompressedRegisterBias(t *testing.T) {
	// C.LW with rs1'=000 and rd'=111
	w := uint32(0x4000 | 0x7<<2 | 0x0)
	require.Equal(t, uint8(8), Rs1PrimeC(w))
	require.Equal(t, uint8(15), Rs2PrimeC(w))
	// C.LW with rs1'=111 and rd'=000
	w = uint32(0x4000 | 0x7<<7 | 0x0)
	require.Equal(t, uint8(15), Rs1PrimeC(w))
	require.Equal(t, uint8(8), Rs2PrimeC(w))
}

func TestCompressedImmediateBits(t *testing.T) {
	// each case sets exactly one instruction bit and names the immediate bit it must land on
	cases := []struct {
		name string
		fn   func(uint32) int32
		base uint32
		bits map[uint32]int32
	}{
		{"ciw", ImmCIW, 0x000c, map[uint32]int32{
			0x0020: 1 << 3, 0x0040: 1 << 2, 0x0080: 1 << 6, 0x0100: 1 << 7,
			0x0200: 1 << 8, 0x0400: 1 << 9, 0x0800: 1 << 4, 0x1000: 1 << 5,
		}},
		{"clw", ImmCLW, 0x410C, map[uint32]int32{
			0x0020: 1 << 6, 0x0040: 1 << 2, 0x0400: 1 << 3, 0x0800: 1 << 4, 0x1000: 1 << 5,
		}},
		{"cld", ImmCLD, 0x610C, map[uint32]int32{
			0x0020: 1 << 6, 0x0040: 1 << 7, 0x0400: 1 << 3, 0x0800: 1 << 4, 0x1000: 1 << 5,
		}},
		{"ci", ImmCI, 0x0f81, map[uint32]int32{
			0x0004: 1 << 0, 0x0008: 1 << 1, 0x0010: 1 << 2, 0x0020: 1 << 3, 0x0040: 1 << 4, 0x1000: -32,
		}},
		{"addi16sp", ImmCIAddi16sp, 0x6101, map[uint32]int32{
			0x0004: 1 << 5, 0x0008: 1 << 7, 0x0010: 1 << 8, 0x0020: 1 << 6, 0x0040: 1 << 4, 0x1000: -512,
		}},
		{"lui", ImmCILui, 0x6181, map[uint32]int32{
			0x0004: 1 << 12, 0x0008: 1 << 13, 0x0010: 1 << 14, 0x0020: 1 << 15, 0x0040: 1 << 16, 0x1000: -(1 << 17),
		}},
		{"cj", ImmCJ, 0xa001, map[uint32]int32{
			0x0004: 1 << 5, 0x0008: 1 << 1, 0x0010: 1 << 2, 0x0020: 1 << 3, 0x0040: 1 << 7, 0x0080: 1 << 6,
			0x0100: 1 << 10, 0x0200: 1 << 8, 0x0400: 1 << 9, 0x0800: 1 << 4, 0x1000: -(1 << 11),
		}},
		{"cb", ImmCB, 0xc001, map[uint32]int32{
			0x0004: 1 << 5, 0x0008: 1 << 1, 0x0010: 1 << 2, 0x0020: 1 << 6, 0x0040: 1 << 7,
			0x0400: 1 << 3, 0x0800: 1 << 4, 0x1000: -(1 << 8),
		}},
		{"lwsp", ImmCILwsp, 0x4002 | 0x1f<<7, map[uint32]int32{
			0x0004: 1 << 6, 0x0008: 1 << 7, 0x0010: 1 << 2, 0x0020: 1 << 3, 0x0040: 1 << 4, 0x1000: 1 << 5,
		}},
		{"ldsp", ImmCILdsp, 0x6002 | 0x1f<<7, map[uint32]int32{
			0x0004: 1 << 6, 0x0008: 1 << 7, 0x0010: 1 << 8, 0x0020: 1 << 3, 0x0040: 1 << 4, 0x1000: 1 << 5,
		}},
		{"swsp", ImmCSSSwsp, 0xc002, map[uint32]int32{
			0x0080: 1 << 6, 0x0100: 1 << 7, 0x0200: 1 << 2, 0x0400: 1 << 3, 0x0800: 1 << 4, 0x1000: 1 << 5,
		}},
		{"sdsp", ImmCSSSdsp, 0xe002, map[uint32]int32{
			0x0080: 1 << 6, 0x0100: 1 << 7, 0x0200: 1 << 8, 0x0400: 1 << 3, 0x0800: 1 << 4, 0x1000: 1 << 5,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, int32(0), c.fn(c.base))
			for bit, want := range c.bits {
				require.Equal(t, want, c.fn(c.base|bit), fmt.Sprintf("bit 0x%04x", bit))
			}
		})
	}
}

func TestShamtUnsigned(t *testing.T) {
	// C.SLLI x31, 63: shamt[5] lives in bit 12 and must not sign-extend
	w := uint32(0x0002 | 0x1f<<7 | 0x1f<<2 | 1<<12)
	require.Equal(t, uint32(63), ShamtCI(w))
	require.Equal(t, uint32(63), Shamt(0xFC000000|63<<20|0x13))
}
