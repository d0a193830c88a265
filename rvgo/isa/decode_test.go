package isa

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

func TestDecodeRoundTrip(t *testing.T) {
	cases := []Instr{
		{Op: ADDI, Rd: 1, Rs1: 2, Imm: -5},
		{Op: SLTIU, Rd: 1, Rs1: 2, Imm: -1},
		{Op: ANDI, Rd: 31, Rs1: 30, Imm: 2047},
		{Op: SLLI, Rd: 3, Rs1: 4, Imm: 63},
		{Op: SRLI, Rd: 3, Rs1: 4, Imm: 1},
		{Op: SRAI, Rd: 3, Rs1: 4, Imm: 33},
		{Op: ADDIW, Rd: 3, Rs1: 4, Imm: -2048},
		{Op: SRAIW, Rd: 3, Rs1: 4, Imm: 31},
		{Op: SLLIW, Rd: 3, Rs1: 4, Imm: 7},
		{Op: LUI, Rd: 5, Imm: 0x12345000},
		{Op: LUI, Rd: 5, Imm: -0x1000},
		{Op: AUIPC, Rd: 5, Imm: -0x1000},
		{Op: JAL, Rd: 1, Imm: -16},
		{Op: JAL, Rd: 0, Imm: 0xffffe},
		{Op: JALR, Rd: 0, Rs1: 1, Imm: 8},
		{Op: BEQ, Rs1: 1, Rs2: 2, Imm: 4094},
		{Op: BGEU, Rs1: 1, Rs2: 2, Imm: -8},
		{Op: LB, Rd: 10, Rs1: 2, Imm: -1},
		{Op: LWU, Rd: 10, Rs1: 2, Imm: 4},
		{Op: LD, Rd: 10, Rs1: 2, Imm: 16},
		{Op: SB, Rs1: 2, Rs2: 10, Imm: 2047},
		{Op: SD, Rs1: 2, Rs2: 10, Imm: -8},
		{Op: ADD, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: SUB, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: SRA, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: SLTU, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: MULHSU, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: REMUW, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: SRAW, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: SUBW, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: LR_W, Rd: 5, Rs1: 6},
		{Op: SC_D, Rd: 5, Rs1: 6, Rs2: 7},
		{Op: AMOMAXU_D, Rd: 5, Rs1: 6, Rs2: 7},
		{Op: AMOSWAP_W, Rd: 5, Rs1: 6, Rs2: 7},
		{Op: FLW, Rd: 1, Rs1: 2, Imm: 4},
		{Op: FSD, Rs1: 2, Rs2: 3, Imm: -16},
		{Op: FMADD_S, Rd: 1, Rs1: 2, Rs2: 3, Rs3: 4},
		{Op: FNMADD_D, Rd: 1, Rs1: 2, Rs2: 3, Rs3: 31, Rm: 7},
		{Op: FMSUB_D, Rd: 1, Rs1: 2, Rs2: 3, Rs3: 4, Rm: 1},
		{Op: FADD_D, Rd: 1, Rs1: 2, Rs2: 3, Rm: 1},
		{Op: FSUB_D, Rd: 1, Rs1: 2, Rs2: 3, Rm: 7},
		{Op: FDIV_S, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: FSQRT_S, Rd: 1, Rs1: 2},
		{Op: FSGNJX_D, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: FSGNJN_S, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: FMIN_S, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: FMAX_D, Rd: 1, Rs1: 2, Rs2: 3},
		{Op: FLE_D, Rd: 10, Rs1: 2, Rs2: 3},
		{Op: FEQ_S, Rd: 10, Rs1: 2, Rs2: 3},
		{Op: FCVT_S_D, Rd: 1, Rs1: 2, Rm: 7},
		{Op: FCVT_D_S, Rd: 1, Rs1: 2},
		{Op: FCVT_LU_S, Rd: 10, Rs1: 1, Rm: 1},
		{Op: FCVT_W_D, Rd: 10, Rs1: 1, Rm: 4},
		{Op: FCVT_D_WU, Rd: 1, Rs1: 10, Rm: 7},
		{Op: FCVT_S_L, Rd: 1, Rs1: 10},
		{Op: FMV_X_D, Rd: 10, Rs1: 1},
		{Op: FMV_X_W, Rd: 10, Rs1: 1},
		{Op: FCLASS_S, Rd: 10, Rs1: 1},
		{Op: FCLASS_D, Rd: 10, Rs1: 1},
		{Op: FMV_W_X, Rd: 1, Rs1: 10},
		{Op: FMV_D_X, Rd: 1, Rs1: 10},
		{Op: CSRRW, Rd: 1, Rs1: 2, CSR: 0x300},
		{Op: CSRRC, Rd: 0, Rs1: 2, CSR: 0xfff},
		{Op: CSRRSI, Rd: 1, Rs1: 5, Imm: 5, CSR: 0x001},
		{Op: CSRRWI, Rd: 1, Rs1: 31, Imm: 31, CSR: 0x002},
		{Op: ECALL},
		{Op: EBREAK},
		{Op: MRET},
		{Op: SRET},
		{Op: WFI},
		{Op: SFENCE_VMA, Rs1: 1, Rs2: 2},
		{Op: FENCE, Imm: 0x0ff},
		{Op: FENCE_I},
	}
	for _, in := range cases {
		in := in
		t.Run(in.Op.String(), func(t *testing.T) {
			w, err := Encode(in)
			require.NoError(t, err)
			got, err := Decode(w)
			require.NoError(t, err)
			want := in
			want.Raw = w
			want.EndsBlock = in.Op.EndsBlock()
			require.Equal(t, want, got)
			require.False(t, got.Compressed)
			require.Equal(t, uint64(4), got.Size())
		})
	}
}

func TestDecodeITypeImmediate(t *testing.T) {
	in, err := Decode(0xFFF00093) // addi x1, x0, -1
	require.NoError(t, err)
	require.Equal(t, ADDI, in.Op)
	require.Equal(t, int32(-1), in.Imm)

	in, err = Decode(0x7FF00093) // addi x1, x0, 2047
	require.NoError(t, err)
	require.Equal(t, int32(2047), in.Imm)
}

func TestDecodeCompressedExpansion(t *testing.T) {
	cases := []struct {
		name string
		raw  uint32
		want Instr
	}{
		{"c.addi4spn", 0x000c | 0x0020, Instr{Op: ADDI, Rd: 11, Rs1: 2, Imm: 8}},
		{"c.fld", 0x210C, Instr{Op: FLD, Rd: 11, Rs1: 10}},
		{"c.lw", 0x410C | 0x0040, Instr{Op: LW, Rd: 11, Rs1: 10, Imm: 4}},
		{"c.ld", 0x610C | 0x0020, Instr{Op: LD, Rd: 11, Rs1: 10, Imm: 64}},
		{"c.fsd", 0xA10C | 0x0040, Instr{Op: FSD, Rs1: 10, Rs2: 11, Imm: 128}},
		{"c.sw", 0xC10C | 0x0400, Instr{Op: SW, Rs1: 10, Rs2: 11, Imm: 8}},
		{"c.sd", 0xE10C | 0x0400, Instr{Op: SD, Rs1: 10, Rs2: 11, Imm: 8}},
		{"c.nop", 0x0001, Instr{Op: ADDI}},
		{"c.addi", 0x0f81 | 0x1000 | 0x007c, Instr{Op: ADDI, Rd: 31, Rs1: 31, Imm: -1}},
		{"c.addiw", 0x2f81 | 0x0004, Instr{Op: ADDIW, Rd: 31, Rs1: 31, Imm: 1}},
		{"c.li", 0x4f81 | 0x0008, Instr{Op: ADDI, Rd: 31, Imm: 2}},
		{"c.addi16sp", 0x6101 | 0x1000, Instr{Op: ADDI, Rd: 2, Rs1: 2, Imm: -512}},
		{"c.lui", 0x6181 | 0x0004, Instr{Op: LUI, Rd: 3, Imm: 0x1000}},
		{"c.lui negative", 0x6181 | 0x1000, Instr{Op: LUI, Rd: 3, Imm: -(1 << 17)}},
		{"c.srli", 0x8381 | 0x1000, Instr{Op: SRLI, Rd: 15, Rs1: 15, Imm: 32}},
		{"c.srai", 0x8781 | 0x0004, Instr{Op: SRAI, Rd: 15, Rs1: 15, Imm: 1}},
		{"c.andi", 0x8B81 | 0x1000, Instr{Op: ANDI, Rd: 15, Rs1: 15, Imm: -32}},
		{"c.sub", 0x8C01 | 0x0180 | 0x0018, Instr{Op: SUB, Rd: 11, Rs1: 11, Rs2: 14}},
		{"c.xor", 0x8C21 | 0x0180 | 0x0018, Instr{Op: XOR, Rd: 11, Rs1: 11, Rs2: 14}},
		{"c.or", 0x8C41 | 0x0180 | 0x0018, Instr{Op: OR, Rd: 11, Rs1: 11, Rs2: 14}},
		{"c.and", 0x8C61 | 0x0180 | 0x0018, Instr{Op: AND, Rd: 11, Rs1: 11, Rs2: 14}},
		{"c.subw", 0x9C01 | 0x0180 | 0x0018, Instr{Op: SUBW, Rd: 11, Rs1: 11, Rs2: 14}},
		{"c.addw", 0x9C21 | 0x0180 | 0x0018, Instr{Op: ADDW, Rd: 11, Rs1: 11, Rs2: 14}},
		{"c.j", 0xa001 | 0x0008, Instr{Op: JAL, Imm: 2}},
		{"c.beqz", 0xc001 | 0x1000, Instr{Op: BEQ, Rs1: 8, Imm: -256}},
		{"c.bnez", 0xe001 | 0x0004, Instr{Op: BNE, Rs1: 8, Imm: 32}},
		{"c.slli", 0x0002 | 0x1f<<7 | 0x1000, Instr{Op: SLLI, Rd: 31, Rs1: 31, Imm: 32}},
		{"c.fldsp", 0x2002 | 1<<7 | 0x0004, Instr{Op: FLD, Rd: 1, Rs1: 2, Imm: 64}},
		{"c.lwsp", 0x4002 | 0x1f<<7 | 0x0010, Instr{Op: LW, Rd: 31, Rs1: 2, Imm: 4}},
		{"c.ldsp", 0x6002 | 0x1f<<7 | 0x0010, Instr{Op: LD, Rd: 31, Rs1: 2, Imm: 256}},
		{"c.jr", 0x8082, Instr{Op: JALR, Rs1: 1}},
		{"c.mv", 0x8002 | 10<<7 | 11<<2, Instr{Op: ADD, Rd: 10, Rs2: 11}},
		{"c.ebreak", 0x9002, Instr{Op: EBREAK}},
		{"c.jalr", 0x9002 | 5<<7, Instr{Op: JALR, Rd: 1, Rs1: 5}},
		{"c.add", 0x9002 | 10<<7 | 11<<2, Instr{Op: ADD, Rd: 10, Rs1: 10, Rs2: 11}},
		{"c.fsdsp", 0xa002 | 3<<2 | 0x0080, Instr{Op: FSD, Rs1: 2, Rs2: 3, Imm: 64}},
		{"c.swsp", 0xc002 | 5<<2 | 0x0200, Instr{Op: SW, Rs1: 2, Rs2: 5, Imm: 4}},
		{"c.sdsp", 0xe002 | 5<<2 | 0x0400, Instr{Op: SD, Rs1: 2, Rs2: 5, Imm: 8}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			want := c.want
			want.Compressed = true
			want.Raw = c.raw
			want.EndsBlock = want.Op.EndsBlock()

			got, err := Decode(c.raw)
			require.NoError(t, err)
			require.Equal(t, want, got)
			require.Equal(t, uint64(2), got.Size())

			// the upper half of the fetched word belongs to the next instruction
			got, err = Decode(c.raw | 0xABCD0000)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestDecodeCompressedLoadRegisterBias(t *testing.T) {
	in, err := Decode(0x4000) // c.lw x8, 0(x8)
	require.NoError(t, err)
	require.Equal(t, uint8(8), in.Rd)
	require.Equal(t, uint8(8), in.Rs1)

	in, err = Decode(0x4000 | 0x7<<7 | 0x7<<2) // c.lw x15, 0(x15)
	require.NoError(t, err)
	require.Equal(t, uint8(15), in.Rd)
	require.Equal(t, uint8(15), in.Rs1)
}

func TestDecodeIllegal(t *testing.T) {
	cases := map[string]uint32{
		"all zero":            0x00000000,
		"all ones":            0xFFFFFFFF,
		"c.addi4spn zero imm": 0x0010,
		"q0 reserved":         0x8000,
		"c.addiw x0":          0x2001,
		"c.addi16sp zero":     0x6101,
		"c.lui zero":          0x6181,
		"ca reserved":         0x9C41,
		"c.lwsp x0":           0x4002,
		"c.ldsp x0":           0x6002,
		"c.jr x0":             0x8002,
		"load funct3 7":       0x00007003,
		"op funct7 2":         EncodeRType(0x33, 1, 0, 2, 3, 0x02),
		"op-32 mul funct3 1":  EncodeRType(0x3B, 1, 1, 2, 3, 0x01),
		"slli funct6":         EncodeIType(0x13, 1, 1, 2, 0x400|3),
		"branch funct3 2":     EncodeBType(0x63, 2, 1, 2, 8),
		"jalr funct3 1":       EncodeIType(0x67, 1, 1, 2, 0),
		"system funct3 4":     0x00004073,
		"system priv":         0x00200073,
		"fp reserved rm":      EncodeRType(0x53, 1, 5, 2, 3, 0x00),
		"fp sqrt rs2":         EncodeRType(0x53, 1, 0, 2, 3, 0x2C),
		"fp quad format":      EncodeRType(0x53, 1, 0, 2, 3, 0x03),
		"fmadd quad":          EncodeR4Type(0x43, 1, 0, 2, 3, 4, 3),
		"lr rs2":              EncodeRType(0x2F, 1, 2, 2, 3, 0x08),
		"amo width":           EncodeRType(0x2F, 1, 1, 2, 3, 0x00),
		"amo funct5":          EncodeRType(0x2F, 1, 2, 2, 3, 0x1F<<2),
	}
	for name, raw := range cases {
		raw := raw
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			require.ErrorIs(t, err, riscv.ErrIllegalInstruction)
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			require.Equal(t, IsCompressed(raw), decErr.Compressed)
		})
	}
}

func TestDecodeIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	for i := 0; i < 10000; i++ {
		raw := rng.Uint32()
		a, errA := Decode(raw)
		b, errB := Decode(raw)
		require.Equal(t, a, b)
		require.Equal(t, errA, errB)
		if errA == nil {
			require.True(t, a.Op < NumOps)
			require.NotEqual(t, ILLEGAL, a.Op)
		}
	}
}

func TestEndsBlock(t *testing.T) {
	for op := ILLEGAL + 1; op < NumOps; op++ {
		switch op {
		case JAL, JALR, BEQ, BNE, BLT, BGE, BLTU, BGEU, ECALL, EBREAK, MRET, SRET:
			require.True(t, op.EndsBlock(), op.String())
		default:
			require.False(t, op.EndsBlock(), op.String())
		}
	}
}

func TestOpNamesComplete(t *testing.T) {
	for op := Op(0); op < NumOps; op++ {
		require.NotEmpty(t, op.String(), "op %d", op)
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	bad := []Instr{
		{Op: ADDI, Rd: 1, Imm: 2048},
		{Op: SLLI, Rd: 1, Imm: 64},
		{Op: SLLIW, Rd: 1, Imm: 32},
		{Op: JAL, Imm: 3},
		{Op: BEQ, Imm: 4096},
		{Op: LUI, Rd: 1, Imm: 0x123},
		{Op: ADD, Rd: 32},
		{Op: ILLEGAL},
	}
	for _, in := range bad {
		_, err := Encode(in)
		require.Error(t, err, in.Op.String())
	}
}

func TestInstrString(t *testing.T) {
	in, err := Decode(MustEncode(Instr{Op: ADDI, Rd: 1, Rs1: 2, Imm: -5}))
	require.NoError(t, err)
	require.Equal(t, "addi x1, x2, -5", in.String())

	in, err = Decode(0x9002 | 10<<7 | 11<<2)
	require.NoError(t, err)
	require.Equal(t, "c.add x10, x10, x11", in.String())

	in, err = Decode(MustEncode(Instr{Op: LD, Rd: 10, Rs1: 2, Imm: 16}))
	require.NoError(t, err)
	require.Equal(t, "ld x10, 16(x2)", in.String())

	in, err = Decode(0x00000073)
	require.NoError(t, err)
	require.Equal(t, "ecall", in.String())

	in, err = Decode(MustEncode(Instr{Op: FCVT_L_D, Rd: 10, Rs1: 3, Rm: 1}))
	require.NoError(t, err)
	require.Equal(t, "fcvt.l.d x10, f3", in.String())
}
