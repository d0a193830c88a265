package isa

// Functions to extract the instruction fields of the base and compressed RISC-V formats.
// All of them are total over the 32-bit input: legality is decided by the decoder.

func Opcode(w uint32) uint32 { return w & 0x7F }
func Rd(w uint32) uint8      { return uint8((w >> 7) & 0x1F) }
func Funct3(w uint32) uint32 { return (w >> 12) & 0x7 }
func Rs1(w uint32) uint8     { return uint8((w >> 15) & 0x1F) }
func Rs2(w uint32) uint8     { return uint8((w >> 20) & 0x1F) }
func Rs3(w uint32) uint8     { return uint8(w >> 27) }
func Funct2(w uint32) uint32 { return (w >> 25) & 0x3 }
func Funct5(w uint32) uint32 { return w >> 27 }
func Funct7(w uint32) uint32 { return w >> 25 }

// CSRAddr is the 12 bit CSR number of a Zicsr instruction.
func CSRAddr(w uint32) uint16 { return uint16(w >> 20) }

// Shamt is the RV64 shift amount of SLLI/SRLI/SRAI, always unsigned.
func Shamt(w uint32) uint32 { return (w >> 20) & 0x3F }

// ShamtW is the shift amount of the 32-bit shift-immediate forms.
func ShamtW(w uint32) uint32 { return (w >> 20) & 0x1F }

func ImmTypeI(w uint32) int32 {
	return int32(w) >> 20
}

func ImmTypeS(w uint32) int32 {
	return (int32(w)>>25)<<5 | int32((w>>7)&0x1F)
}

// ImmTypeB is a 13 bit signed offset, bit 0 always zero.
func ImmTypeB(w uint32) int32 {
	return (int32(w)>>31)<<12 |
		int32((w<<4)&0x800) |
		int32((w>>20)&0x7E0) |
		int32((w>>7)&0x1E)
}

// ImmTypeU keeps the upper 20 bits in place, low 12 bits zero.
func ImmTypeU(w uint32) int32 {
	return int32(w & 0xFFFFF000)
}

// ImmTypeJ is a 21 bit signed offset, bit 0 always zero.
func ImmTypeJ(w uint32) int32 {
	return (int32(w)>>31)<<20 |
		int32(w&0xFF000) |
		int32((w>>9)&0x800) |
		int32((w>>20)&0x7FE)
}

// signExtend sign-extends the low n bits of v.
func signExtend(v uint32, n uint) int32 {
	shift := 32 - n
	return int32(v<<shift) >> shift
}

// Compressed (16-bit) formats. Only the low 16 bits of w are inspected.

func Quadrant(w uint32) uint32 { return w & 0x3 }
func Funct3C(w uint32) uint32  { return (w >> 13) & 0x7 }

// Funct4C selects within the CR format (bits 15:12).
func Funct4C(w uint32) uint32 { return (w >> 12) & 0xF }

// Funct2CB is the CB-format arithmetic selector (bits 11:10).
func Funct2CB(w uint32) uint32 { return (w >> 10) & 0x3 }

// Funct2CA is the CA-format arithmetic selector (bits 6:5).
func Funct2CA(w uint32) uint32 { return (w >> 5) & 0x3 }

// Bit12C is the high bit of funct4/funct6 and of most CI immediates.
func Bit12C(w uint32) uint32 { return (w >> 12) & 0x1 }

// RdRs1C is the full 5 bit rd/rs1 field of the CR, CI and CSS formats.
func RdRs1C(w uint32) uint8 { return uint8((w >> 7) & 0x1F) }

// Rs2C is the full 5 bit rs2 field of the CR and CSS formats.
func Rs2C(w uint32) uint8 { return uint8((w >> 2) & 0x1F) }

// Rs1PrimeC is the 3 bit rs1'/rd' field at bits 9:7, biased to x8..x15.
func Rs1PrimeC(w uint32) uint8 { return uint8((w>>7)&0x7) + 8 }

// Rs2PrimeC is the 3 bit rs2'/rd' field at bits 4:2, biased to x8..x15.
func Rs2PrimeC(w uint32) uint8 { return uint8((w>>2)&0x7) + 8 }

// ImmCI is the signed 6 bit immediate of C.ADDI, C.ADDIW, C.LI and C.ANDI.
func ImmCI(w uint32) int32 {
	return signExtend((w>>7)&0x20|(w>>2)&0x1F, 6)
}

// ShamtCI is the unsigned 6 bit shift amount of C.SLLI, C.SRLI and C.SRAI.
func ShamtCI(w uint32) uint32 {
	return (w>>7)&0x20 | (w>>2)&0x1F
}

// ImmCILui is the C.LUI immediate, already shifted into bits 17:12.
func ImmCILui(w uint32) int32 {
	return signExtend((w<<5)&0x20000|(w<<10)&0x1F000, 18)
}

// ImmCIAddi16sp is the C.ADDI16SP immediate, a multiple of 16.
func ImmCIAddi16sp(w uint32) int32 {
	return signExtend((w>>3)&0x200|(w>>2)&0x10|(w<<1)&0x40|(w<<4)&0x180|(w<<3)&0x20, 10)
}

// ImmCILwsp is the C.LWSP offset, a multiple of 4.
func ImmCILwsp(w uint32) int32 {
	return int32((w>>7)&0x20 | (w>>2)&0x1C | (w<<4)&0xC0)
}

// ImmCILdsp is the C.LDSP/C.FLDSP offset, a multiple of 8.
func ImmCILdsp(w uint32) int32 {
	return int32((w>>7)&0x20 | (w>>2)&0x18 | (w<<4)&0x1C0)
}

// ImmCSSSwsp is the C.SWSP offset, a multiple of 4.
func ImmCSSSwsp(w uint32) int32 {
	return int32((w>>7)&0x3C | (w>>1)&0xC0)
}

// ImmCSSSdsp is the C.SDSP/C.FSDSP offset, a multiple of 8.
func ImmCSSSdsp(w uint32) int32 {
	return int32((w>>7)&0x38 | (w>>1)&0x1C0)
}

// ImmCIW is the C.ADDI4SPN immediate, a multiple of 4.
func ImmCIW(w uint32) int32 {
	return int32((w>>7)&0x30 | (w>>1)&0x3C0 | (w>>4)&0x4 | (w>>2)&0x8)
}

// ImmCLW is the word-scaled offset shared by the CL and CS formats (C.LW, C.SW).
func ImmCLW(w uint32) int32 {
	return int32((w>>7)&0x38 | (w>>4)&0x4 | (w<<1)&0x40)
}

// ImmCLD is the double-scaled offset shared by the CL and CS formats (C.LD, C.SD, C.FLD, C.FSD).
func ImmCLD(w uint32) int32 {
	return int32((w>>7)&0x38 | (w<<1)&0xC0)
}

// ImmCB is the signed 9 bit branch offset of C.BEQZ/C.BNEZ.
func ImmCB(w uint32) int32 {
	return signExtend((w>>4)&0x100|(w>>7)&0x18|(w<<1)&0xC0|(w>>2)&0x6|(w<<3)&0x20, 9)
}

// ImmCJ is the signed 12 bit jump offset of C.J.
func ImmCJ(w uint32) int32 {
	return signExtend((w>>1)&0x800|(w>>7)&0x10|(w>>1)&0x300|(w<<2)&0x400|
		(w>>1)&0x40|(w<<1)&0x80|(w>>2)&0xE|(w<<3)&0x20, 12)
}

// IsCompressed reports whether w holds a 16-bit instruction in its low half.
func IsCompressed(w uint32) bool {
	return w&0x3 != 0x3
}
