package isa

import "fmt"

type format uint8

const (
	fmtNone format = iota
	fmtR
	fmtI
	fmtShift
	fmtS
	fmtB
	fmtU
	fmtJ
	fmtCSR
	fmtCSRI
	fmtAMO
	fmtR4
	fmtFP      // R-type float op with a fixed funct3
	fmtFPRm    // R-type float op whose funct3 is the rounding mode
	fmtFPUnary // float op with a fixed rs2 selector
	fmtSys     // fixed 32-bit word
)

type encoding struct {
	format format
	opcode uint32
	funct3 uint32
	funct7 uint32 // funct7, funct5 for AMOs, fmt for R4, shift-type for shifts
	rs2    uint32 // fixed rs2 selector of unary float ops
	rm     bool   // unary float op carries a rounding mode in funct3
	word   uint32
	// shamt limit for shift-immediates
	shamtBits uint
}

func encR(opcode, funct3, funct7 uint32) encoding {
	return encoding{format: fmtR, opcode: opcode, funct3: funct3, funct7: funct7}
}

func encI(opcode, funct3 uint32) encoding {
	return encoding{format: fmtI, opcode: opcode, funct3: funct3}
}

func encShift(opcode, funct3, funct7 uint32, bits uint) encoding {
	return encoding{format: fmtShift, opcode: opcode, funct3: funct3, funct7: funct7, shamtBits: bits}
}

func encS(opcode, funct3 uint32) encoding {
	return encoding{format: fmtS, opcode: opcode, funct3: funct3}
}

func encB(funct3 uint32) encoding {
	return encoding{format: fmtB, opcode: 0x63, funct3: funct3}
}

func encAMO(funct3, funct5 uint32) encoding {
	return encoding{format: fmtAMO, opcode: 0x2F, funct3: funct3, funct7: funct5 << 2}
}

func encR4(opcode, width uint32) encoding {
	return encoding{format: fmtR4, opcode: opcode, funct7: width}
}

func encFP(funct7, funct3 uint32) encoding {
	return encoding{format: fmtFP, opcode: 0x53, funct3: funct3, funct7: funct7}
}

func encFPRm(funct7 uint32) encoding {
	return encoding{format: fmtFPRm, opcode: 0x53, funct7: funct7}
}

func encFPUnary(funct7, rs2 uint32) encoding {
	return encoding{format: fmtFPUnary, opcode: 0x53, funct7: funct7, rs2: rs2, rm: true}
}

func encFPMove(funct7, funct3 uint32) encoding {
	return encoding{format: fmtFPUnary, opcode: 0x53, funct7: funct7, funct3: funct3}
}

func encSys(word uint32) encoding {
	return encoding{format: fmtSys, word: word}
}

var encodings = [NumOps]encoding{
	LUI:   {format: fmtU, opcode: 0x37},
	AUIPC: {format: fmtU, opcode: 0x17},
	JAL:   {format: fmtJ, opcode: 0x6F},
	JALR:  encI(0x67, 0),
	BEQ:   encB(0), BNE: encB(1), BLT: encB(4), BGE: encB(5), BLTU: encB(6), BGEU: encB(7),
	LB: encI(0x03, 0), LH: encI(0x03, 1), LW: encI(0x03, 2), LD: encI(0x03, 3),
	LBU: encI(0x03, 4), LHU: encI(0x03, 5), LWU: encI(0x03, 6),
	SB: encS(0x23, 0), SH: encS(0x23, 1), SW: encS(0x23, 2), SD: encS(0x23, 3),
	ADDI: encI(0x13, 0), SLTI: encI(0x13, 2), SLTIU: encI(0x13, 3), XORI: encI(0x13, 4), ORI: encI(0x13, 6), ANDI: encI(0x13, 7),
	SLLI: encShift(0x13, 1, 0x00, 6), SRLI: encShift(0x13, 5, 0x00, 6), SRAI: encShift(0x13, 5, 0x20, 6),
	ADD: encR(0x33, 0, 0x00), SUB: encR(0x33, 0, 0x20), SLL: encR(0x33, 1, 0x00), SLT: encR(0x33, 2, 0x00),
	SLTU: encR(0x33, 3, 0x00), XOR: encR(0x33, 4, 0x00), SRL: encR(0x33, 5, 0x00), SRA: encR(0x33, 5, 0x20),
	OR: encR(0x33, 6, 0x00), AND: encR(0x33, 7, 0x00),
	ADDIW: encI(0x1B, 0),
	SLLIW: encShift(0x1B, 1, 0x00, 5), SRLIW: encShift(0x1B, 5, 0x00, 5), SRAIW: encShift(0x1B, 5, 0x20, 5),
	ADDW: encR(0x3B, 0, 0x00), SUBW: encR(0x3B, 0, 0x20), SLLW: encR(0x3B, 1, 0x00),
	SRLW: encR(0x3B, 5, 0x00), SRAW: encR(0x3B, 5, 0x20),
	FENCE: encI(0x0F, 0), FENCE_I: encI(0x0F, 1),
	ECALL: encSys(0x00000073), EBREAK: encSys(0x00100073),

	CSRRW:  {format: fmtCSR, opcode: 0x73, funct3: 1},
	CSRRS:  {format: fmtCSR, opcode: 0x73, funct3: 2},
	CSRRC:  {format: fmtCSR, opcode: 0x73, funct3: 3},
	CSRRWI: {format: fmtCSRI, opcode: 0x73, funct3: 5},
	CSRRSI: {format: fmtCSRI, opcode: 0x73, funct3: 6},
	CSRRCI: {format: fmtCSRI, opcode: 0x73, funct3: 7},

	MUL: encR(0x33, 0, 0x01), MULH: encR(0x33, 1, 0x01), MULHSU: encR(0x33, 2, 0x01), MULHU: encR(0x33, 3, 0x01),
	DIV: encR(0x33, 4, 0x01), DIVU: encR(0x33, 5, 0x01), REM: encR(0x33, 6, 0x01), REMU: encR(0x33, 7, 0x01),
	MULW: encR(0x3B, 0, 0x01), DIVW: encR(0x3B, 4, 0x01), DIVUW: encR(0x3B, 5, 0x01),
	REMW: encR(0x3B, 6, 0x01), REMUW: encR(0x3B, 7, 0x01),

	LR_W: encAMO(2, 0x02), SC_W: encAMO(2, 0x03), AMOSWAP_W: encAMO(2, 0x01), AMOADD_W: encAMO(2, 0x00),
	AMOXOR_W: encAMO(2, 0x04), AMOAND_W: encAMO(2, 0x0C), AMOOR_W: encAMO(2, 0x08),
	AMOMIN_W: encAMO(2, 0x10), AMOMAX_W: encAMO(2, 0x14), AMOMINU_W: encAMO(2, 0x18), AMOMAXU_W: encAMO(2, 0x1C),
	LR_D: encAMO(3, 0x02), SC_D: encAMO(3, 0x03), AMOSWAP_D: encAMO(3, 0x01), AMOADD_D: encAMO(3, 0x00),
	AMOXOR_D: encAMO(3, 0x04), AMOAND_D: encAMO(3, 0x0C), AMOOR_D: encAMO(3, 0x08),
	AMOMIN_D: encAMO(3, 0x10), AMOMAX_D: encAMO(3, 0x14), AMOMINU_D: encAMO(3, 0x18), AMOMAXU_D: encAMO(3, 0x1C),

	FLW: encI(0x07, 2), FSW: encS(0x27, 2),
	FMADD_S: encR4(0x43, 0), FMSUB_S: encR4(0x47, 0), FNMSUB_S: encR4(0x4B, 0), FNMADD_S: encR4(0x4F, 0),
	FADD_S: encFPRm(0x00), FSUB_S: encFPRm(0x04), FMUL_S: encFPRm(0x08), FDIV_S: encFPRm(0x0C),
	FSQRT_S: encFPUnary(0x2C, 0),
	FSGNJ_S: encFP(0x10, 0), FSGNJN_S: encFP(0x10, 1), FSGNJX_S: encFP(0x10, 2),
	FMIN_S: encFP(0x14, 0), FMAX_S: encFP(0x14, 1),
	FCVT_W_S: encFPUnary(0x60, 0), FCVT_WU_S: encFPUnary(0x60, 1), FCVT_L_S: encFPUnary(0x60, 2), FCVT_LU_S: encFPUnary(0x60, 3),
	FMV_X_W: encFPMove(0x70, 0), FCLASS_S: encFPMove(0x70, 1),
	FEQ_S: encFP(0x50, 2), FLT_S: encFP(0x50, 1), FLE_S: encFP(0x50, 0),
	FCVT_S_W: encFPUnary(0x68, 0), FCVT_S_WU: encFPUnary(0x68, 1), FCVT_S_L: encFPUnary(0x68, 2), FCVT_S_LU: encFPUnary(0x68, 3),
	FMV_W_X: encFPMove(0x78, 0),

	FLD: encI(0x07, 3), FSD: encS(0x27, 3),
	FMADD_D: encR4(0x43, 1), FMSUB_D: encR4(0x47, 1), FNMSUB_D: encR4(0x4B, 1), FNMADD_D: encR4(0x4F, 1),
	FADD_D: encFPRm(0x01), FSUB_D: encFPRm(0x05), FMUL_D: encFPRm(0x09), FDIV_D: encFPRm(0x0D),
	FSQRT_D: encFPUnary(0x2D, 0),
	FSGNJ_D: encFP(0x11, 0), FSGNJN_D: encFP(0x11, 1), FSGNJX_D: encFP(0x11, 2),
	FMIN_D: encFP(0x15, 0), FMAX_D: encFP(0x15, 1),
	FCVT_S_D: encFPUnary(0x20, 1), FCVT_D_S: encFPUnary(0x21, 0),
	FEQ_D: encFP(0x51, 2), FLT_D: encFP(0x51, 1), FLE_D: encFP(0x51, 0),
	FCLASS_D: encFPMove(0x71, 1),
	FCVT_W_D: encFPUnary(0x61, 0), FCVT_WU_D: encFPUnary(0x61, 1), FCVT_L_D: encFPUnary(0x61, 2), FCVT_LU_D: encFPUnary(0x61, 3),
	FMV_X_D: encFPMove(0x71, 0),
	FCVT_D_W: encFPUnary(0x69, 0), FCVT_D_WU: encFPUnary(0x69, 1), FCVT_D_L: encFPUnary(0x69, 2), FCVT_D_LU: encFPUnary(0x69, 3),
	FMV_D_X: encFPMove(0x79, 0),

	MRET: encSys(0x30200073), SRET: encSys(0x10200073), WFI: encSys(0x10500073),
	SFENCE_VMA: encR(0x73, 0, 0x09),
}

// Encode produces the canonical 32-bit encoding of in. Compressed instructions are
// encoded as the base instruction they expand to.
func Encode(in Instr) (uint32, error) {
	if in.Op == ILLEGAL || in.Op >= NumOps {
		return 0, fmt.Errorf("cannot encode operation %d", in.Op)
	}
	if in.Rd > 31 || in.Rs1 > 31 || in.Rs2 > 31 || in.Rs3 > 31 {
		return 0, fmt.Errorf("%s: register index out of range", in.Op)
	}
	e := encodings[in.Op]
	rd, rs1, rs2 := uint32(in.Rd), uint32(in.Rs1), uint32(in.Rs2)
	switch e.format {
	case fmtR:
		return EncodeRType(e.opcode, rd, e.funct3, rs1, rs2, e.funct7), nil
	case fmtI:
		if in.Imm < -2048 || in.Imm > 2047 {
			return 0, fmt.Errorf("%s: immediate %d out of range", in.Op, in.Imm)
		}
		return EncodeIType(e.opcode, rd, e.funct3, rs1, in.Imm), nil
	case fmtShift:
		if in.Imm < 0 || in.Imm >= 1<<e.shamtBits {
			return 0, fmt.Errorf("%s: shift amount %d out of range", in.Op, in.Imm)
		}
		return EncodeIType(e.opcode, rd, e.funct3, rs1, int32(e.funct7<<5)|in.Imm), nil
	case fmtS:
		if in.Imm < -2048 || in.Imm > 2047 {
			return 0, fmt.Errorf("%s: offset %d out of range", in.Op, in.Imm)
		}
		return EncodeSType(e.opcode, e.funct3, rs1, rs2, in.Imm), nil
	case fmtB:
		if in.Imm&1 != 0 || in.Imm < -4096 || in.Imm > 4094 {
			return 0, fmt.Errorf("%s: branch offset %d invalid", in.Op, in.Imm)
		}
		return EncodeBType(e.opcode, e.funct3, rs1, rs2, in.Imm), nil
	case fmtU:
		if in.Imm&0xFFF != 0 {
			return 0, fmt.Errorf("%s: immediate 0x%x has low bits set", in.Op, in.Imm)
		}
		return EncodeUType(e.opcode, rd, uint32(in.Imm)), nil
	case fmtJ:
		if in.Imm&1 != 0 || in.Imm < -(1<<20) || in.Imm >= 1<<20 {
			return 0, fmt.Errorf("%s: jump offset %d invalid", in.Op, in.Imm)
		}
		return EncodeJType(e.opcode, rd, in.Imm), nil
	case fmtCSR, fmtCSRI:
		if in.CSR > 0xFFF {
			return 0, fmt.Errorf("%s: csr 0x%x out of range", in.Op, in.CSR)
		}
		return EncodeIType(e.opcode, rd, e.funct3, rs1, int32(in.CSR)), nil
	case fmtAMO:
		return EncodeRType(e.opcode, rd, e.funct3, rs1, rs2, e.funct7), nil
	case fmtR4:
		return EncodeR4Type(e.opcode, rd, uint32(in.Rm), rs1, rs2, uint32(in.Rs3), e.funct7), nil
	case fmtFP:
		return EncodeRType(e.opcode, rd, e.funct3, rs1, rs2, e.funct7), nil
	case fmtFPRm:
		return EncodeRType(e.opcode, rd, uint32(in.Rm), rs1, rs2, e.funct7), nil
	case fmtFPUnary:
		funct3 := e.funct3
		if e.rm {
			funct3 = uint32(in.Rm)
		}
		return EncodeRType(e.opcode, rd, funct3, rs1, e.rs2, e.funct7), nil
	case fmtSys:
		return e.word, nil
	}
	return 0, fmt.Errorf("no encoding for %s", in.Op)
}

// MustEncode is Encode for hand-assembled programs in tests and tooling.
func MustEncode(in Instr) uint32 {
	w, err := Encode(in)
	if err != nil {
		panic(err)
	}
	return w
}

func EncodeRType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func EncodeR4Type(opcode, rd, funct3, rs1, rs2, rs3, width uint32) uint32 {
	return (rs3 << 27) | (width << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func EncodeIType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm&0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func EncodeSType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	immU := uint32(imm & 0xFFF)
	return ((immU >> 5) << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) |
		((immU & 0x1F) << 7) | opcode
}

func EncodeBType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	immU := uint32(imm)
	return (((immU >> 12) & 0x1) << 31) | (((immU >> 5) & 0x3F) << 25) |
		(rs2 << 20) | (rs1 << 15) | (funct3 << 12) |
		(((immU >> 1) & 0xF) << 8) | (((immU >> 11) & 0x1) << 7) | opcode
}

func EncodeUType(opcode, rd uint32, imm uint32) uint32 {
	return (imm & 0xFFFFF000) | (rd << 7) | opcode
}

func EncodeJType(opcode, rd uint32, imm int32) uint32 {
	immU := uint32(imm)
	return (((immU >> 20) & 0x1) << 31) | (((immU >> 1) & 0x3FF) << 21) |
		(((immU >> 11) & 0x1) << 20) | (((immU >> 12) & 0xFF) << 12) |
		(rd << 7) | opcode
}
