package isa

import "github.com/rvemu/rvemu/rvgo/riscv"

// Decode turns a fetched word into an instruction record.
// If the low two bits are not 0b11 the word is a 16-bit compressed instruction
// and only its low half is used; compressed forms are expanded into their base operation.
func Decode(raw uint32) (Instr, error) {
	var (
		in  Instr
		err error
	)
	if IsCompressed(raw) {
		in, err = decodeCompressed(raw & 0xFFFF)
	} else {
		in, err = decodeBase(raw)
	}
	if err != nil {
		return Instr{}, err
	}
	in.EndsBlock = in.Op.EndsBlock()
	return in, nil
}

func illegal(raw uint32, reason string) error {
	return &DecodeError{Raw: raw, Reason: reason}
}

func illegalC(raw uint32, reason string) error {
	return &DecodeError{Raw: raw, Compressed: true, Reason: reason}
}

func decodeCompressed(w uint32) (Instr, error) {
	c := func(op Op, rd, rs1, rs2 uint8, imm int32) (Instr, error) {
		return Instr{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2, Imm: imm, Compressed: true, Raw: w}, nil
	}
	funct3 := Funct3C(w)
	switch Quadrant(w) {
	case 0:
		switch funct3 {
		case 0: // C.ADDI4SPN
			imm := ImmCIW(w)
			if imm == 0 {
				return Instr{}, illegalC(w, "c.addi4spn with zero immediate")
			}
			return c(ADDI, Rs2PrimeC(w), riscv.RegSP, 0, imm)
		case 1: // C.FLD
			return c(FLD, Rs2PrimeC(w), Rs1PrimeC(w), 0, ImmCLD(w))
		case 2: // C.LW
			return c(LW, Rs2PrimeC(w), Rs1PrimeC(w), 0, ImmCLW(w))
		case 3: // C.LD
			return c(LD, Rs2PrimeC(w), Rs1PrimeC(w), 0, ImmCLD(w))
		case 5: // C.FSD
			return c(FSD, 0, Rs1PrimeC(w), Rs2PrimeC(w), ImmCLD(w))
		case 6: // C.SW
			return c(SW, 0, Rs1PrimeC(w), Rs2PrimeC(w), ImmCLW(w))
		case 7: // C.SD
			return c(SD, 0, Rs1PrimeC(w), Rs2PrimeC(w), ImmCLD(w))
		}
		return Instr{}, illegalC(w, "reserved quadrant 0 encoding")
	case 1:
		rd := RdRs1C(w)
		switch funct3 {
		case 0: // C.ADDI, C.NOP
			return c(ADDI, rd, rd, 0, ImmCI(w))
		case 1: // C.ADDIW
			if rd == 0 {
				return Instr{}, illegalC(w, "c.addiw with rd=x0")
			}
			return c(ADDIW, rd, rd, 0, ImmCI(w))
		case 2: // C.LI
			return c(ADDI, rd, 0, 0, ImmCI(w))
		case 3:
			if rd == riscv.RegSP { // C.ADDI16SP
				imm := ImmCIAddi16sp(w)
				if imm == 0 {
					return Instr{}, illegalC(w, "c.addi16sp with zero immediate")
				}
				return c(ADDI, riscv.RegSP, riscv.RegSP, 0, imm)
			}
			imm := ImmCILui(w) // C.LUI
			if imm == 0 {
				return Instr{}, illegalC(w, "c.lui with zero immediate")
			}
			return c(LUI, rd, 0, 0, imm)
		case 4:
			rd := Rs1PrimeC(w)
			switch Funct2CB(w) {
			case 0: // C.SRLI
				return c(SRLI, rd, rd, 0, int32(ShamtCI(w)))
			case 1: // C.SRAI
				return c(SRAI, rd, rd, 0, int32(ShamtCI(w)))
			case 2: // C.ANDI
				return c(ANDI, rd, rd, 0, ImmCI(w))
			}
			rs2 := Rs2PrimeC(w)
			if Bit12C(w) == 0 {
				switch Funct2CA(w) {
				case 0:
					return c(SUB, rd, rd, rs2, 0)
				case 1:
					return c(XOR, rd, rd, rs2, 0)
				case 2:
					return c(OR, rd, rd, rs2, 0)
				default:
					return c(AND, rd, rd, rs2, 0)
				}
			}
			switch Funct2CA(w) {
			case 0:
				return c(SUBW, rd, rd, rs2, 0)
			case 1:
				return c(ADDW, rd, rd, rs2, 0)
			}
			return Instr{}, illegalC(w, "reserved CA encoding")
		case 5: // C.J
			return c(JAL, 0, 0, 0, ImmCJ(w))
		case 6: // C.BEQZ
			return c(BEQ, 0, Rs1PrimeC(w), 0, ImmCB(w))
		default: // C.BNEZ
			return c(BNE, 0, Rs1PrimeC(w), 0, ImmCB(w))
		}
	case 2:
		rd := RdRs1C(w)
		rs2 := Rs2C(w)
		switch funct3 {
		case 0: // C.SLLI
			return c(SLLI, rd, rd, 0, int32(ShamtCI(w)))
		case 1: // C.FLDSP
			return c(FLD, rd, riscv.RegSP, 0, ImmCILdsp(w))
		case 2: // C.LWSP
			if rd == 0 {
				return Instr{}, illegalC(w, "c.lwsp with rd=x0")
			}
			return c(LW, rd, riscv.RegSP, 0, ImmCILwsp(w))
		case 3: // C.LDSP
			if rd == 0 {
				return Instr{}, illegalC(w, "c.ldsp with rd=x0")
			}
			return c(LD, rd, riscv.RegSP, 0, ImmCILdsp(w))
		case 4:
			if Bit12C(w) == 0 {
				if rs2 == 0 { // C.JR
					if rd == 0 {
						return Instr{}, illegalC(w, "c.jr with rs1=x0")
					}
					return c(JALR, 0, rd, 0, 0)
				}
				return c(ADD, rd, 0, rs2, 0) // C.MV
			}
			if rs2 == 0 {
				if rd == 0 {
					return c(EBREAK, 0, 0, 0, 0)
				}
				return c(JALR, riscv.RegRA, rd, 0, 0) // C.JALR
			}
			return c(ADD, rd, rd, rs2, 0) // C.ADD
		case 5: // C.FSDSP
			return c(FSD, 0, riscv.RegSP, rs2, ImmCSSSdsp(w))
		case 6: // C.SWSP
			return c(SW, 0, riscv.RegSP, rs2, ImmCSSSwsp(w))
		default: // C.SDSP
			return c(SD, 0, riscv.RegSP, rs2, ImmCSSSdsp(w))
		}
	}
	return Instr{}, illegalC(w, "not a compressed instruction")
}

func decodeBase(w uint32) (Instr, error) {
	in := Instr{Raw: w, Rd: Rd(w), Rs1: Rs1(w), Rs2: Rs2(w)}
	funct3 := Funct3(w)
	funct7 := Funct7(w)

	// r finishes an R-type record, i an I-type one; both clear fields the format does not carry.
	r := func(op Op) (Instr, error) {
		in.Op = op
		return in, nil
	}
	i := func(op Op, imm int32) (Instr, error) {
		in.Op, in.Rs2, in.Imm = op, 0, imm
		return in, nil
	}

	switch Opcode(w) {
	case 0x03: // LOAD
		ops := [8]Op{LB, LH, LW, LD, LBU, LHU, LWU, ILLEGAL}
		if op := ops[funct3]; op != ILLEGAL {
			return i(op, ImmTypeI(w))
		}
		return Instr{}, illegal(w, "unknown load width")
	case 0x07: // LOAD-FP
		switch funct3 {
		case 2:
			return i(FLW, ImmTypeI(w))
		case 3:
			return i(FLD, ImmTypeI(w))
		}
		return Instr{}, illegal(w, "unknown float load width")
	case 0x0F: // MISC-MEM
		switch funct3 {
		case 0:
			return i(FENCE, ImmTypeI(w))
		case 1:
			return i(FENCE_I, ImmTypeI(w))
		}
		return Instr{}, illegal(w, "unknown fence")
	case 0x13: // OP-IMM
		switch funct3 {
		case 0:
			return i(ADDI, ImmTypeI(w))
		case 1:
			if w>>26 != 0 {
				return Instr{}, illegal(w, "slli with non-zero funct6")
			}
			return i(SLLI, int32(Shamt(w)))
		case 2:
			return i(SLTI, ImmTypeI(w))
		case 3:
			return i(SLTIU, ImmTypeI(w))
		case 4:
			return i(XORI, ImmTypeI(w))
		case 5:
			switch w >> 26 {
			case 0x00:
				return i(SRLI, int32(Shamt(w)))
			case 0x10:
				return i(SRAI, int32(Shamt(w)))
			}
			return Instr{}, illegal(w, "unknown shift-right immediate")
		case 6:
			return i(ORI, ImmTypeI(w))
		default:
			return i(ANDI, ImmTypeI(w))
		}
	case 0x17:
		in.Rs1, in.Rs2, in.Op, in.Imm = 0, 0, AUIPC, ImmTypeU(w)
		return in, nil
	case 0x1B: // OP-IMM-32
		switch funct3 {
		case 0:
			return i(ADDIW, ImmTypeI(w))
		case 1:
			if funct7 != 0 {
				return Instr{}, illegal(w, "slliw with non-zero funct7")
			}
			return i(SLLIW, int32(ShamtW(w)))
		case 5:
			switch funct7 {
			case 0x00:
				return i(SRLIW, int32(ShamtW(w)))
			case 0x20:
				return i(SRAIW, int32(ShamtW(w)))
			}
		}
		return Instr{}, illegal(w, "unknown 32-bit immediate arithmetic")
	case 0x23: // STORE
		ops := [8]Op{SB, SH, SW, SD}
		if op := ops[funct3]; op != ILLEGAL {
			in.Rd, in.Op, in.Imm = 0, op, ImmTypeS(w)
			return in, nil
		}
		return Instr{}, illegal(w, "unknown store width")
	case 0x27: // STORE-FP
		switch funct3 {
		case 2:
			in.Rd, in.Op, in.Imm = 0, FSW, ImmTypeS(w)
			return in, nil
		case 3:
			in.Rd, in.Op, in.Imm = 0, FSD, ImmTypeS(w)
			return in, nil
		}
		return Instr{}, illegal(w, "unknown float store width")
	case 0x2F: // AMO
		return decodeAtomic(in, w, funct3)
	case 0x33: // OP
		switch funct7 {
		case 0x00:
			return r([8]Op{ADD, SLL, SLT, SLTU, XOR, SRL, OR, AND}[funct3])
		case 0x20:
			switch funct3 {
			case 0:
				return r(SUB)
			case 5:
				return r(SRA)
			}
		case 0x01:
			return r([8]Op{MUL, MULH, MULHSU, MULHU, DIV, DIVU, REM, REMU}[funct3])
		}
		return Instr{}, illegal(w, "unknown register arithmetic")
	case 0x37:
		in.Rs1, in.Rs2, in.Op, in.Imm = 0, 0, LUI, ImmTypeU(w)
		return in, nil
	case 0x3B: // OP-32
		switch funct7 {
		case 0x00:
			switch funct3 {
			case 0:
				return r(ADDW)
			case 1:
				return r(SLLW)
			case 5:
				return r(SRLW)
			}
		case 0x20:
			switch funct3 {
			case 0:
				return r(SUBW)
			case 5:
				return r(SRAW)
			}
		case 0x01:
			if op := [8]Op{MULW, ILLEGAL, ILLEGAL, ILLEGAL, DIVW, DIVUW, REMW, REMUW}[funct3]; op != ILLEGAL {
				return r(op)
			}
		}
		return Instr{}, illegal(w, "unknown 32-bit register arithmetic")
	case 0x43, 0x47, 0x4B, 0x4F: // FMADD, FMSUB, FNMSUB, FNMADD
		return decodeFused(in, w, funct3)
	case 0x53: // OP-FP
		return decodeFloat(in, w, funct3, funct7)
	case 0x63: // BRANCH
		ops := [8]Op{BEQ, BNE, ILLEGAL, ILLEGAL, BLT, BGE, BLTU, BGEU}
		if op := ops[funct3]; op != ILLEGAL {
			in.Rd, in.Op, in.Imm = 0, op, ImmTypeB(w)
			return in, nil
		}
		return Instr{}, illegal(w, "unknown branch condition")
	case 0x67:
		if funct3 != 0 {
			return Instr{}, illegal(w, "jalr with non-zero funct3")
		}
		return i(JALR, ImmTypeI(w))
	case 0x6F:
		in.Rs1, in.Rs2, in.Op, in.Imm = 0, 0, JAL, ImmTypeJ(w)
		return in, nil
	case 0x73: // SYSTEM
		return decodeSystem(in, w, funct3, funct7)
	}
	return Instr{}, illegal(w, "unknown opcode")
}

func decodeAtomic(in Instr, w uint32, funct3 uint32) (Instr, error) {
	var wide bool
	switch funct3 {
	case 2:
	case 3:
		wide = true
	default:
		return Instr{}, illegal(w, "unknown atomic width")
	}
	pick := func(word, double Op) Op {
		if wide {
			return double
		}
		return word
	}
	switch Funct5(w) {
	case 0x02:
		if in.Rs2 != 0 {
			return Instr{}, illegal(w, "lr with non-zero rs2")
		}
		in.Op = pick(LR_W, LR_D)
	case 0x03:
		in.Op = pick(SC_W, SC_D)
	case 0x01:
		in.Op = pick(AMOSWAP_W, AMOSWAP_D)
	case 0x00:
		in.Op = pick(AMOADD_W, AMOADD_D)
	case 0x04:
		in.Op = pick(AMOXOR_W, AMOXOR_D)
	case 0x0C:
		in.Op = pick(AMOAND_W, AMOAND_D)
	case 0x08:
		in.Op = pick(AMOOR_W, AMOOR_D)
	case 0x10:
		in.Op = pick(AMOMIN_W, AMOMIN_D)
	case 0x14:
		in.Op = pick(AMOMAX_W, AMOMAX_D)
	case 0x18:
		in.Op = pick(AMOMINU_W, AMOMINU_D)
	case 0x1C:
		in.Op = pick(AMOMAXU_W, AMOMAXU_D)
	default:
		return Instr{}, illegal(w, "unknown atomic operation")
	}
	return in, nil
}

func validRm(rm uint32) bool {
	return rm != 5 && rm != 6
}

func decodeFused(in Instr, w uint32, funct3 uint32) (Instr, error) {
	if !validRm(funct3) {
		return Instr{}, illegal(w, "reserved rounding mode")
	}
	var ops [2]Op
	switch Opcode(w) {
	case 0x43:
		ops = [2]Op{FMADD_S, FMADD_D}
	case 0x47:
		ops = [2]Op{FMSUB_S, FMSUB_D}
	case 0x4B:
		ops = [2]Op{FNMSUB_S, FNMSUB_D}
	default:
		ops = [2]Op{FNMADD_S, FNMADD_D}
	}
	width := Funct2(w)
	if width > 1 {
		return Instr{}, illegal(w, "unsupported float format")
	}
	in.Op = ops[width]
	in.Rs3 = Rs3(w)
	in.Rm = uint8(funct3)
	return in, nil
}

func decodeFloat(in Instr, w uint32, funct3, funct7 uint32) (Instr, error) {
	rs2 := uint32(in.Rs2)
	// withRm: arithmetic and conversions that round; rs2Fixed: unary forms whose rs2 slot selects the variant.
	withRm := func(op Op) (Instr, error) {
		if !validRm(funct3) {
			return Instr{}, illegal(w, "reserved rounding mode")
		}
		in.Op, in.Rm = op, uint8(funct3)
		return in, nil
	}
	unary := func(op Op) (Instr, error) {
		if !validRm(funct3) {
			return Instr{}, illegal(w, "reserved rounding mode")
		}
		in.Op, in.Rm, in.Rs2 = op, uint8(funct3), 0
		return in, nil
	}
	byFunct3 := func(ops ...Op) (Instr, error) {
		if int(funct3) >= len(ops) {
			return Instr{}, illegal(w, "unknown float funct3")
		}
		in.Op = ops[funct3]
		return in, nil
	}

	switch funct7 {
	case 0x00:
		return withRm(FADD_S)
	case 0x01:
		return withRm(FADD_D)
	case 0x04:
		return withRm(FSUB_S)
	case 0x05:
		return withRm(FSUB_D)
	case 0x08:
		return withRm(FMUL_S)
	case 0x09:
		return withRm(FMUL_D)
	case 0x0C:
		return withRm(FDIV_S)
	case 0x0D:
		return withRm(FDIV_D)
	case 0x2C:
		if rs2 == 0 {
			return unary(FSQRT_S)
		}
	case 0x2D:
		if rs2 == 0 {
			return unary(FSQRT_D)
		}
	case 0x10:
		return byFunct3(FSGNJ_S, FSGNJN_S, FSGNJX_S)
	case 0x11:
		return byFunct3(FSGNJ_D, FSGNJN_D, FSGNJX_D)
	case 0x14:
		return byFunct3(FMIN_S, FMAX_S)
	case 0x15:
		return byFunct3(FMIN_D, FMAX_D)
	case 0x20:
		if rs2 == 1 {
			return unary(FCVT_S_D)
		}
	case 0x21:
		if rs2 == 0 {
			return unary(FCVT_D_S)
		}
	case 0x50:
		return byFunct3(FLE_S, FLT_S, FEQ_S)
	case 0x51:
		return byFunct3(FLE_D, FLT_D, FEQ_D)
	case 0x60:
		if rs2 < 4 {
			return unary([4]Op{FCVT_W_S, FCVT_WU_S, FCVT_L_S, FCVT_LU_S}[rs2])
		}
	case 0x61:
		if rs2 < 4 {
			return unary([4]Op{FCVT_W_D, FCVT_WU_D, FCVT_L_D, FCVT_LU_D}[rs2])
		}
	case 0x68:
		if rs2 < 4 {
			return unary([4]Op{FCVT_S_W, FCVT_S_WU, FCVT_S_L, FCVT_S_LU}[rs2])
		}
	case 0x69:
		if rs2 < 4 {
			return unary([4]Op{FCVT_D_W, FCVT_D_WU, FCVT_D_L, FCVT_D_LU}[rs2])
		}
	case 0x70:
		if rs2 == 0 {
			in.Rs2 = 0
			return byFunct3(FMV_X_W, FCLASS_S)
		}
	case 0x71:
		if rs2 == 0 {
			in.Rs2 = 0
			return byFunct3(FMV_X_D, FCLASS_D)
		}
	case 0x78:
		if rs2 == 0 && funct3 == 0 {
			in.Op = FMV_W_X
			return in, nil
		}
	case 0x79:
		if rs2 == 0 && funct3 == 0 {
			in.Op = FMV_D_X
			return in, nil
		}
	}
	return Instr{}, illegal(w, "unknown float operation")
}

func decodeSystem(in Instr, w uint32, funct3, funct7 uint32) (Instr, error) {
	switch funct3 {
	case 0:
		switch w {
		case 0x00000073:
			return Instr{Op: ECALL, Raw: w}, nil
		case 0x00100073:
			return Instr{Op: EBREAK, Raw: w}, nil
		case 0x10200073:
			return Instr{Op: SRET, Raw: w}, nil
		case 0x30200073:
			return Instr{Op: MRET, Raw: w}, nil
		case 0x10500073:
			return Instr{Op: WFI, Raw: w}, nil
		}
		if funct7 == 0x09 && in.Rd == 0 {
			in.Op = SFENCE_VMA
			return in, nil
		}
		return Instr{}, illegal(w, "unknown system instruction")
	case 4:
		return Instr{}, illegal(w, "reserved csr funct3")
	}
	in.CSR = CSRAddr(w)
	in.Rs2 = 0
	in.Op = [8]Op{ILLEGAL, CSRRW, CSRRS, CSRRC, ILLEGAL, CSRRWI, CSRRSI, CSRRCI}[funct3]
	if funct3 >= 5 {
		in.Imm = int32(in.Rs1)
	}
	return in, nil
}
