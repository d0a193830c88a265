package isa

import (
	"fmt"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

// Instr is a decoded instruction. Fields that do not apply to Op are zero.
type Instr struct {
	Op  Op
	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Rs3 uint8
	// Imm is sign-extended; for shift-immediates it holds the unsigned shift amount,
	// for CSR immediate forms the 5 bit zimm.
	Imm int32
	CSR uint16
	// Rm is the rounding-mode field of floating-point operations that carry one.
	Rm uint8

	Compressed bool
	EndsBlock  bool
	// Raw is the fetched word; only the low 16 bits for compressed instructions.
	Raw uint32
}

// Size is the number of bytes the instruction occupies: 2 or 4.
func (in *Instr) Size() uint64 {
	if in.Compressed {
		return 2
	}
	return 4
}

func (in Instr) String() string {
	var args string
	switch encodings[in.Op].format {
	case fmtR, fmtAMO:
		args = fmt.Sprintf("%s, %s, %s", xreg(in.Rd), xreg(in.Rs1), xreg(in.Rs2))
	case fmtI, fmtShift:
		switch in.Op {
		case LB, LH, LW, LD, LBU, LHU, LWU, JALR:
			args = fmt.Sprintf("%s, %d(%s)", xreg(in.Rd), in.Imm, xreg(in.Rs1))
		case FLW, FLD:
			args = fmt.Sprintf("f%d, %d(%s)", in.Rd, in.Imm, xreg(in.Rs1))
		default:
			args = fmt.Sprintf("%s, %s, %d", xreg(in.Rd), xreg(in.Rs1), in.Imm)
		}
	case fmtS:
		if in.Op == FSW || in.Op == FSD {
			args = fmt.Sprintf("f%d, %d(%s)", in.Rs2, in.Imm, xreg(in.Rs1))
		} else {
			args = fmt.Sprintf("%s, %d(%s)", xreg(in.Rs2), in.Imm, xreg(in.Rs1))
		}
	case fmtB:
		args = fmt.Sprintf("%s, %s, %d", xreg(in.Rs1), xreg(in.Rs2), in.Imm)
	case fmtU:
		args = fmt.Sprintf("%s, 0x%x", xreg(in.Rd), uint32(in.Imm)>>12)
	case fmtJ:
		args = fmt.Sprintf("%s, %d", xreg(in.Rd), in.Imm)
	case fmtCSR:
		args = fmt.Sprintf("%s, 0x%03x, %s", xreg(in.Rd), in.CSR, xreg(in.Rs1))
	case fmtCSRI:
		args = fmt.Sprintf("%s, 0x%03x, %d", xreg(in.Rd), in.CSR, in.Rs1)
	case fmtR4:
		args = fmt.Sprintf("f%d, f%d, f%d, f%d", in.Rd, in.Rs1, in.Rs2, in.Rs3)
	case fmtFP, fmtFPRm:
		args = fmt.Sprintf("%s, %s, %s", fpArg(in.Op, 0, in.Rd), fpArg(in.Op, 1, in.Rs1), fpArg(in.Op, 2, in.Rs2))
	case fmtFPUnary:
		args = fmt.Sprintf("%s, %s", fpArg(in.Op, 0, in.Rd), fpArg(in.Op, 1, in.Rs1))
	}
	name := in.Op.String()
	if in.Compressed {
		name = "c." + name
	}
	if args == "" {
		return name
	}
	return name + " " + args
}

func xreg(r uint8) string {
	return fmt.Sprintf("x%d", r)
}

// fpArg names operand i (0 = rd) as an integer or float register depending on the operation.
func fpArg(op Op, i int, r uint8) string {
	intDest := false
	intSrc := false
	switch op {
	case FCVT_W_S, FCVT_WU_S, FCVT_L_S, FCVT_LU_S, FMV_X_W, FCLASS_S,
		FCVT_W_D, FCVT_WU_D, FCVT_L_D, FCVT_LU_D, FMV_X_D, FCLASS_D,
		FEQ_S, FLT_S, FLE_S, FEQ_D, FLT_D, FLE_D:
		intDest = true
	case FCVT_S_W, FCVT_S_WU, FCVT_S_L, FCVT_S_LU, FMV_W_X,
		FCVT_D_W, FCVT_D_WU, FCVT_D_L, FCVT_D_LU, FMV_D_X:
		intSrc = true
	}
	if (i == 0 && intDest) || (i == 1 && intSrc) {
		return xreg(r)
	}
	return fmt.Sprintf("f%d", r)
}

// DecodeError reports a word that is not a legal RV64GC encoding.
type DecodeError struct {
	Raw        uint32
	Compressed bool
	Reason     string
}

func (e *DecodeError) Error() string {
	if e.Compressed {
		return fmt.Sprintf("illegal compressed instruction 0x%04x: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("illegal instruction 0x%08x: %s", e.Raw, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return riscv.ErrIllegalInstruction
}
