package fast

import (
	"fmt"

	"github.com/rvemu/rvemu/rvgo/isa"
	"github.com/rvemu/rvemu/rvgo/riscv"
)

func intHandlers() map[isa.Op]handler {
	return map[isa.Op]handler{
		isa.LUI:   execLUI,
		isa.AUIPC: execAUIPC,
		isa.JAL:   execJAL,
		isa.JALR:  execJALR,

		isa.BEQ:  branch(func(a, b uint64) bool { return a == b }),
		isa.BNE:  branch(func(a, b uint64) bool { return a != b }),
		isa.BLT:  branch(func(a, b uint64) bool { return slt64(a, b) != 0 }),
		isa.BGE:  branch(func(a, b uint64) bool { return slt64(a, b) == 0 }),
		isa.BLTU: branch(func(a, b uint64) bool { return a < b }),
		isa.BGEU: branch(func(a, b uint64) bool { return a >= b }),

		isa.LB:  load(1, true),
		isa.LH:  load(2, true),
		isa.LW:  load(4, true),
		isa.LD:  load(8, false),
		isa.LBU: load(1, false),
		isa.LHU: load(2, false),
		isa.LWU: load(4, false),
		isa.SB:  store(1),
		isa.SH:  store(2),
		isa.SW:  store(4),
		isa.SD:  store(8),

		isa.ADDI:  immOp(add64),
		isa.SLTI:  immOp(slt64),
		isa.SLTIU: immOp(lt64),
		isa.XORI:  immOp(xor64),
		isa.ORI:   immOp(or64),
		isa.ANDI:  immOp(and64),
		isa.SLLI:  immOp(func(a, sh uint64) uint64 { return shl64(sh, a) }),
		isa.SRLI:  immOp(func(a, sh uint64) uint64 { return shr64(sh, a) }),
		isa.SRAI:  immOp(func(a, sh uint64) uint64 { return sar64(sh, a) }),

		isa.ADD:  regOp(add64),
		isa.SUB:  regOp(sub64),
		isa.SLL:  regOp(func(a, b uint64) uint64 { return shl64(and64(b, 0x3F), a) }),
		isa.SLT:  regOp(slt64),
		isa.SLTU: regOp(lt64),
		isa.XOR:  regOp(xor64),
		isa.SRL:  regOp(func(a, b uint64) uint64 { return shr64(and64(b, 0x3F), a) }),
		isa.SRA:  regOp(func(a, b uint64) uint64 { return sar64(and64(b, 0x3F), a) }),
		isa.OR:   regOp(or64),
		isa.AND:  regOp(and64),

		isa.ADDIW: immOp(word(add64)),
		isa.SLLIW: immOp(word(shlw)),
		isa.SRLIW: immOp(word(shrw)),
		isa.SRAIW: immOp(word(sarw)),
		isa.ADDW:  regOp(word(add64)),
		isa.SUBW:  regOp(word(sub64)),
		isa.SLLW:  regOp(word(shlw)),
		isa.SRLW:  regOp(word(shrw)),
		isa.SRAW:  regOp(word(sarw)),

		isa.FENCE:   execNop,
		isa.FENCE_I: execNop,
		isa.ECALL:   execECALL,

		isa.CSRRW:  execCSR,
		isa.CSRRS:  execCSR,
		isa.CSRRC:  execCSR,
		isa.CSRRWI: execCSR,
		isa.CSRRSI: execCSR,
		isa.CSRRCI: execCSR,

		isa.MUL:    regOp(mul64),
		isa.MULH:   regOp(func(a, b uint64) uint64 { return mulHigh(a, b, true, true) }),
		isa.MULHSU: regOp(func(a, b uint64) uint64 { return mulHigh(a, b, true, false) }),
		isa.MULHU:  regOp(func(a, b uint64) uint64 { return mulHigh(a, b, false, false) }),
		isa.DIV:    regOp(sdiv64),
		isa.DIVU:   regOp(div64),
		isa.REM:    regOp(smod64),
		isa.REMU:   regOp(mod64),
		isa.MULW:   regOp(word(mul64)),
		isa.DIVW:   regOp(word(func(a, b uint64) uint64 { return sdiv64(mask32Signed64(a), mask32Signed64(b)) })),
		isa.DIVUW:  regOp(word(func(a, b uint64) uint64 { return div64(and64(a, u32Mask()), and64(b, u32Mask())) })),
		isa.REMW:   regOp(word(func(a, b uint64) uint64 { return smod64(mask32Signed64(a), mask32Signed64(b)) })),
		isa.REMUW:  regOp(word(func(a, b uint64) uint64 { return mod64(and64(a, u32Mask()), and64(b, u32Mask())) })),

		isa.LR_W:      execLR(4),
		isa.LR_D:      execLR(8),
		isa.SC_W:      execSC(4),
		isa.SC_D:      execSC(8),
		isa.AMOSWAP_W: amo(4, func(_, v uint64) uint64 { return v }),
		isa.AMOSWAP_D: amo(8, func(_, v uint64) uint64 { return v }),
		isa.AMOADD_W:  amo(4, add64),
		isa.AMOADD_D:  amo(8, add64),
		isa.AMOXOR_W:  amo(4, xor64),
		isa.AMOXOR_D:  amo(8, xor64),
		isa.AMOAND_W:  amo(4, and64),
		isa.AMOAND_D:  amo(8, and64),
		isa.AMOOR_W:   amo(4, or64),
		isa.AMOOR_D:   amo(8, or64),
		isa.AMOMIN_W:  amo(4, amoMin),
		isa.AMOMIN_D:  amo(8, amoMin),
		isa.AMOMAX_W:  amo(4, amoMax),
		isa.AMOMAX_D:  amo(8, amoMax),
		isa.AMOMINU_W: amo(4, amoMinU),
		isa.AMOMINU_D: amo(8, amoMinU),
		isa.AMOMAXU_W: amo(4, amoMaxU),
		isa.AMOMAXU_D: amo(8, amoMaxU),
	}
}

func imm64(in *isa.Instr) uint64 {
	return uint64(int64(in.Imm))
}

func execNop(*State, *Memory, *isa.Instr) {}

func execLUI(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, imm64(in))
}

func execAUIPC(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, add64(s.PC, imm64(in)))
}

func execJAL(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, add64(s.PC, in.Size()))
	s.ReEnterPC = add64(s.PC, imm64(in))
	s.ExitReason = ExitDirectBranch
}

func execJALR(s *State, _ *Memory, in *isa.Instr) {
	// target uses rs1 before the link is written, rd may equal rs1
	target := and64(add64(s.loadRegister(in.Rs1), imm64(in)), not64(1))
	s.writeRegister(in.Rd, add64(s.PC, in.Size()))
	s.ReEnterPC = target
	s.ExitReason = ExitIndirectBranch
}

func branch(cond func(a, b uint64) bool) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		if cond(s.loadRegister(in.Rs1), s.loadRegister(in.Rs2)) {
			s.ReEnterPC = add64(s.PC, imm64(in))
			s.ExitReason = ExitDirectBranch
		}
	}
}

func load(size uint64, signed bool) handler {
	return func(s *State, mem *Memory, in *isa.Instr) {
		addr := add64(s.loadRegister(in.Rs1), imm64(in))
		v := mem.Load(addr, size)
		if signed {
			v = signExtend64(v, size*8-1)
		}
		s.writeRegister(in.Rd, v)
	}
}

func store(size uint64) handler {
	return func(s *State, mem *Memory, in *isa.Instr) {
		addr := add64(s.loadRegister(in.Rs1), imm64(in))
		mem.Store(addr, size, s.loadRegister(in.Rs2))
	}
}

func regOp(f func(a, b uint64) uint64) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.writeRegister(in.Rd, f(s.loadRegister(in.Rs1), s.loadRegister(in.Rs2)))
	}
}

func immOp(f func(a, b uint64) uint64) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.writeRegister(in.Rd, f(s.loadRegister(in.Rs1), imm64(in)))
	}
}

// word adapts a 64-bit operation to the W form: the low 32 bits of the result, sign-extended.
func word(f func(a, b uint64) uint64) func(a, b uint64) uint64 {
	return func(a, b uint64) uint64 {
		return mask32Signed64(f(a, b))
	}
}

func shlw(a, b uint64) uint64 { return shl64(and64(b, 0x1F), a) }
func shrw(a, b uint64) uint64 { return shr64(and64(b, 0x1F), and64(a, u32Mask())) }
func sarw(a, b uint64) uint64 { return sar64(and64(b, 0x1F), mask32Signed64(a)) }

func execECALL(s *State, _ *Memory, _ *isa.Instr) {
	s.ReEnterPC = add64(s.PC, 4)
	s.ExitReason = ExitECall
}

func execCSR(s *State, _ *Memory, in *isa.Instr) {
	var v uint64
	var mode uint8
	write := true
	switch in.Op {
	case isa.CSRRW, isa.CSRRS, isa.CSRRC:
		v = s.loadRegister(in.Rs1)
		mode = uint8(in.Op-isa.CSRRW) + 1
		write = in.Op == isa.CSRRW || in.Rs1 != 0
	default:
		v = uint64(in.Imm) & 0x1F
		mode = uint8(in.Op-isa.CSRRWI) + 1
		write = in.Op == isa.CSRRWI || v != 0
	}
	s.writeRegister(in.Rd, s.updateCSR(in.CSR, v, mode, write))
}

func atomicAddr(s *State, in *isa.Instr, size uint64) uint64 {
	addr := s.loadRegister(in.Rs1)
	if addr&(size-1) != 0 {
		panic(fmt.Errorf("%w: %s at 0x%x", riscv.ErrMisalignedAtomic, in.Op, addr))
	}
	return addr
}

func loadAtomic(mem *Memory, addr, size uint64) uint64 {
	v := mem.Load(addr, size)
	if size == 4 {
		v = mask32Signed64(v)
	}
	return v
}

func execLR(size uint64) handler {
	return func(s *State, mem *Memory, in *isa.Instr) {
		addr := atomicAddr(s, in, size)
		s.writeRegister(in.Rd, loadAtomic(mem, addr, size))
		s.LoadReservation = addr
	}
}

func execSC(size uint64) handler {
	return func(s *State, mem *Memory, in *isa.Instr) {
		addr := atomicAddr(s, in, size)
		if s.LoadReservation != 0 && s.LoadReservation == addr {
			mem.Store(addr, size, s.loadRegister(in.Rs2))
			s.writeRegister(in.Rd, 0)
		} else {
			s.writeRegister(in.Rd, 1)
		}
		s.LoadReservation = 0
	}
}

// amo performs a read-modify-write. For W forms both operands are sign-extended 32-bit values.
func amo(size uint64, op func(old, v uint64) uint64) handler {
	return func(s *State, mem *Memory, in *isa.Instr) {
		addr := atomicAddr(s, in, size)
		old := loadAtomic(mem, addr, size)
		v := s.loadRegister(in.Rs2)
		if size == 4 {
			v = mask32Signed64(v)
		}
		mem.Store(addr, size, op(old, v))
		s.writeRegister(in.Rd, old)
	}
}

func amoMin(old, v uint64) uint64 {
	if slt64(v, old) != 0 {
		return v
	}
	return old
}

func amoMax(old, v uint64) uint64 {
	if slt64(old, v) != 0 {
		return v
	}
	return old
}

// Sign-extended W operands keep their unsigned 32-bit order, so the 64-bit compare is valid for both widths.
func amoMinU(old, v uint64) uint64 {
	if lt64(v, old) != 0 {
		return v
	}
	return old
}

func amoMaxU(old, v uint64) uint64 {
	if lt64(old, v) != 0 {
		return v
	}
	return old
}
