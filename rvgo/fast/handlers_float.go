package fast

import (
	"math"

	"github.com/rvemu/rvemu/rvgo/isa"
	"github.com/rvemu/rvemu/rvgo/riscv"
)

func floatHandlers() map[isa.Op]handler {
	return map[isa.Op]handler{
		isa.FLW: execFLW,
		isa.FSW: execFSW,
		isa.FLD: execFLD,
		isa.FSD: execFSD,

		isa.FMADD_S:  fused32(false, false),
		isa.FMSUB_S:  fused32(false, true),
		isa.FNMSUB_S: fused32(true, false),
		isa.FNMADD_S: fused32(true, true),
		isa.FMADD_D:  fused64(false, false),
		isa.FMSUB_D:  fused64(false, true),
		isa.FNMSUB_D: fused64(true, false),
		isa.FNMADD_D: fused64(true, true),

		isa.FADD_S:  arith32(func(a, b float32) float32 { return a + b }),
		isa.FSUB_S:  arith32(func(a, b float32) float32 { return a - b }),
		isa.FMUL_S:  arith32(func(a, b float32) float32 { return a * b }),
		isa.FDIV_S:  execFDIV_S,
		isa.FSQRT_S: execFSQRT_S,
		isa.FADD_D:  arith64(func(a, b float64) float64 { return a + b }),
		isa.FSUB_D:  arith64(func(a, b float64) float64 { return a - b }),
		isa.FMUL_D:  arith64(func(a, b float64) float64 { return a * b }),
		isa.FDIV_D:  execFDIV_D,
		isa.FSQRT_D: execFSQRT_D,

		isa.FSGNJ_S:  signInject32(func(_, b uint32) uint32 { return b }),
		isa.FSGNJN_S: signInject32(func(_, b uint32) uint32 { return ^b }),
		isa.FSGNJX_S: signInject32(func(a, b uint32) uint32 { return a ^ b }),
		isa.FSGNJ_D:  signInject64(func(_, b uint64) uint64 { return b }),
		isa.FSGNJN_D: signInject64(func(_, b uint64) uint64 { return ^b }),
		isa.FSGNJX_D: signInject64(func(a, b uint64) uint64 { return a ^ b }),

		isa.FMIN_S: minMax32(false),
		isa.FMAX_S: minMax32(true),
		isa.FMIN_D: minMax64(false),
		isa.FMAX_D: minMax64(true),

		isa.FEQ_S: compare32(cmpEQ),
		isa.FLT_S: compare32(cmpLT),
		isa.FLE_S: compare32(cmpLE),
		isa.FEQ_D: compare64(cmpEQ),
		isa.FLT_D: compare64(cmpLT),
		isa.FLE_D: compare64(cmpLE),

		isa.FCLASS_S: execFCLASS_S,
		isa.FCLASS_D: execFCLASS_D,

		isa.FCVT_W_S:  toInt32(intW),
		isa.FCVT_WU_S: toInt32(intWU),
		isa.FCVT_L_S:  toInt32(intL),
		isa.FCVT_LU_S: toInt32(intLU),
		isa.FCVT_W_D:  toInt64(intW),
		isa.FCVT_WU_D: toInt64(intWU),
		isa.FCVT_L_D:  toInt64(intL),
		isa.FCVT_LU_D: toInt64(intLU),

		isa.FCVT_S_W:  execFCVT_S_int(intW),
		isa.FCVT_S_WU: execFCVT_S_int(intWU),
		isa.FCVT_S_L:  execFCVT_S_int(intL),
		isa.FCVT_S_LU: execFCVT_S_int(intLU),
		isa.FCVT_D_W:  execFCVT_D_int(intW),
		isa.FCVT_D_WU: execFCVT_D_int(intWU),
		isa.FCVT_D_L:  execFCVT_D_int(intL),
		isa.FCVT_D_LU: execFCVT_D_int(intLU),

		isa.FCVT_S_D: execFCVT_S_D,
		isa.FCVT_D_S: execFCVT_D_S,

		isa.FMV_X_W: execFMV_X_W,
		isa.FMV_W_X: execFMV_W_X,
		isa.FMV_X_D: execFMV_X_D,
		isa.FMV_D_X: execFMV_D_X,
	}
}

func isSNaN32(bits uint32) bool {
	return bits&0x7f80_0000 == 0x7f80_0000 && bits&0x007f_ffff != 0 && bits&0x0040_0000 == 0
}

func isSNaN64(bits uint64) bool {
	return bits&0x7ff0_0000_0000_0000 == 0x7ff0_0000_0000_0000 &&
		bits&0x000f_ffff_ffff_ffff != 0 && bits&0x0008_0000_0000_0000 == 0
}

// invalid32 reports whether an operation on these operands signals NV:
// a signaling NaN input, or a NaN result produced from non-NaN inputs.
func invalid32(result float32, args ...uint32) bool {
	anyNaN := false
	for _, a := range args {
		if isSNaN32(a) {
			return true
		}
		f := math.Float32frombits(a)
		anyNaN = anyNaN || f != f
	}
	return result != result && !anyNaN
}

func invalid64(result float64, args ...uint64) bool {
	anyNaN := false
	for _, a := range args {
		if isSNaN64(a) {
			return true
		}
		anyNaN = anyNaN || math.IsNaN(math.Float64frombits(a))
	}
	return math.IsNaN(result) && !anyNaN
}

func execFLW(s *State, mem *Memory, in *isa.Instr) {
	addr := add64(s.loadRegister(in.Rs1), imm64(in))
	s.writeF32Bits(in.Rd, uint32(mem.Load(addr, 4)))
}

func execFSW(s *State, mem *Memory, in *isa.Instr) {
	addr := add64(s.loadRegister(in.Rs1), imm64(in))
	mem.Store(addr, 4, and64(s.FRegisters[in.Rs2], u32Mask()))
}

func execFLD(s *State, mem *Memory, in *isa.Instr) {
	addr := add64(s.loadRegister(in.Rs1), imm64(in))
	s.FRegisters[in.Rd] = mem.Load(addr, 8)
}

func execFSD(s *State, mem *Memory, in *isa.Instr) {
	addr := add64(s.loadRegister(in.Rs1), imm64(in))
	mem.Store(addr, 8, s.FRegisters[in.Rs2])
}

// fused32 computes (+/-)(rs1*rs2) (+/-) rs3 in double precision, rounded once to single.
func fused32(negProduct, negAddend bool) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.roundingMode(in.Rm)
		a, b, c := s.loadF32Bits(in.Rs1), s.loadF32Bits(in.Rs2), s.loadF32Bits(in.Rs3)
		x := float64(math.Float32frombits(a))
		y := float64(math.Float32frombits(b))
		z := float64(math.Float32frombits(c))
		if negProduct {
			x = -x
		}
		if negAddend {
			z = -z
		}
		r := float32(math.FMA(x, y, z))
		if invalid32(r, a, b, c) {
			s.setFflags(riscv.FflagNV)
		}
		s.writeF32(in.Rd, r)
	}
}

func fused64(negProduct, negAddend bool) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.roundingMode(in.Rm)
		a, b, c := s.FRegisters[in.Rs1], s.FRegisters[in.Rs2], s.FRegisters[in.Rs3]
		x, y, z := math.Float64frombits(a), math.Float64frombits(b), math.Float64frombits(c)
		if negProduct {
			x = -x
		}
		if negAddend {
			z = -z
		}
		r := math.FMA(x, y, z)
		if invalid64(r, a, b, c) {
			s.setFflags(riscv.FflagNV)
		}
		s.writeF64(in.Rd, r)
	}
}

func arith32(f func(a, b float32) float32) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.roundingMode(in.Rm)
		a, b := s.loadF32Bits(in.Rs1), s.loadF32Bits(in.Rs2)
		r := f(math.Float32frombits(a), math.Float32frombits(b))
		if invalid32(r, a, b) {
			s.setFflags(riscv.FflagNV)
		}
		s.writeF32(in.Rd, r)
	}
}

func arith64(f func(a, b float64) float64) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.roundingMode(in.Rm)
		a, b := s.FRegisters[in.Rs1], s.FRegisters[in.Rs2]
		r := f(math.Float64frombits(a), math.Float64frombits(b))
		if invalid64(r, a, b) {
			s.setFflags(riscv.FflagNV)
		}
		s.writeF64(in.Rd, r)
	}
}

func execFDIV_S(s *State, mem *Memory, in *isa.Instr) {
	a, b := s.loadF32(in.Rs1), s.loadF32(in.Rs2)
	if b == 0 && a == a && a != 0 && !math.IsInf(float64(a), 0) {
		s.setFflags(riscv.FflagDZ)
	}
	arith32(func(a, b float32) float32 { return a / b })(s, mem, in)
}

func execFDIV_D(s *State, mem *Memory, in *isa.Instr) {
	a, b := s.loadF64(in.Rs1), s.loadF64(in.Rs2)
	if b == 0 && !math.IsNaN(a) && a != 0 && !math.IsInf(a, 0) {
		s.setFflags(riscv.FflagDZ)
	}
	arith64(func(a, b float64) float64 { return a / b })(s, mem, in)
}

func execFSQRT_S(s *State, _ *Memory, in *isa.Instr) {
	s.roundingMode(in.Rm)
	a := s.loadF32Bits(in.Rs1)
	r := float32(math.Sqrt(float64(math.Float32frombits(a))))
	if invalid32(r, a) {
		s.setFflags(riscv.FflagNV)
	}
	s.writeF32(in.Rd, r)
}

func execFSQRT_D(s *State, _ *Memory, in *isa.Instr) {
	s.roundingMode(in.Rm)
	a := s.FRegisters[in.Rs1]
	r := math.Sqrt(math.Float64frombits(a))
	if invalid64(r, a) {
		s.setFflags(riscv.FflagNV)
	}
	s.writeF64(in.Rd, r)
}

// signInject32 takes the magnitude of rs1 and the sign bit computed by sign from rs1 and rs2.
func signInject32(sign func(a, b uint32) uint32) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		a, b := s.loadF32Bits(in.Rs1), s.loadF32Bits(in.Rs2)
		s.writeF32Bits(in.Rd, a&0x7fff_ffff|sign(a, b)&0x8000_0000)
	}
}

func signInject64(sign func(a, b uint64) uint64) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		a, b := s.FRegisters[in.Rs1], s.FRegisters[in.Rs2]
		s.FRegisters[in.Rd] = a&0x7fff_ffff_ffff_ffff | sign(a, b)&0x8000_0000_0000_0000
	}
}

// minMax picks per IEEE 754-2019 minimumNumber/maximumNumber: a single NaN yields the
// other operand, and -0 orders below +0.
func minMax[F float32 | float64](a, b F, isMax bool) F {
	aNaN, bNaN := a != a, b != b
	switch {
	case aNaN && bNaN:
		return F(math.NaN())
	case aNaN:
		return b
	case bNaN:
		return a
	case a == 0 && b == 0:
		aNeg := math.Signbit(float64(a))
		if aNeg == isMax {
			return b
		}
		return a
	case (a < b) != isMax:
		return a
	}
	return b
}

func minMax32(isMax bool) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		a, b := s.loadF32Bits(in.Rs1), s.loadF32Bits(in.Rs2)
		if isSNaN32(a) || isSNaN32(b) {
			s.setFflags(riscv.FflagNV)
		}
		s.writeF32(in.Rd, minMax(math.Float32frombits(a), math.Float32frombits(b), isMax))
	}
}

func minMax64(isMax bool) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		a, b := s.FRegisters[in.Rs1], s.FRegisters[in.Rs2]
		if isSNaN64(a) || isSNaN64(b) {
			s.setFflags(riscv.FflagNV)
		}
		s.writeF64(in.Rd, minMax(math.Float64frombits(a), math.Float64frombits(b), isMax))
	}
}

type cmpKind uint8

const (
	cmpEQ cmpKind = iota
	cmpLT
	cmpLE
)

// compare returns the boolean result and whether NV must be raised.
// FEQ is a quiet comparison; FLT and FLE signal on any NaN.
func compare[F float32 | float64](a, b F, kind cmpKind, signaling bool) (uint64, bool) {
	if a != a || b != b {
		return 0, kind != cmpEQ || signaling
	}
	var r bool
	switch kind {
	case cmpEQ:
		r = a == b
	case cmpLT:
		r = a < b
	default:
		r = a <= b
	}
	if r {
		return 1, false
	}
	return 0, false
}

func compare32(kind cmpKind) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		a, b := s.loadF32Bits(in.Rs1), s.loadF32Bits(in.Rs2)
		r, nv := compare(math.Float32frombits(a), math.Float32frombits(b), kind, isSNaN32(a) || isSNaN32(b))
		if nv {
			s.setFflags(riscv.FflagNV)
		}
		s.writeRegister(in.Rd, r)
	}
}

func compare64(kind cmpKind) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		a, b := s.FRegisters[in.Rs1], s.FRegisters[in.Rs2]
		r, nv := compare(math.Float64frombits(a), math.Float64frombits(b), kind, isSNaN64(a) || isSNaN64(b))
		if nv {
			s.setFflags(riscv.FflagNV)
		}
		s.writeRegister(in.Rd, r)
	}
}

// classify builds the FCLASS mask from the IEEE 754 fields.
//
//	bit 0: -inf       bit 5: +subnormal
//	bit 1: -normal    bit 6: +normal
//	bit 2: -subnormal bit 7: +inf
//	bit 3: -0         bit 8: signaling NaN
//	bit 4: +0         bit 9: quiet NaN
func classify(negative, expAllOnes, expZero, mantissaZero, quietBit bool) uint64 {
	pick := func(neg, pos uint) uint64 {
		if negative {
			return 1 << neg
		}
		return 1 << pos
	}
	switch {
	case expAllOnes && mantissaZero:
		return pick(0, 7)
	case expAllOnes && quietBit:
		return 1 << 9
	case expAllOnes:
		return 1 << 8
	case expZero && mantissaZero:
		return pick(3, 4)
	case expZero:
		return pick(2, 5)
	}
	return pick(1, 6)
}

// FClass32 classifies a single-precision bit pattern.
func FClass32(bits uint32) uint64 {
	exp := (bits >> 23) & 0xff
	mantissa := bits & 0x7f_ffff
	return classify(bits>>31 != 0, exp == 0xff, exp == 0, mantissa == 0, mantissa&(1<<22) != 0)
}

// FClass64 classifies a double-precision bit pattern.
func FClass64(bits uint64) uint64 {
	exp := (bits >> 52) & 0x7ff
	mantissa := bits & 0xf_ffff_ffff_ffff
	return classify(bits>>63 != 0, exp == 0x7ff, exp == 0, mantissa == 0, mantissa&(1<<51) != 0)
}

func execFCLASS_S(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, FClass32(s.loadF32Bits(in.Rs1)))
}

func execFCLASS_D(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, FClass64(s.FRegisters[in.Rs1]))
}

// intKind is the integer side of a conversion.
type intKind uint8

const (
	intW intKind = iota
	intWU
	intL
	intLU
)

func roundTo(f float64, rm uint8) float64 {
	switch rm {
	case riscv.RoundTowardZero:
		return math.Trunc(f)
	case riscv.RoundDown:
		return math.Floor(f)
	case riscv.RoundUp:
		return math.Ceil(f)
	case riscv.RoundNearestMax:
		return math.Round(f)
	}
	return math.RoundToEven(f)
}

// floatToInt rounds f with rm and saturates to the target range. NaN converts to the
// largest positive value. The result is the register value: 32-bit targets are sign-extended.
func floatToInt(f float64, rm uint8, kind intKind) (out uint64, flags uint64) {
	if math.IsNaN(f) {
		switch kind {
		case intW:
			return math.MaxInt32, riscv.FflagNV
		case intWU:
			return ^uint64(0), riscv.FflagNV
		case intL:
			return math.MaxInt64, riscv.FflagNV
		}
		return math.MaxUint64, riscv.FflagNV
	}
	r := roundTo(f, rm)
	if r != f {
		flags = riscv.FflagNX
	}
	switch kind {
	case intW:
		switch {
		case r < math.MinInt32:
			return signExtend64(1<<31, 31), riscv.FflagNV
		case r > math.MaxInt32:
			return math.MaxInt32, riscv.FflagNV
		}
		return uint64(int64(r)), flags
	case intWU:
		switch {
		case r < 0:
			return 0, riscv.FflagNV
		case r > math.MaxUint32:
			return ^uint64(0), riscv.FflagNV
		}
		return mask32Signed64(uint64(r)), flags
	case intL:
		switch {
		case r < math.MinInt64:
			return 1 << 63, riscv.FflagNV
		case r >= 1<<63:
			return math.MaxInt64, riscv.FflagNV
		}
		return uint64(int64(r)), flags
	}
	switch {
	case r < 0:
		return 0, riscv.FflagNV
	case r >= 1<<64:
		return math.MaxUint64, riscv.FflagNV
	}
	return uint64(r), flags
}

func toInt32(kind intKind) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		v, flags := floatToInt(float64(s.loadF32(in.Rs1)), s.roundingMode(in.Rm), kind)
		s.setFflags(flags)
		s.writeRegister(in.Rd, v)
	}
}

func toInt64(kind intKind) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		v, flags := floatToInt(s.loadF64(in.Rs1), s.roundingMode(in.Rm), kind)
		s.setFflags(flags)
		s.writeRegister(in.Rd, v)
	}
}

func execFCVT_S_int(kind intKind) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.roundingMode(in.Rm)
		v := s.loadRegister(in.Rs1)
		var f float32
		switch kind {
		case intW:
			f = float32(int32(v))
		case intWU:
			f = float32(uint32(v))
		case intL:
			f = float32(int64(v))
		default:
			f = float32(v)
		}
		s.writeF32(in.Rd, f)
	}
}

func execFCVT_D_int(kind intKind) handler {
	return func(s *State, _ *Memory, in *isa.Instr) {
		s.roundingMode(in.Rm)
		v := s.loadRegister(in.Rs1)
		var f float64
		switch kind {
		case intW:
			f = float64(int32(v))
		case intWU:
			f = float64(uint32(v))
		case intL:
			f = float64(int64(v))
		default:
			f = float64(v)
		}
		s.writeF64(in.Rd, f)
	}
}

func execFCVT_S_D(s *State, _ *Memory, in *isa.Instr) {
	s.roundingMode(in.Rm)
	a := s.FRegisters[in.Rs1]
	if isSNaN64(a) {
		s.setFflags(riscv.FflagNV)
	}
	s.writeF32(in.Rd, float32(math.Float64frombits(a)))
}

func execFCVT_D_S(s *State, _ *Memory, in *isa.Instr) {
	s.roundingMode(in.Rm)
	a := s.loadF32Bits(in.Rs1)
	if isSNaN32(a) {
		s.setFflags(riscv.FflagNV)
	}
	s.writeF64(in.Rd, float64(math.Float32frombits(a)))
}

func execFMV_X_W(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, mask32Signed64(s.FRegisters[in.Rs1]))
}

func execFMV_W_X(s *State, _ *Memory, in *isa.Instr) {
	s.writeF32Bits(in.Rd, uint32(s.loadRegister(in.Rs1)))
}

func execFMV_X_D(s *State, _ *Memory, in *isa.Instr) {
	s.writeRegister(in.Rd, s.FRegisters[in.Rs1])
}

func execFMV_D_X(s *State, _ *Memory, in *isa.Instr) {
	s.FRegisters[in.Rd] = s.loadRegister(in.Rs1)
}
