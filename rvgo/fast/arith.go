package fast

import "github.com/holiman/uint256"

// 64-bit integer helpers with RISC-V semantics.
// Shift helpers take the shift amount first, matching the operand order of the handlers.

func u32Mask() uint64 {
	return 0xFFFF_FFFF
}

func mask32Signed64(v uint64) uint64 {
	return signExtend64(and64(v, u32Mask()), 31)
}

// signExtend64 extends v from the given bit position upward.
func signExtend64(v uint64, bit uint64) uint64 {
	switch and64(v, shl64(bit, 1)) {
	case 0:
		// fill with zeroes, by masking
		return and64(v, shr64(sub64(63, bit), ^uint64(0)))
	default:
		// fill with ones, by or-ing
		return or64(v, shl64(bit, shr64(bit, ^uint64(0))))
	}
}

func add64(x, y uint64) uint64 { return x + y }
func sub64(x, y uint64) uint64 { return x - y }
func mul64(x, y uint64) uint64 { return x * y }

// div64 returns all ones on a zero divisor.
func div64(x, y uint64) uint64 {
	if y == 0 {
		return ^uint64(0)
	}
	return x / y
}

// sdiv64 returns -1 on a zero divisor and the dividend on signed overflow.
func sdiv64(x, y uint64) uint64 {
	if y == 0 {
		return ^uint64(0)
	}
	if x == uint64(1<<63) && y == ^uint64(0) {
		return 1 << 63
	}
	return uint64(int64(x) / int64(y))
}

// mod64 returns the dividend on a zero divisor.
func mod64(x, y uint64) uint64 {
	if y == 0 {
		return x
	}
	return x % y
}

func smod64(x, y uint64) uint64 {
	if y == 0 {
		return x
	}
	if x == uint64(1<<63) && y == ^uint64(0) {
		return 0
	}
	return uint64(int64(x) % int64(y))
}

func not64(x uint64) uint64 { return ^x }

func lt64(x, y uint64) uint64 {
	if x < y {
		return 1
	}
	return 0
}

func slt64(x, y uint64) uint64 {
	if int64(x) < int64(y) {
		return 1
	}
	return 0
}

func and64(x, y uint64) uint64 { return x & y }
func or64(x, y uint64) uint64  { return x | y }
func xor64(x, y uint64) uint64 { return x ^ y }

func shl64(x, y uint64) uint64 { return y << (x & 63) }
func shr64(x, y uint64) uint64 { return y >> (x & 63) }
func sar64(x, y uint64) uint64 { return uint64(int64(y) >> (x & 63)) }

func signExtend64To256(v uint64) uint256.Int {
	out := new(uint256.Int).SetUint64(v)
	if v&(1<<63) != 0 {
		hi := new(uint256.Int).Not(new(uint256.Int))
		hi.Lsh(hi, 64)
		out.Or(out, hi)
	}
	return *out
}

// mulHigh returns the upper 64 bits of the 128-bit product. signedX and signedY select
// whether each operand is sign-extended before multiplying.
func mulHigh(x, y uint64, signedX, signedY bool) uint64 {
	a := *new(uint256.Int).SetUint64(x)
	if signedX {
		a = signExtend64To256(x)
	}
	b := *new(uint256.Int).SetUint64(y)
	if signedY {
		b = signExtend64To256(y)
	}
	var p uint256.Int
	p.Mul(&a, &b)
	return p.Rsh(&p, 64).Uint64()
}
