package riscv

import "errors"

// Fatal conditions of the emulator. Each is wrapped by a typed error carrying context.
var (
	ErrInvalidELF          = errors.New("invalid ELF")
	ErrIllegalInstruction  = errors.New("illegal instruction")
	ErrUnimplemented       = errors.New("unimplemented instruction")
	ErrUnknownSyscall      = errors.New("unknown syscall")
	ErrStepLimit           = errors.New("instruction step limit reached")
	ErrMisalignedAtomic    = errors.New("misaligned atomic memory access")
	ErrUnsupportedMemWidth = errors.New("unsupported memory access width")
)
