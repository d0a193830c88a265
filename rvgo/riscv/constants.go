package riscv

// Integer register ABI indices.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegGP   = 3
	RegTP   = 4
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA3   = 13
	RegA4   = 14
	RegA5   = 15
	RegA6   = 16
	RegA7   = 17
)

// Linux RV64 syscall numbers (asm-generic table), plus the newlib "old" numbers above 1024.
const (
	SysGetcwd        = 17
	SysDup           = 23
	SysFcntl         = 25
	SysIoctl         = 29
	SysUnlinkat      = 35
	SysOpenat        = 56
	SysClose         = 57
	SysLseek         = 62
	SysRead          = 63
	SysWrite         = 64
	SysWritev        = 66
	SysReadlinkat    = 78
	SysFstatat       = 79
	SysFstat         = 80
	SysExit          = 93
	SysExitGroup     = 94
	SysSetTidAddress = 96
	SysSetRobustList = 99
	SysClockGettime  = 113
	SysSigaltstack   = 132
	SysRtSigaction   = 134
	SysRtSigprocmask = 135
	SysUname         = 160
	SysGetrlimit     = 163
	SysGettimeofday  = 169
	SysGetpid        = 172
	SysGetuid        = 174
	SysGeteuid       = 175
	SysGetgid        = 176
	SysGetegid       = 177
	SysGettid        = 178
	SysBrk           = 214
	SysMunmap        = 215
	SysMmap          = 222
	SysMprotect      = 226
	SysMadvise       = 233
	SysPrlimit64     = 261
	SysGetrandom     = 278

	SysOpen = 1024
)

const (
	FdStdin  = 0
	FdStdout = 1
	FdStderr = 2
)

// errno values, returned negated in a0.
const (
	EPERM  = 1
	ENOENT = 2
	EIO    = 5
	EBADF  = 9
	ENOMEM = 12
	EACCES = 13
	EFAULT = 14
	EINVAL = 22
	ENOTTY = 25
	ESPIPE = 29
	ERANGE = 34
	ENOSYS = 38
)

// Newlib open(2) flags, as emitted by riscv64-unknown-elf toolchains.
const (
	NewlibORdonly = 0x0
	NewlibOWronly = 0x1
	NewlibORdwr   = 0x2
	NewlibOAppend = 0x8
	NewlibOCreat  = 0x200
	NewlibOTrunc  = 0x400
	NewlibOExcl   = 0x800
)

// CSR addresses.
const (
	CSRFflags = 0x001
	CSRFrm    = 0x002
	CSRFcsr   = 0x003

	CSRCycle   = 0xc00
	CSRTime    = 0xc01
	CSRInstret = 0xc02

	CSRSstatus  = 0x100
	CSRSie      = 0x104
	CSRStvec    = 0x105
	CSRSscratch = 0x140
	CSRSepc     = 0x141
	CSRScause   = 0x142
	CSRStval    = 0x143
	CSRSip      = 0x144
	CSRSatp     = 0x180

	CSRMstatus  = 0x300
	CSRMisa     = 0x301
	CSRMedeleg  = 0x302
	CSRMideleg  = 0x303
	CSRMie      = 0x304
	CSRMtvec    = 0x305
	CSRMscratch = 0x340
	CSRMepc     = 0x341
	CSRMcause   = 0x342
	CSRMtval    = 0x343
	CSRMip      = 0x344

	CSRMvendorid = 0xf11
	CSRMarchid   = 0xf12
	CSRMimpid    = 0xf13
	CSRMhartid   = 0xf14

	CSRCount = 4096
)

// fflags exception bits.
const (
	FflagNX = 1 << 0 // inexact
	FflagUF = 1 << 1 // underflow
	FflagOF = 1 << 2 // overflow
	FflagDZ = 1 << 3 // divide by zero
	FflagNV = 1 << 4 // invalid operation
)

// Floating-point rounding modes (instruction rm field and frm CSR).
const (
	RoundNearestEven = 0
	RoundTowardZero  = 1
	RoundDown        = 2
	RoundUp          = 3
	RoundNearestMax  = 4
	RoundDynamic     = 7
)

// ELF auxiliary vector keys placed on the initial stack.
const (
	AtNull   = 0
	AtPagesz = 6
	AtRandom = 25
)

// Linux ABI values the syscall layer interprets.
const (
	AtFdcwd = -100

	MapAnonymous = 0x20
	MapFixed     = 0x10

	RlimitStack  = 3
	RlimitNofile = 7
	RlimInfinity = ^uint64(0)

	FGetfd = 1
	FSetfd = 2
	FGetfl = 3
	FSetfl = 4
)
