package fast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

// SyscallError reports a syscall number the dispatcher does not know.
type SyscallError struct {
	Num uint64
	PC  uint64
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("unknown syscall %d (ecall at pc 0x%x)", e.Num, e.PC)
}

func (e *SyscallError) Unwrap() error {
	return riscv.ErrUnknownSyscall
}

// errno encodes a Linux error return: the negated error number.
func errno(e uint64) uint64 {
	return -e
}

// hostErrno maps a failed host call to the guest error return.
func hostErrno(err error) uint64 {
	var own hostErrnoValue
	if errors.As(err, &own) {
		return errno(uint64(own))
	}
	if code, ok := hostErrnoCode(err); ok {
		return errno(code)
	}
	return errno(riscv.EIO)
}

const maxPathLen = 4096

// read and write move at most this many bytes per call; guests see a short transfer
const maxIOChunk = 1 << 20

// the only process, and its only thread
const processID = 1

// HandleSyscall services the ECALL the guest just stopped at. The number is read from a7,
// arguments from a0..a5, and the result is written to a0. Exit and exit_group only mark
// the machine as exited and leave the registers untouched.
func (m *Machine) HandleSyscall() error {
	s := m.State
	num := s.loadRegister(riscv.RegA7)
	var args [6]uint64
	for i := range args {
		args[i] = s.loadRegister(uint8(riscv.RegA0 + i))
	}
	ret, err := m.syscall(num, args)
	if err != nil {
		return err
	}
	if m.Logger != nil {
		m.Logger.Trace("syscall", "num", num, "a0", args[0], "a1", args[1], "a2", args[2], "ret", ret)
	}
	if m.Exited {
		return nil
	}
	s.writeRegister(riscv.RegA0, ret)
	return nil
}

func (m *Machine) syscall(num uint64, a [6]uint64) (uint64, error) {
	switch num {
	case riscv.SysExit, riscv.SysExitGroup: // no threads, so exit ends the process
		m.Exited = true
		m.ExitCode = a[0]
		return 0, nil
	case riscv.SysRead:
		return m.sysRead(a[0], a[1], a[2])
	case riscv.SysWrite:
		return m.sysWrite(a[0], a[1], a[2])
	case riscv.SysWritev:
		var total uint64
		for i := uint64(0); i < a[2]; i++ {
			base := m.Memory.Load(a[1]+i*16, 8)
			length := m.Memory.Load(a[1]+i*16+8, 8)
			n, err := m.sysWrite(a[0], base, length)
			if err != nil {
				return 0, err
			}
			if int64(n) < 0 {
				if total > 0 {
					return total, nil
				}
				return n, nil
			}
			total += n
		}
		return total, nil
	case riscv.SysOpenat:
		return m.sysOpenat(a[0], a[1], a[2], a[3]), nil
	case riscv.SysOpen:
		return m.sysOpenat(uint64(riscv.AtFdcwd & 0xffff_ffff), a[0], a[1], a[2]), nil
	case riscv.SysClose:
		return m.sysClose(a[0]), nil
	case riscv.SysLseek:
		f, ok := m.files[a[0]]
		if !ok {
			if a[0] <= riscv.FdStderr {
				return errno(riscv.ESPIPE), nil
			}
			return errno(riscv.EBADF), nil
		}
		off, err := hostSeek(f.fd, int64(a[1]), int(a[2]))
		if err != nil {
			return hostErrno(err), nil
		}
		return uint64(off), nil
	case riscv.SysFstat:
		st, err := m.fstat(a[0])
		if err != nil {
			return hostErrno(err), nil
		}
		m.Memory.SetUnaligned(a[1], st.encode())
		return 0, nil
	case riscv.SysFstatat:
		path, err := m.Memory.ReadCString(a[1], maxPathLen)
		if err != nil {
			return errno(riscv.EFAULT), nil
		}
		dirfd, ok := m.hostDirFd(a[0])
		if !ok {
			return errno(riscv.EBADF), nil
		}
		st, err := hostFstatat(dirfd, path, int(a[3]))
		if err != nil {
			return hostErrno(err), nil
		}
		m.Memory.SetUnaligned(a[2], st.encode())
		return 0, nil
	case riscv.SysUnlinkat:
		path, err := m.Memory.ReadCString(a[1], maxPathLen)
		if err != nil {
			return errno(riscv.EFAULT), nil
		}
		dirfd, ok := m.hostDirFd(a[0])
		if !ok {
			return errno(riscv.EBADF), nil
		}
		if err := hostUnlinkat(dirfd, path, int(a[2])); err != nil {
			return hostErrno(err), nil
		}
		return 0, nil
	case riscv.SysReadlinkat: // no /proc, nothing to resolve
		return errno(riscv.ENOENT), nil
	case riscv.SysGetcwd:
		wd, err := os.Getwd()
		if err != nil {
			return hostErrno(err), nil
		}
		if uint64(len(wd))+1 > a[1] {
			return errno(riscv.ERANGE), nil
		}
		m.Memory.SetUnaligned(a[0], append([]byte(wd), 0))
		return uint64(len(wd)) + 1, nil
	case riscv.SysDup:
		f, ok := m.files[a[0]]
		if !ok {
			return errno(riscv.EBADF), nil
		}
		fd, err := hostDup(f.fd)
		if err != nil {
			return hostErrno(err), nil
		}
		return m.addFile(fd), nil
	case riscv.SysFcntl:
		return m.sysFcntl(a[0], a[1], a[2]), nil
	case riscv.SysIoctl: // no terminal emulation
		return errno(riscv.ENOTTY), nil
	case riscv.SysBrk:
		// brk(0) and out-of-range requests report the current break
		if a[0] >= m.BrkBase && a[0] < StackTop-m.StackSize {
			m.Brk = a[0]
		}
		return m.Brk, nil
	case riscv.SysMmap:
		return m.sysMmap(a[0], a[1], a[3]), nil
	case riscv.SysMunmap, riscv.SysMprotect, riscv.SysMadvise: // memory is never returned or protected
		return 0, nil
	case riscv.SysGettimeofday:
		now := m.now()
		if a[0] != 0 {
			m.Memory.Store(a[0], 8, uint64(now.Unix()))
			m.Memory.Store(a[0]+8, 8, uint64(now.Nanosecond()/1000))
		}
		if a[1] != 0 { // timezone: UTC, no DST
			m.Memory.Store(a[1], 8, 0)
		}
		return 0, nil
	case riscv.SysClockGettime:
		now := m.now()
		m.Memory.Store(a[1], 8, uint64(now.Unix()))
		m.Memory.Store(a[1]+8, 8, uint64(now.Nanosecond()))
		return 0, nil
	case riscv.SysGetpid, riscv.SysGettid, riscv.SysSetTidAddress:
		return processID, nil
	case riscv.SysGetuid, riscv.SysGeteuid, riscv.SysGetgid, riscv.SysGetegid:
		return 0, nil
	case riscv.SysUname:
		m.Memory.SetUnaligned(a[0], utsname())
		return 0, nil
	case riscv.SysSetRobustList, riscv.SysRtSigaction, riscv.SysRtSigprocmask, riscv.SysSigaltstack:
		// signals are never delivered
		return 0, nil
	case riscv.SysGetrlimit:
		m.writeRlimit(a[0], a[1])
		return 0, nil
	case riscv.SysPrlimit64:
		if a[3] != 0 {
			m.writeRlimit(a[1], a[3])
		}
		return 0, nil
	case riscv.SysGetrandom:
		m.fillRandom(a[0], a[1])
		return a[1], nil
	}
	return 0, &SyscallError{Num: num, PC: m.State.PC - 4}
}

func (m *Machine) sysRead(fd, addr, count uint64) (uint64, error) {
	buf := make([]byte, min(count, maxIOChunk))
	if fd == riscv.FdStdin {
		if m.Stdin == nil {
			return 0, nil
		}
		n, err := m.Stdin.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return hostErrno(err), nil
		}
		m.Memory.SetUnaligned(addr, buf[:n])
		return uint64(n), nil
	}
	f, ok := m.files[fd]
	if !ok {
		return errno(riscv.EBADF), nil
	}
	n, err := hostRead(f.fd, buf)
	if err != nil {
		return hostErrno(err), nil
	}
	m.Memory.SetUnaligned(addr, buf[:n])
	return uint64(n), nil
}

func (m *Machine) sysWrite(fd, addr, count uint64) (uint64, error) {
	count = min(count, maxIOChunk)
	var w io.Writer
	switch fd {
	case riscv.FdStdout:
		w = m.Stdout
	case riscv.FdStderr:
		w = m.Stderr
	default:
		f, ok := m.files[fd]
		if !ok {
			return errno(riscv.EBADF), nil
		}
		buf := make([]byte, count)
		m.Memory.GetUnaligned(addr, buf)
		n, err := hostWrite(f.fd, buf)
		if err != nil {
			return hostErrno(err), nil
		}
		return uint64(n), nil
	}
	if w == nil {
		return count, nil
	}
	if _, err := io.Copy(w, m.Memory.ReadMemoryRange(addr, count)); err != nil {
		return 0, fmt.Errorf("guest fd %d writing err: %w", fd, err)
	}
	return count, nil // write completes fully in a single step
}

func (m *Machine) sysOpenat(dirfd, pathAddr, flags, mode uint64) uint64 {
	path, err := m.Memory.ReadCString(pathAddr, maxPathLen)
	if err != nil {
		return errno(riscv.EFAULT)
	}
	hostDir, ok := m.hostDirFd(dirfd)
	if !ok {
		return errno(riscv.EBADF)
	}
	hostFlags := int(flags)
	if !m.LinuxOpenFlags {
		hostFlags = translateNewlibFlags(flags)
	}
	fd, err := hostOpenat(hostDir, path, hostFlags, uint32(mode))
	if err != nil {
		return hostErrno(err)
	}
	return m.addFile(fd)
}

func (m *Machine) sysClose(fd uint64) uint64 {
	if fd <= riscv.FdStderr {
		return 0 // the emulator keeps its own stdio open
	}
	f, ok := m.files[fd]
	if !ok {
		return errno(riscv.EBADF)
	}
	delete(m.files, fd)
	if err := hostClose(f.fd); err != nil {
		return hostErrno(err)
	}
	return 0
}

func (m *Machine) sysFcntl(fd, cmd, arg uint64) uint64 {
	if fd <= riscv.FdStderr {
		switch cmd {
		case riscv.FGetfl:
			if fd == riscv.FdStdin {
				return 0 // O_RDONLY
			}
			return 1 // O_WRONLY
		case riscv.FGetfd, riscv.FSetfd, riscv.FSetfl:
			return 0
		}
		return errno(riscv.EINVAL)
	}
	f, ok := m.files[fd]
	if !ok {
		return errno(riscv.EBADF)
	}
	switch cmd {
	case riscv.FGetfd, riscv.FSetfd, riscv.FGetfl, riscv.FSetfl:
		v, err := hostFcntl(f.fd, int(cmd), int(arg))
		if err != nil {
			return hostErrno(err)
		}
		return uint64(v)
	}
	return errno(riscv.EINVAL)
}

// sysMmap hands out anonymous memory. Without a hint the region comes from the page-aligned
// heap cursor; a hinted address is accepted as is, since pages are allocated on demand.
func (m *Machine) sysMmap(addr, length, flags uint64) uint64 {
	if flags&riscv.MapAnonymous == 0 {
		return errno(riscv.EINVAL)
	}
	if length == 0 {
		return errno(riscv.EINVAL)
	}
	if addr != 0 {
		return addr
	}
	out := m.Heap
	m.Heap += alignUp(length, PageSize)
	return out
}

func (m *Machine) writeRlimit(resource, addr uint64) {
	soft, hard := riscv.RlimInfinity, riscv.RlimInfinity
	switch resource {
	case riscv.RlimitNofile:
		soft, hard = 1024, 1024
	case riscv.RlimitStack:
		soft = m.StackSize
	}
	m.Memory.Store(addr, 8, soft)
	m.Memory.Store(addr+8, 8, hard)
}

// fillRandom writes a keccak256 stream derived from the retired instruction count,
// so replaying a run yields the same bytes.
func (m *Machine) fillRandom(addr, length uint64) {
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], m.State.Step)
	for off := uint64(0); off < length; off += 32 {
		binary.BigEndian.PutUint64(seed[8:], off)
		chunk := crypto.Keccak256(seed[:])
		if rest := length - off; rest < 32 {
			chunk = chunk[:rest]
		}
		m.Memory.SetUnaligned(addr+off, chunk)
	}
}

func utsname() []byte {
	const fieldLen = 65
	fields := []string{"Linux", "rvemu", "6.1.0", "#1", "riscv64", ""}
	out := make([]byte, fieldLen*len(fields))
	for i, f := range fields {
		copy(out[i*fieldLen:], f)
	}
	return out
}

type hostFile struct {
	fd int
}

func (m *Machine) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock()
}

func (m *Machine) addFile(hostFd int) uint64 {
	if m.files == nil {
		m.files = make(map[uint64]*hostFile)
		m.nextFd = riscv.FdStderr + 1
	}
	fd := m.nextFd
	m.nextFd++
	m.files[fd] = &hostFile{fd: hostFd}
	return fd
}

// hostDirFd resolves the dirfd argument of the *at syscalls.
func (m *Machine) hostDirFd(dirfd uint64) (int, bool) {
	if int32(dirfd) == riscv.AtFdcwd {
		return hostAtFdcwd, true
	}
	f, ok := m.files[dirfd]
	if !ok {
		return 0, false
	}
	return f.fd, true
}

// CloseFiles releases every host file the guest left open.
func (m *Machine) CloseFiles() error {
	var errs []error
	for fd, f := range m.files {
		if err := hostClose(f.fd); err != nil {
			errs = append(errs, fmt.Errorf("guest fd %d: %w", fd, err))
		}
		delete(m.files, fd)
	}
	return errors.Join(errs...)
}

func (m *Machine) fstat(fd uint64) (*guestStat, error) {
	if fd <= riscv.FdStderr {
		var stream any
		switch fd {
		case riscv.FdStdin:
			stream = m.Stdin
		case riscv.FdStdout:
			stream = m.Stdout
		default:
			stream = m.Stderr
		}
		if f, ok := stream.(*os.File); ok {
			return hostFstat(int(f.Fd()))
		}
		// a character device, like a terminal
		return &guestStat{Mode: 0o020620, Nlink: 1, Blksize: 1024}, nil
	}
	f, ok := m.files[fd]
	if !ok {
		return nil, hostErrnoValue(riscv.EBADF)
	}
	return hostFstat(f.fd)
}

// hostErrnoValue is an errno produced by the dispatcher itself.
type hostErrnoValue uint64

func (e hostErrnoValue) Error() string {
	return fmt.Sprintf("errno %d", uint64(e))
}

// guestStat is the RV64 Linux struct stat (asm-generic layout, 128 bytes).
type guestStat struct {
	Dev       uint64
	Ino       uint64
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint64
	Size      int64
	Blksize   int32
	Blocks    int64
	Atime     int64
	AtimeNsec int64
	Mtime     int64
	MtimeNsec int64
	Ctime     int64
	CtimeNsec int64
}

func (st *guestStat) encode() []byte {
	out := make([]byte, 0, 128)
	out = binary.LittleEndian.AppendUint64(out, st.Dev)
	out = binary.LittleEndian.AppendUint64(out, st.Ino)
	out = binary.LittleEndian.AppendUint32(out, st.Mode)
	out = binary.LittleEndian.AppendUint32(out, st.Nlink)
	out = binary.LittleEndian.AppendUint32(out, st.UID)
	out = binary.LittleEndian.AppendUint32(out, st.GID)
	out = binary.LittleEndian.AppendUint64(out, st.Rdev)
	out = binary.LittleEndian.AppendUint64(out, 0)
	out = binary.LittleEndian.AppendUint64(out, uint64(st.Size))
	out = binary.LittleEndian.AppendUint32(out, uint32(st.Blksize))
	out = binary.LittleEndian.AppendUint32(out, 0)
	for _, v := range []int64{st.Blocks, st.Atime, st.AtimeNsec, st.Mtime, st.MtimeNsec, st.Ctime, st.CtimeNsec} {
		out = binary.LittleEndian.AppendUint64(out, uint64(v))
	}
	return append(out, make([]byte, 8)...)
}
