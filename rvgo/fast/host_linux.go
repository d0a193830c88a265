//go:build linux

package fast

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

const hostAtFdcwd = unix.AT_FDCWD

func hostErrnoCode(err error) (uint64, bool) {
	var en unix.Errno
	if errors.As(err, &en) {
		return uint64(en), true
	}
	return 0, false
}

// translateNewlibFlags converts newlib open flags to host flags.
func translateNewlibFlags(flags uint64) int {
	var out int
	switch flags & 3 {
	case riscv.NewlibOWronly:
		out = unix.O_WRONLY
	case riscv.NewlibORdwr:
		out = unix.O_RDWR
	default:
		out = unix.O_RDONLY
	}
	for _, f := range []struct {
		newlib uint64
		host   int
	}{
		{riscv.NewlibOAppend, unix.O_APPEND},
		{riscv.NewlibOCreat, unix.O_CREAT},
		{riscv.NewlibOTrunc, unix.O_TRUNC},
		{riscv.NewlibOExcl, unix.O_EXCL},
	} {
		if flags&f.newlib != 0 {
			out |= f.host
		}
	}
	return out | unix.O_CLOEXEC
}

func hostOpenat(dirfd int, path string, flags int, mode uint32) (int, error) {
	return unix.Openat(dirfd, path, flags|unix.O_CLOEXEC, mode)
}

func hostClose(fd int) error {
	return unix.Close(fd)
}

func hostRead(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func hostWrite(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

func hostSeek(fd int, offset int64, whence int) (int64, error) {
	return unix.Seek(fd, offset, whence)
}

func hostDup(fd int) (int, error) {
	return unix.Dup(fd)
}

func hostFcntl(fd int, cmd int, arg int) (int, error) {
	return unix.FcntlInt(uintptr(fd), cmd, arg)
}

func hostUnlinkat(dirfd int, path string, flags int) error {
	return unix.Unlinkat(dirfd, path, flags)
}

func hostFstat(fd int) (*guestStat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, err
	}
	return fromHostStat(&st), nil
}

func hostFstatat(dirfd int, path string, flags int) (*guestStat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, path, &st, flags); err != nil {
		return nil, err
	}
	return fromHostStat(&st), nil
}

// field widths of Stat_t differ per host architecture
func fromHostStat(st *unix.Stat_t) *guestStat {
	return &guestStat{
		Dev:       uint64(st.Dev),
		Ino:       uint64(st.Ino),
		Mode:      uint32(st.Mode),
		Nlink:     uint32(st.Nlink),
		UID:       st.Uid,
		GID:       st.Gid,
		Rdev:      uint64(st.Rdev),
		Size:      int64(st.Size),
		Blksize:   int32(st.Blksize),
		Blocks:    int64(st.Blocks),
		Atime:     int64(st.Atim.Sec),
		AtimeNsec: int64(st.Atim.Nsec),
		Mtime:     int64(st.Mtim.Sec),
		MtimeNsec: int64(st.Mtim.Nsec),
		Ctime:     int64(st.Ctim.Sec),
		CtimeNsec: int64(st.Ctim.Nsec),
	}
}
