//go:build !linux

package fast

import (
	"github.com/rvemu/rvemu/rvgo/riscv"
)

// Host file access is only wired on Linux; elsewhere the file syscalls fail with ENOSYS.

const hostAtFdcwd = -100

var errNoHostFiles = hostErrnoValue(riscv.ENOSYS)

func hostErrnoCode(error) (uint64, bool) { return 0, false }

func translateNewlibFlags(flags uint64) int { return int(flags) }

func hostOpenat(int, string, int, uint32) (int, error) { return -1, errNoHostFiles }
func hostClose(int) error                               { return errNoHostFiles }
func hostRead(int, []byte) (int, error)                 { return 0, errNoHostFiles }
func hostWrite(int, []byte) (int, error)                { return 0, errNoHostFiles }
func hostSeek(int, int64, int) (int64, error)           { return 0, errNoHostFiles }
func hostDup(int) (int, error)                          { return -1, errNoHostFiles }
func hostFcntl(int, int, int) (int, error)              { return 0, errNoHostFiles }
func hostUnlinkat(int, string, int) error               { return errNoHostFiles }
func hostFstat(int) (*guestStat, error)                 { return nil, errNoHostFiles }
func hostFstatat(int, string, int) (*guestStat, error)  { return nil, errNoHostFiles }
