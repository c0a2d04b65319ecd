//go:build linux

package native

import (
	"unsafe"

	"github.com/johnsiilver/unixsock/addr"
	"golang.org/x/sys/unix"
)

func accept(fd int, rec *addr.Record, l *uint32) (int, error) {
	r, _, e := unix.Syscall6(unix.SYS_ACCEPT4, uintptr(fd), uintptr(unsafe.Pointer(rec)), uintptr(unsafe.Pointer(l)), unix.SOCK_CLOEXEC, 0, 0)
	if e != 0 {
		return -1, e
	}
	return int(r), nil
}
