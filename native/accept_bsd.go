//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package native

import (
	"syscall"
	"unsafe"

	"github.com/johnsiilver/unixsock/addr"
	"golang.org/x/sys/unix"
)

func accept(fd int, rec *addr.Record, l *uint32) (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	r, _, e := unix.Syscall(unix.SYS_ACCEPT, uintptr(fd), uintptr(unsafe.Pointer(rec)), uintptr(unsafe.Pointer(l)))
	if e != 0 {
		return -1, e
	}
	unix.CloseOnExec(int(r))
	return int(r), nil
}
