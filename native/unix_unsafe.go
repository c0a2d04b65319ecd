//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package native

import (
	"syscall"
	"unsafe"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/sockerr"
	"golang.org/x/sys/unix"
)

// Unix is the Binding for the running kernel.
type Unix struct{}

// NewUnix returns the Binding for the running kernel.
func NewUnix() Unix {
	return Unix{}
}

func errnoErr(e unix.Errno) error {
	if e == 0 {
		return nil
	}
	return e
}

// Socket implements Binding.Socket().
func (Unix) Socket(sotype int) (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	fd, err := unix.Socket(unix.AF_UNIX, sotype, 0)
	if err != nil {
		return -1, sockerr.Native("socket", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// Socketpair implements Binding.Socketpair().
func (Unix) Socketpair(sotype int) ([2]int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	fds, err := unix.Socketpair(unix.AF_UNIX, sotype, 0)
	if err != nil {
		return [2]int{-1, -1}, sockerr.Native("socketpair", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return fds, nil
}

// Bind implements Binding.Bind().
func (Unix) Bind(fd int, rec *addr.Record, n int) error {
	_, _, e := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(rec)), uintptr(n))
	return sockerr.Native("bind", errnoErr(e))
}

// Listen implements Binding.Listen().
func (Unix) Listen(fd, backlog int) error {
	return sockerr.Native("listen", unix.Listen(fd, backlog))
}

// Accept implements Binding.Accept().
func (Unix) Accept(fd int, rec *addr.Record) (int, int, error) {
	l := uint32(addr.RecordSize)
	nfd, err := accept(fd, rec, &l)
	if err != nil {
		return -1, 0, sockerr.Native("accept", err)
	}
	return nfd, int(l), nil
}

// Connect implements Binding.Connect().
func (Unix) Connect(fd int, rec *addr.Record, n int) error {
	_, _, e := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(rec)), uintptr(n))
	return sockerr.Native("connect", errnoErr(e))
}

// Getsockname implements Binding.Getsockname().
func (Unix) Getsockname(fd int, rec *addr.Record) (int, error) {
	l := uint32(addr.RecordSize)
	_, _, e := unix.RawSyscall(unix.SYS_GETSOCKNAME, uintptr(fd), uintptr(unsafe.Pointer(rec)), uintptr(unsafe.Pointer(&l)))
	if e != 0 {
		return 0, sockerr.Native("getsockname", e)
	}
	return int(l), nil
}

// Getpeername implements Binding.Getpeername().
func (Unix) Getpeername(fd int, rec *addr.Record) (int, error) {
	l := uint32(addr.RecordSize)
	_, _, e := unix.RawSyscall(unix.SYS_GETPEERNAME, uintptr(fd), uintptr(unsafe.Pointer(rec)), uintptr(unsafe.Pointer(&l)))
	if e != 0 {
		return 0, sockerr.Native("getpeername", e)
	}
	return int(l), nil
}

// Read implements Binding.Read().
func (Unix) Read(fd int, b []byte) (int, error) {
	for {
		n, err := unix.Read(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, sockerr.Native("read", err)
		}
		return n, nil
	}
}

// Write implements Binding.Write().
func (Unix) Write(fd int, b []byte) (int, error) {
	for {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, sockerr.Native("write", err)
		}
		return n, nil
	}
}

// Sendto implements Binding.Sendto().
func (Unix) Sendto(fd int, b []byte, rec *addr.Record, n int) (int, error) {
	var p unsafe.Pointer
	if len(b) > 0 {
		p = unsafe.Pointer(&b[0])
	}
	var to unsafe.Pointer
	if rec == nil {
		n = 0
	} else {
		to = unsafe.Pointer(rec)
	}
	for {
		r, _, e := unix.Syscall6(unix.SYS_SENDTO, uintptr(fd), uintptr(p), uintptr(len(b)), 0, uintptr(to), uintptr(n))
		if e == unix.EINTR {
			continue
		}
		if e != 0 {
			return 0, sockerr.Native("sendto", e)
		}
		return int(r), nil
	}
}

// Recvfrom implements Binding.Recvfrom().
func (Unix) Recvfrom(fd int, b []byte, rec *addr.Record) (int, int, error) {
	var p unsafe.Pointer
	if len(b) > 0 {
		p = unsafe.Pointer(&b[0])
	}
	for {
		l := uint32(addr.RecordSize)
		r, _, e := unix.Syscall6(unix.SYS_RECVFROM, uintptr(fd), uintptr(p), uintptr(len(b)), 0, uintptr(unsafe.Pointer(rec)), uintptr(unsafe.Pointer(&l)))
		if e == unix.EINTR {
			continue
		}
		if e != 0 {
			return 0, 0, sockerr.Native("recvfrom", e)
		}
		return int(r), int(l), nil
	}
}

// GetsockoptInt implements Binding.GetsockoptInt().
func (Unix) GetsockoptInt(fd, level, opt int) (int, error) {
	v, err := unix.GetsockoptInt(fd, level, opt)
	if err != nil {
		return 0, sockerr.Native("getsockopt", err)
	}
	return v, nil
}

// GetsockoptBytes implements Binding.GetsockoptBytes().
func (Unix) GetsockoptBytes(fd, level, opt int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	l := uint32(len(buf))
	_, _, e := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt), uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&l)), 0)
	if e != 0 {
		return 0, sockerr.Native("getsockopt", e)
	}
	return int(l), nil
}

// SetsockoptInt implements Binding.SetsockoptInt().
func (Unix) SetsockoptInt(fd, level, opt, value int) error {
	return sockerr.Native("setsockopt", unix.SetsockoptInt(fd, level, opt, value))
}

// SetsockoptBytes implements Binding.SetsockoptBytes().
func (Unix) SetsockoptBytes(fd, level, opt int, buf []byte) error {
	return sockerr.Native("setsockopt", unix.SetsockoptString(fd, level, opt, string(buf)))
}

// SetBlocking implements Binding.SetBlocking().
func (Unix) SetBlocking(fd int, blocking bool) error {
	return sockerr.Native("fcntl", unix.SetNonblock(fd, !blocking))
}

// Blocking implements Binding.Blocking().
func (Unix) Blocking(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, sockerr.Native("fcntl", err)
	}
	return flags&unix.O_NONBLOCK == 0, nil
}

// Shutdown implements Binding.Shutdown().
func (Unix) Shutdown(fd, how int) error {
	var h int
	switch how {
	case ShutRead:
		h = unix.SHUT_RD
	case ShutWrite:
		h = unix.SHUT_WR
	default:
		h = unix.SHUT_RDWR
	}
	return sockerr.Native("shutdown", unix.Shutdown(fd, h))
}

// Close implements Binding.Close().
func (Unix) Close(fd int) error {
	return sockerr.Native("close", unix.Close(fd))
}

// Pipe implements Binding.Pipe().
func (Unix) Pipe() (int, int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, sockerr.Native("pipe", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return -1, -1, sockerr.Native("fcntl", err)
		}
	}
	return p[0], p[1], nil
}

// Poll implements Binding.Poll().
func (Unix) Poll(fds []unix.PollFd, timeout int) (int, error) {
	for {
		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, sockerr.Native("poll", err)
		}
		return n, nil
	}
}
