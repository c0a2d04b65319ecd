//go:build linux

package cred

import (
	"golang.org/x/sys/unix"
)

// fetch reads SO_PEERCRED, which the kernel fills in at connect(), accept() or socketpair().
// Ref: https://man7.org/linux/man-pages/man7/unix.7.html
func fetch(n Native, fd int) (Cred, error) {
	buf := make([]byte, RecordSize)
	l, err := n.GetsockoptBytes(fd, unix.SOL_SOCKET, unix.SO_PEERCRED, buf)
	if err != nil {
		return Cred{}, unsupported(err)
	}
	c, err := DecodeRecord(buf[:l])
	if err != nil {
		return Cred{}, err
	}
	if c.PID == 0 {
		return Cred{}, noPeer(fd)
	}
	return c, nil
}
