/*
Package native is the system call binding under the channel package.

Binding is everything the channels need from the OS. Addresses cross it as raw addr.Record
buffers, so the encoding done by the addr package is what the kernel actually sees. Every
failure is returned as a sockerr.ErrNativeCall holding the errno.

Read, Write, Sendto, Recvfrom and Poll retry EINTR. Connect does not, as a retried connect() has
different semantics.

Unix is the real binding. Mock is a scriptable Binding for tests that need to control what the
kernel says (for example a connect() that would block) or check that no call was made.
*/
package native

import (
	"github.com/johnsiilver/unixsock/addr"
	"golang.org/x/sys/unix"
)

// Shutdown modes for Binding.Shutdown.
const (
	ShutRead  = 0
	ShutWrite = 1
	ShutBoth  = 2
)

// Binding is the set of system calls a channel uses. All fds are AF_UNIX sockets.
type Binding interface {
	// Socket creates an AF_UNIX socket of sotype (SOCK_STREAM, SOCK_DGRAM) with close-on-exec set.
	Socket(sotype int) (int, error)
	// Socketpair creates a connected pair of AF_UNIX sockets of sotype.
	Socketpair(sotype int) ([2]int, error)
	// Bind binds fd to the first n bytes of rec.
	Bind(fd int, rec *addr.Record, n int) error
	// Listen marks fd as accepting connections.
	Listen(fd, backlog int) error
	// Accept accepts a connection on fd, writing the peer address to rec. It returns the new fd
	// and the address length the kernel reported.
	Accept(fd int, rec *addr.Record) (nfd int, n int, err error)
	// Connect connects fd to the first n bytes of rec.
	Connect(fd int, rec *addr.Record, n int) error
	// Getsockname writes the local address of fd to rec and returns the reported length.
	Getsockname(fd int, rec *addr.Record) (int, error)
	// Getpeername writes the remote address of fd to rec and returns the reported length.
	Getpeername(fd int, rec *addr.Record) (int, error)

	// Read reads from fd. It returns 0, nil at end of stream.
	Read(fd int, b []byte) (int, error)
	// Write writes to fd.
	Write(fd int, b []byte) (int, error)
	// Sendto sends b to the first n bytes of rec. A nil rec sends to the connected peer.
	Sendto(fd int, b []byte, rec *addr.Record, n int) (int, error)
	// Recvfrom receives into b, writing the source address to rec. It returns the bytes read and
	// the reported address length.
	Recvfrom(fd int, b []byte, rec *addr.Record) (int, int, error)

	GetsockoptInt(fd, level, opt int) (int, error)
	// GetsockoptBytes reads an option into buf and returns the length the kernel wrote.
	GetsockoptBytes(fd, level, opt int, buf []byte) (int, error)
	SetsockoptInt(fd, level, opt, value int) error
	SetsockoptBytes(fd, level, opt int, buf []byte) error

	// SetBlocking sets or clears O_NONBLOCK.
	SetBlocking(fd int, blocking bool) error
	// Blocking reports if O_NONBLOCK is clear.
	Blocking(fd int) (bool, error)
	// Shutdown shuts down part of a full duplex connection. how is ShutRead, ShutWrite or ShutBoth.
	Shutdown(fd, how int) error
	// Close releases fd.
	Close(fd int) error

	// Pipe returns the read and write ends of a non-blocking, close-on-exec pipe.
	Pipe() (r, w int, err error)
	// Poll waits up to timeout milliseconds for the events in fds and fills in Revents. A
	// negative timeout waits forever.
	Poll(fds []unix.PollFd, timeout int) (int, error)
}
