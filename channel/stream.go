package channel

import (
	"io"
	"net"
	"time"

	log "github.com/golang/glog"
	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/native"
	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/johnsiilver/unixsock/sockopt"
	"github.com/johnsiilver/unixsock/statemachine"
	"golang.org/x/sys/unix"
)

// ShutdownHow says which directions Stream.Shutdown() closes.
type ShutdownHow int

const (
	// ShutdownRead stops further reads.
	ShutdownRead ShutdownHow = native.ShutRead
	// ShutdownWrite stops further writes. The peer reads io.EOF.
	ShutdownWrite ShutdownHow = native.ShutWrite
	// ShutdownBoth stops both.
	ShutdownBoth ShutdownHow = native.ShutBoth
)

// Stream is a SOCK_STREAM channel. It implements io.ReadWriteCloser.
type Stream struct {
	*base

	// to is where a pending connect is going. Protected by base.mu.
	to addr.Address
}

func newStream(fd int, start statemachine.State, c config) *Stream {
	return &Stream{base: newBase(fd, "stream", sockopt.Stream, start, c)}
}

// Open creates an unconnected Stream in the IDLE state.
func Open(opts ...Option) (*Stream, error) {
	c := newConfig(opts)
	fd, err := c.binding.Socket(unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	s := newStream(fd, statemachine.Idle, c)
	if err := s.initBlocking(c); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Dial opens a Stream and connects it to a. In non-blocking mode the returned Stream may still be
// CONNECTING; use FinishConnect() to complete it.
func Dial(a addr.Address, opts ...Option) (*Stream, error) {
	s, err := Open(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := s.Connect(a); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Pair returns two Streams connected to each other with socketpair(). Both are CONNECTED and
// bound to the unnamed address.
func Pair(opts ...Option) (*Stream, *Stream, error) {
	c := newConfig(opts)
	fds, err := c.binding.Socketpair(unix.SOCK_STREAM)
	if err != nil {
		return nil, nil, err
	}

	var pair [2]*Stream
	for i, fd := range fds {
		s := newStream(fd, statemachine.Connected, c)
		s.guard.MarkBound()
		pair[i] = s
	}
	for _, s := range pair {
		if err := s.initBlocking(c); err != nil {
			pair[0].Close()
			pair[1].Close()
			return nil, nil, err
		}
	}
	return pair[0], pair[1], nil
}

// FromFD wraps fd, a connected SOCK_STREAM AF_UNIX descriptor. The Stream takes ownership of fd.
func FromFD(fd int, opts ...Option) (*Stream, error) {
	c := newConfig(opts)
	s := newStream(fd, statemachine.Connected, c)
	s.guard.MarkBound()
	if err := s.initBlocking(c); err != nil {
		return nil, err
	}
	return s, nil
}

// Bind binds the Stream to a. The unnamed address asks for an autobind. A Stream can only be bound
// once, and only before it connects.
func (s *Stream) Bind(a addr.Address) error {
	return s.bind(a)
}

// Connect connects to a. It returns true if the connection completed. In non-blocking mode it can
// return false with a nil error, which means the Stream is CONNECTING and FinishConnect() must be
// called once the descriptor is writable.
//
// In blocking mode Connect() waits, in the CONNECTING state, until the connection is made, fails,
// or SO_SNDTIMEO passes. A Close() from another goroutine ends the wait with an
// ErrClosedOrInterrupted.
func (s *Stream) Connect(a addr.Address) (bool, error) {
	if !s.gate.enter() {
		return false, closedErr("connect")
	}
	defer s.gate.leave()

	if _, err := s.sm.Require("connect", statemachine.Idle); err != nil {
		return false, err
	}
	if a.IsUnnamed() {
		return false, sockerr.Errorf(sockerr.ETInvalidAddressType, "cannot connect to the unnamed address")
	}
	rec, n, err := s.plat.Address.Encode(a)
	if err != nil {
		return false, err
	}

	// A blocking connect() is done as a non-blocking one so that the wait can be interrupted.
	blocking := s.Blocking()
	if blocking {
		if err := s.native.SetBlocking(s.fd, false); err != nil {
			return false, err
		}
		defer func() {
			if err := s.native.SetBlocking(s.fd, true); err != nil {
				log.Errorf("stream fd(%d) could not restore blocking mode after connect: %s", s.fd, err)
			}
		}()
	}

	err = s.native.Connect(s.fd, rec, n)
	if err != nil {
		errno, ok := sockerr.Errno(err)
		if !ok || !sockerr.WouldBlock(errno) {
			return false, s.interrupted("connect", err)
		}

		s.mu.Lock()
		s.to = a
		s.mu.Unlock()
		if err := s.sm.Transition(statemachine.Idle, statemachine.Connecting); err != nil {
			return false, err
		}
		log.V(2).Infof("stream fd(%d) connect to %q in progress", s.fd, a.String())
		if !blocking {
			return false, nil
		}

		if err := s.connectWait(rec, n, errno); err != nil {
			if terr := s.sm.Transition(statemachine.Connecting, statemachine.Idle); terr != nil {
				log.V(2).Infof("stream fd(%d): %s", s.fd, terr)
			}
			return false, s.interrupted("connect", err)
		}
		if err := s.sm.Transition(statemachine.Connecting, statemachine.Connected); err != nil {
			return false, err
		}
	} else if err := s.sm.Transition(statemachine.Idle, statemachine.Connected); err != nil {
		return false, err
	}

	s.setRemote(&a)
	log.V(1).Infof("stream fd(%d) connected to %q", s.fd, a.String())
	return true, nil
}

// connectRetry is how long a blocking Connect() waits before trying again when the listener's
// queue is full. The kernel has no readiness event for that case.
const connectRetry = 20 * time.Millisecond

// connectWait waits for a connect() on the non-blocking descriptor that returned errno. On an
// EINPROGRESS it polls for the descriptor to be writable and reads SO_ERROR. On an EAGAIN it
// retries the connect() every connectRetry. Both waits also poll the wake pipe written by close().
func (s *Stream) connectWait(rec *addr.Record, n int, errno unix.Errno) error {
	var deadline time.Time
	if ms, err := s.bridge.GetInt(s.fd, s.sotype, sockopt.SndTimeo); err == nil && ms > 0 {
		deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}

	wake, err := s.armWake()
	if err != nil {
		return err
	}
	defer s.disarmWake()

	for {
		if s.gate.isClosed() {
			return closedErr("connect")
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return sockerr.Native("connect", unix.ETIMEDOUT)
		}

		fds := []unix.PollFd{{Fd: int32(wake), Events: unix.POLLIN}}
		queueFull := errno == unix.EAGAIN || errno == unix.EWOULDBLOCK
		if !queueFull {
			fds = append(fds, unix.PollFd{Fd: int32(s.fd), Events: unix.POLLOUT})
		}
		if _, err := s.native.Poll(fds, int(connectRetry/time.Millisecond)); err != nil {
			return err
		}
		if fds[0].Revents != 0 || s.gate.isClosed() {
			return closedErr("connect")
		}

		if !queueFull {
			if fds[1].Revents == 0 {
				continue
			}
			soerr, err := s.native.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if err != nil {
				return err
			}
			if soerr != 0 {
				return sockerr.Native("connect", unix.Errno(soerr))
			}
		}

		err := s.native.Connect(s.fd, rec, n)
		if err == nil {
			return nil
		}
		e, ok := sockerr.Errno(err)
		switch {
		case ok && e == unix.EISCONN:
			return nil
		case ok && sockerr.WouldBlock(e):
			errno = e
		default:
			return err
		}
	}
}

// FinishConnect completes a connect that was in progress. It returns true once the Stream is
// CONNECTED, and false with a nil error if the connect still has not finished. On a Stream that
// is already CONNECTED it returns true without a system call.
func (s *Stream) FinishConnect() (bool, error) {
	if !s.gate.enter() {
		return false, closedErr("finishConnect")
	}
	defer s.gate.leave()

	st, err := s.sm.Require("finishConnect", statemachine.Connected, statemachine.Connecting)
	if err != nil {
		return false, err
	}
	if st == statemachine.Connected {
		return true, nil
	}

	s.mu.Lock()
	to := s.to
	s.mu.Unlock()

	rec, n, err := s.plat.Address.Encode(to)
	if err != nil {
		return false, err
	}
	err = s.native.Connect(s.fd, rec, n)
	if err != nil {
		errno, ok := sockerr.Errno(err)
		switch {
		case ok && errno == unix.EISCONN:
		case ok && sockerr.WouldBlock(errno):
			return false, nil
		default:
			if terr := s.sm.Transition(statemachine.Connecting, statemachine.Idle); terr != nil {
				log.V(2).Infof("stream fd(%d): %s", s.fd, terr)
			}
			return false, s.interrupted("finishConnect", err)
		}
	}

	if err := s.sm.Transition(statemachine.Connecting, statemachine.Connected); err != nil {
		return false, err
	}
	s.setRemote(&to)
	log.V(1).Infof("stream fd(%d) connected to %q", s.fd, to.String())
	return true, nil
}

// ConnectionPending reports if the Stream is CONNECTING.
func (s *Stream) ConnectionPending() bool {
	return s.sm.Is(statemachine.Connecting)
}

// Read implements io.Reader.Read(). The Stream must be CONNECTED. A closed peer gives io.EOF.
func (s *Stream) Read(b []byte) (int, error) {
	if !s.gate.enter() {
		return 0, closedErr("read")
	}
	defer s.gate.leave()

	if _, err := s.sm.Require("read", statemachine.Connected); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}

	n, err := s.native.Read(s.fd, b)
	if err != nil {
		return 0, s.interrupted("read", err)
	}
	if n == 0 {
		if s.gate.isClosed() {
			return 0, closedErr("read")
		}
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer.Write(). The Stream must be CONNECTED. In blocking mode it writes
// all of b or returns an error. In non-blocking mode it can return a short count with an error for
// which sockerr.Retryable() is true.
func (s *Stream) Write(b []byte) (int, error) {
	if !s.gate.enter() {
		return 0, closedErr("write")
	}
	defer s.gate.leave()

	if _, err := s.sm.Require("write", statemachine.Connected); err != nil {
		return 0, err
	}

	written := 0
	for written < len(b) {
		n, err := s.native.Write(s.fd, b[written:])
		if err != nil {
			return written, s.interrupted("write", err)
		}
		written += n
	}
	return written, nil
}

// Shutdown closes one or both directions of the connection without closing the descriptor.
func (s *Stream) Shutdown(how ShutdownHow) error {
	if !s.gate.enter() {
		return closedErr("shutdown")
	}
	defer s.gate.leave()

	if _, err := s.sm.Require("shutdown", statemachine.Connected); err != nil {
		return err
	}
	return s.native.Shutdown(s.fd, int(how))
}

// LocalAddr returns the local address, or nil if the Stream is not CONNECTED. Streams made by
// Pair() or Accept() have the unnamed address on at least one side.
func (s *Stream) LocalAddr() net.Addr {
	if !s.Connected() {
		return nil
	}
	return toNetAddr(s.localAddr())
}

// RemoteAddr returns the address of the peer, or nil if the Stream is not CONNECTED.
func (s *Stream) RemoteAddr() net.Addr {
	if !s.Connected() {
		return nil
	}
	return toNetAddr(s.remoteAddr())
}

// KeepAlive reports if SO_KEEPALIVE is set.
func (s *Stream) KeepAlive() (bool, error) {
	if !s.gate.enter() {
		return false, closedErr("keepAlive")
	}
	defer s.gate.leave()

	return s.bridge.GetBool(s.fd, s.sotype, sockopt.KeepAlive)
}

// SetKeepAlive sets SO_KEEPALIVE.
func (s *Stream) SetKeepAlive(on bool) error {
	return s.SetOption(sockopt.KeepAlive, on)
}

// Close implements io.Closer.Close(). A Read() or Write() blocked in another goroutine returns an
// ErrClosedOrInterrupted. Calling Close() more than once is a no-op.
func (s *Stream) Close() error {
	return s.close(native.ShutBoth)
}
