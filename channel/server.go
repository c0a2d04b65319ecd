package channel

import (
	"net"

	log "github.com/golang/glog"
	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/native"
	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/johnsiilver/unixsock/sockopt"
	"github.com/johnsiilver/unixsock/statemachine"
	"golang.org/x/sys/unix"
)

// Server is a listening SOCK_STREAM channel. It has no lifecycle of its own beyond being bound,
// each accepted connection is a new CONNECTED Stream.
type Server struct {
	*base

	conf config
	// listening is set once listen() succeeds. listenErr is why it failed. Both are protected by
	// base.mu.
	listening bool
	listenErr error
}

// OpenServer creates an unbound Server. Call Bind() before Accept().
func OpenServer(opts ...Option) (*Server, error) {
	c := newConfig(opts)
	fd, err := c.binding.Socket(unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	srv := &Server{base: newBase(fd, "server", sockopt.Stream, statemachine.Idle, c), conf: c}
	if err := srv.initBlocking(c); err != nil {
		srv.Close()
		return nil, err
	}
	return srv, nil
}

// Listen opens a Server and binds it to a with the Backlog() option, DefaultBacklog if not given.
func Listen(a addr.Address, opts ...Option) (*Server, error) {
	srv, err := OpenServer(opts...)
	if err != nil {
		return nil, err
	}
	if err := srv.Bind(a, srv.conf.backlog); err != nil {
		srv.Close()
		return nil, err
	}
	return srv, nil
}

// Bind binds the Server to a and starts listening. The unnamed address asks for an autobind.
// A backlog <= 0 uses DefaultBacklog. If listen() fails the Server stays bound, a Server can only
// be bound once, so it can only be closed. Accept() on it returns an ErrInvalidState.
func (srv *Server) Bind(a addr.Address, backlog int) error {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := srv.bind(a); err != nil {
		return err
	}

	if !srv.gate.enter() {
		return closedErr("listen")
	}
	defer srv.gate.leave()

	err := srv.native.Listen(srv.fd, backlog)
	srv.mu.Lock()
	srv.listening = err == nil
	srv.listenErr = err
	srv.mu.Unlock()
	return err
}

// Accept waits for a connection and returns it as a CONNECTED, blocking Stream that knows its
// peer's address. It fails with ErrNotYetBound if the Server is not bound. If the Server is
// closed while waiting, it returns an ErrClosedOrInterrupted.
func (srv *Server) Accept() (*Stream, error) {
	if !srv.gate.enter() {
		return nil, closedErr("accept")
	}
	defer srv.gate.leave()

	if !srv.guard.Bound() {
		return nil, sockerr.Errorf(sockerr.ETNotYetBound, "accept: server is not bound")
	}
	srv.mu.Lock()
	listening, lerr := srv.listening, srv.listenErr
	srv.mu.Unlock()
	if !listening {
		return nil, sockerr.Errorf(sockerr.ETInvalidState, "accept: server is bound but not listening: %v", lerr)
	}

	rec := &addr.Record{}
	nfd, n, err := srv.native.Accept(srv.fd, rec)
	if err != nil {
		return nil, srv.interrupted("accept", err)
	}
	if srv.gate.isClosed() {
		srv.native.Close(nfd)
		return nil, closedErr("accept")
	}

	// Accepted descriptors may inherit O_NONBLOCK from the listener on some platforms.
	if err := srv.native.SetBlocking(nfd, true); err != nil {
		srv.native.Close(nfd)
		return nil, err
	}
	c := srv.conf
	c.blocking = true

	peer := srv.plat.Address.Decode(rec, n)
	s := newStream(nfd, statemachine.Connected, c)
	s.guard.MarkBound()
	s.setRemote(&peer)

	log.V(1).Infof("server fd(%d) accepted fd(%d) from %q", srv.fd, nfd, peer.String())
	return s, nil
}

// LocalAddr returns the address the Server is bound to, or nil if it is not bound.
func (srv *Server) LocalAddr() net.Addr {
	if !srv.Bound() {
		return nil
	}
	return toNetAddr(srv.localAddr())
}

// Close stops listening. An Accept() blocked in another goroutine returns an ErrClosedOrInterrupted.
// The socket file of an explicitly bound filesystem address is not removed.
func (srv *Server) Close() error {
	return srv.close(native.ShutBoth)
}
