package uds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/golang/glog"
	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/channel"
	"github.com/johnsiilver/unixsock/cred"
	"github.com/johnsiilver/unixsock/platform"
	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/kylelemons/godebug/pretty"
)

// ErrSocketRemoved is sent on Server.Closed() when the socket file is removed out from under the server.
var ErrSocketRemoved = errors.New("socket file was removed")

// Conn represents a UDS connection from a client. Must take a pointer if this will be copied
// after being received.
type Conn struct {
	stream

	// Cred holds the credentials of the client process.
	Cred cred.Cred
}

// ServerOption is an optional argument to NewServer().
type ServerOption func(s *Server)

// Backlog sets the listen() backlog. The default is channel.DefaultBacklog.
func Backlog(n int) ServerOption {
	return func(s *Server) {
		s.backlog = n
	}
}

// WatchSocketFile sets if the server stops when its socket file is removed. This is on by default.
func WatchSocketFile(b bool) ServerOption {
	return func(s *Server) {
		s.watch = b
	}
}

// Server provides a Unix Domain Socket server that clients can connect on.
type Server struct {
	path    string
	backlog int
	watch   bool

	srv     *channel.Server
	watcher *fsnotify.Watcher
	errCh   chan error
	connCh  chan *Conn
	// done is closed by shutdown() so that accept() never waits on a reader that left.
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	// errMu protects errClosed, which is set once errCh is closed.
	errMu     sync.Mutex
	errClosed bool
}

// NewServer creates a new UDS server that creates and listens to the file at socketPath. uid and gid are
// the uid and gid that file will be set to and fileMode is the file mode it will inherit. If
// socketAddr exists this will attempt to delete it. Suggest fileMode of 0770. A uid or gid of -1
// leaves that id alone.
func NewServer(socketAddr string, uid, gid int, fileMode os.FileMode, options ...ServerOption) (*Server, error) {
	a := addr.Path(socketAddr)
	if err := platform.Current().Address.Validate(a); err != nil {
		return nil, fmt.Errorf("unable to create server socket(%s): %w", socketAddr, err)
	}

	if err := os.Remove(socketAddr); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to create server socket(%s), could not remove old socket file: %s", socketAddr, err)
	}

	serv := &Server{
		path:    socketAddr,
		backlog: channel.DefaultBacklog,
		watch:   true,
		errCh:   make(chan error, 1),
		connCh:  make(chan *Conn, 1),
		done:    make(chan struct{}),
	}
	for _, o := range options {
		o(serv)
	}

	srv, err := channel.Listen(a, channel.Backlog(serv.backlog))
	if err != nil {
		return nil, fmt.Errorf("unable to create server socket(%s): %w", socketAddr, err)
	}
	serv.srv = srv

	if err := os.Chmod(socketAddr, fileMode); err != nil {
		serv.shutdown()
		return nil, fmt.Errorf("unable to create server socket(%s), could not chmod the socket file: %s", socketAddr, err)
	}
	if uid != -1 || gid != -1 {
		if err := os.Chown(socketAddr, uid, gid); err != nil {
			serv.shutdown()
			return nil, fmt.Errorf("unable to create server socket(%s), could not chown the socket file: %s", socketAddr, err)
		}
	}
	if log.V(2) {
		if stat, err := os.Stat(socketAddr); err == nil {
			log.Infof("socket file(%s) mode %v: %s", socketAddr, stat.Mode(), pretty.Sprint(stat.Sys()))
		}
	}

	if serv.watch {
		if err := serv.watchFile(); err != nil {
			serv.shutdown()
			return nil, err
		}
	}

	go serv.accept()
	return serv, nil
}

// Conn returns a channel that is populated with connection to the server. The channel is closed
// when the server's is no longer serving.
func (s *Server) Conn() chan *Conn {
	return s.connCh
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() addr.Address {
	return addr.Path(s.path)
}

// Close stops listening for connections on the socket and removes the socket file.
func (s *Server) Close() error {
	return s.shutdown()
}

// Closed returns a channel that returns an error when the connection to the server is closed.
// This can be because you have called Close(), the socket had an accept error or the socket file was
// removed (ErrSocketRemoved). Calling Close() does not send an error. Normally this is
// used to block and return the final status of the server.
func (s *Server) Closed() chan error {
	return s.errCh
}

func (s *Server) shutdown() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.closeErr = s.srv.Close()
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			log.Warningf("could not remove socket file(%s): %s", s.path, err)
		}
	})
	return s.closeErr
}

// fail records why the server stopped, if nothing else has, and stops it.
func (s *Server) fail(err error) {
	s.errMu.Lock()
	if !s.errClosed {
		select {
		case s.errCh <- err:
		default:
		}
	}
	s.errMu.Unlock()

	s.shutdown()
}

// watchFile stops the server if something removes or renames the socket file. We watch the
// directory, as a watch on the file itself is lost when the file goes.
func (s *Server) watchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not watch socket file(%s): %w", s.path, err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("could not watch socket file(%s): %w", s.path, err)
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Errorf("uds server socket file(%s) was removed, closing the server", s.path)
					s.fail(ErrSocketRemoved)
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warningf("uds server socket file(%s) watcher: %s", s.path, err)
			}
		}
	}()
	return nil
}

func (s *Server) accept() {
	defer close(s.connCh)
	defer func() {
		s.errMu.Lock()
		defer s.errMu.Unlock()
		s.errClosed = true
		close(s.errCh)
	}()

	for {
		st, err := s.srv.Accept()
		if err != nil {
			if sockerr.Type(err) != sockerr.ETClosedOrInterrupted {
				s.fail(err)
			}
			return
		}

		c, err := st.Credentials()
		if err != nil || c == nil {
			log.Errorf("unable to read creds from socket client, rejecting conn: %v", err)
			st.Close()
			continue
		}
		select {
		case s.connCh <- &Conn{stream: newStream(st), Cred: *c}:
		case <-s.done:
			st.Close()
			return
		}
	}
}
