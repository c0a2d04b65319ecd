package channel

import (
	"testing"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/native"
	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/johnsiilver/unixsock/statemachine"
	"golang.org/x/sys/unix"
)

func TestAcceptNotBound(t *testing.T) {
	m := &native.Mock{}
	srv, err := OpenServer(mockOpts(m, "linux")...)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Accept(); sockerr.Type(err) != sockerr.ETNotYetBound {
		t.Errorf("TestAcceptNotBound: got %v, want ETNotYetBound", err)
	}
	if m.Calls("Accept") != 0 {
		t.Errorf("TestAcceptNotBound: accept() was called")
	}
}

func TestAccept(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "openbsd"} {
		var backlog int
		m := &native.Mock{
			ListenFn: func(fd, n int) error {
				backlog = n
				return nil
			},
			AcceptFn: func(fd int) (int, addr.Address, error) {
				return 7, addr.Path("/tmp/peer.sock"), nil
			},
		}
		srv, err := Listen(addr.Path("/tmp/server.sock"), mockOpts(m, goos)...)
		if err != nil {
			t.Fatalf("TestAccept(%s): Listen(): %s", goos, err)
		}
		if backlog != DefaultBacklog {
			t.Errorf("TestAccept(%s): backlog: got %d, want %d", goos, backlog, DefaultBacklog)
		}
		if got := srv.LocalAddr(); got == nil || got.String() != "/tmp/server.sock" {
			t.Errorf("TestAccept(%s): LocalAddr(): got %v, want /tmp/server.sock", goos, got)
		}

		s, err := srv.Accept()
		if err != nil {
			t.Fatalf("TestAccept(%s): Accept(): %s", goos, err)
		}
		if s.FD() != 7 || s.State() != statemachine.Connected || !s.Bound() {
			t.Errorf("TestAccept(%s): got fd %d state %v bound %v, want 7 CONNECTED true", goos, s.FD(), s.State(), s.Bound())
		}
		if got := s.RemoteAddr(); got == nil || got.String() != "/tmp/peer.sock" {
			t.Errorf("TestAccept(%s): RemoteAddr(): got %v, want /tmp/peer.sock", goos, got)
		}
		if b, _ := m.Blocking(7); !b {
			t.Errorf("TestAccept(%s): accepted descriptor is not blocking", goos)
		}
	}
}

func TestServerBacklog(t *testing.T) {
	var backlog int
	m := &native.Mock{
		ListenFn: func(fd, n int) error {
			backlog = n
			return nil
		},
	}
	if _, err := Listen(addr.Path("/tmp/server.sock"), append(mockOpts(m, "linux"), Backlog(5))...); err != nil {
		t.Fatal(err)
	}
	if backlog != 5 {
		t.Errorf("TestServerBacklog: got %d, want 5", backlog)
	}
}

func TestAcceptAfterClose(t *testing.T) {
	m := &native.Mock{}
	srv, err := Listen(addr.Abstract("server"), mockOpts(m, "linux")...)
	if err != nil {
		t.Fatal(err)
	}
	srv.Close()
	if _, err := srv.Accept(); sockerr.Type(err) != sockerr.ETClosedOrInterrupted {
		t.Errorf("TestAcceptAfterClose: got %v, want ETClosedOrInterrupted", err)
	}
}

func TestListenFails(t *testing.T) {
	m := &native.Mock{
		ListenFn: func(fd, n int) error { return sockerr.Native("listen", unix.EINVAL) },
	}
	srv, err := OpenServer(mockOpts(m, "linux")...)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Bind(addr.Path("/tmp/server.sock"), 0); sockerr.Type(err) != sockerr.ETNativeCall {
		t.Fatalf("TestListenFails: Bind(): got %v, want ETNativeCall", err)
	}

	if _, err := srv.Accept(); sockerr.Type(err) != sockerr.ETInvalidState {
		t.Errorf("TestListenFails: Accept(): got %v, want ETInvalidState", err)
	}
	if m.Calls("Accept") != 0 {
		t.Errorf("TestListenFails: accept() was called")
	}
	if err := srv.Bind(addr.Path("/tmp/other.sock"), 0); sockerr.Type(err) != sockerr.ETAlreadyBound {
		t.Errorf("TestListenFails: second Bind(): got %v, want ETAlreadyBound", err)
	}
}
