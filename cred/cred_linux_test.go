//go:build linux

package cred

import (
	"testing"

	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/kylelemons/godebug/pretty"
	"golang.org/x/sys/unix"
)

func TestResolveCaches(t *testing.T) {
	want := Cred{PID: 77, UID: 501, GID: 20}
	n := &fakeNative{record: EncodeRecord(want)}
	r := NewResolver(n)
	conn := fakeConn{fd: 5, connected: true}

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(conn)
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Compare(want, *got); diff != "" {
			t.Errorf("TestResolveCaches: -want/+got:\n%s", diff)
		}
	}
	if n.calls != 1 {
		t.Errorf("TestResolveCaches: native calls got %d, want 1", n.calls)
	}

	r.Reset()
	if _, err := r.Resolve(conn); err != nil {
		t.Fatal(err)
	}
	if n.calls != 2 {
		t.Errorf("TestResolveCaches: native calls after Reset() got %d, want 2", n.calls)
	}
}

func TestResolveUnsupported(t *testing.T) {
	tests := []struct {
		desc  string
		errno unix.Errno
		want  sockerr.ErrType
	}{
		{desc: "no such option", errno: unix.ENOPROTOOPT, want: sockerr.ETUnsupportedOperation},
		{desc: "not supported", errno: unix.EOPNOTSUPP, want: sockerr.ETUnsupportedOperation},
		{desc: "bad descriptor", errno: unix.EBADF, want: sockerr.ETNativeCall},
	}

	for _, test := range tests {
		n := &fakeNative{err: sockerr.Native("getsockopt", test.errno)}
		r := NewResolver(n)
		got, err := r.Resolve(fakeConn{fd: 5, connected: true})
		if got != nil {
			t.Errorf("TestResolveUnsupported(%s): got %v, want nil", test.desc, got)
		}
		if sockerr.Type(err) != test.want {
			t.Errorf("TestResolveUnsupported(%s): got %v, want %v", test.desc, sockerr.Type(err), test.want)
		}
	}
}

func TestResolveNoPeer(t *testing.T) {
	// An unconnected datagram socket gets pid 0 and uid/gid of -1 back from SO_PEERCRED.
	n := &fakeNative{record: EncodeRecord(Cred{PID: 0, UID: -1, GID: -1})}
	r := NewResolver(n)

	got, err := r.Resolve(fakeConn{fd: 5, connected: true})
	if got != nil {
		t.Errorf("TestResolveNoPeer: got %v, want nil", got)
	}
	if sockerr.Type(err) != sockerr.ETUnsupportedOperation {
		t.Errorf("TestResolveNoPeer: got %v, want ETUnsupportedOperation", err)
	}

	// Nothing is cached, so the next call asks again.
	r.Resolve(fakeConn{fd: 5, connected: true})
	if n.calls != 2 {
		t.Errorf("TestResolveNoPeer: native calls got %d, want 2", n.calls)
	}
}
