package cred

import (
	"os"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

type fakeNative struct {
	record []byte
	pid    int
	err    error
	calls  int
}

func (f *fakeNative) GetsockoptInt(fd, level, opt int) (int, error) {
	f.calls++
	return f.pid, f.err
}

func (f *fakeNative) GetsockoptBytes(fd, level, opt int, buf []byte) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return copy(buf, f.record), nil
}

type fakeConn struct {
	fd        int
	connected bool
}

func (f fakeConn) FD() int         { return f.fd }
func (f fakeConn) Connected() bool { return f.connected }

func TestRecord(t *testing.T) {
	want := Cred{PID: 4242, UID: 1000, GID: 100}
	got, err := DecodeRecord(EncodeRecord(want))
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestRecord: -want/+got:\n%s", diff)
	}

	if _, err := DecodeRecord(make([]byte, RecordSize-1)); err == nil {
		t.Errorf("TestRecord: short record got err == nil, want err != nil")
	}
}

func TestCredString(t *testing.T) {
	c := Cred{PID: 1, UID: 2, GID: 3}
	if got, want := c.String(), "[uid=2 gid=3 pid=1]"; got != want {
		t.Errorf("TestCredString: got %q, want %q", got, want)
	}
}

func TestResolveNotConnected(t *testing.T) {
	n := &fakeNative{}
	r := NewResolver(n)

	got, err := r.Resolve(fakeConn{fd: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("TestResolveNotConnected: got %v, want nil", got)
	}
	if n.calls != 0 {
		t.Errorf("TestResolveNotConnected: native calls got %d, want 0", n.calls)
	}
}

func TestCurrent(t *testing.T) {
	c, u, err := Current()
	if err != nil {
		t.Skipf("no current user: %s", err)
	}
	if c.PID.Int() != os.Getpid() {
		t.Errorf("TestCurrent: PID got %d, want %d", c.PID, os.Getpid())
	}
	if c.UID.String() != u.Uid {
		t.Errorf("TestCurrent: UID got %s, want %s", c.UID, u.Uid)
	}
}
