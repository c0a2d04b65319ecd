package sockopt

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/kylelemons/godebug/pretty"
)

// fakeNative stores option values by name, the way a kernel would.
type fakeNative struct {
	ints  map[int]int
	bytes map[int][]byte
	calls int
}

func newFake() *fakeNative {
	return &fakeNative{ints: map[int]int{}, bytes: map[int][]byte{}}
}

func (f *fakeNative) GetsockoptInt(fd, level, opt int) (int, error) {
	f.calls++
	return f.ints[opt], nil
}

func (f *fakeNative) GetsockoptBytes(fd, level, opt int, buf []byte) (int, error) {
	f.calls++
	return copy(buf, f.bytes[opt]), nil
}

func (f *fakeNative) SetsockoptInt(fd, level, opt, value int) error {
	f.calls++
	f.ints[opt] = value
	return nil
}

func (f *fakeNative) SetsockoptBytes(fd, level, opt int, buf []byte) error {
	f.calls++
	f.bytes[opt] = append([]byte(nil), buf...)
	return nil
}

func TestTimevalConversion(t *testing.T) {
	layouts := []TimevalLayout{TimevalLong, TimevalInt32Usec, TimevalInt64Sec}
	for _, l := range layouts {
		for _, ms := range []int{0, 1, 999, 1000, 1500, 61001} {
			b := l.Encode(ms)
			if len(b) != l.Size() {
				t.Errorf("TestTimevalConversion(%s, %d): encoded %d bytes, want %d", l, ms, len(b), l.Size())
			}
			got, err := l.Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if got != ms {
				t.Errorf("TestTimevalConversion(%s): got %d, want %d", l, got, ms)
			}
		}
	}
}

func TestTimevalFields(t *testing.T) {
	b := TimevalLong.Encode(1500)
	var sec, usec int64
	if longSize == 8 {
		sec = int64(binary.NativeEndian.Uint64(b[0:8]))
		usec = int64(binary.NativeEndian.Uint64(b[8:16]))
	} else {
		sec = int64(binary.NativeEndian.Uint32(b[0:4]))
		usec = int64(binary.NativeEndian.Uint32(b[4:8]))
	}
	if sec != 1 || usec != 500000 {
		t.Errorf("TestTimevalFields: got sec=%d usec=%d, want sec=1 usec=500000", sec, usec)
	}

	// usec values that are not whole milliseconds are truncated.
	b = TimevalLong.Encode(0)
	putInt(b[TimevalLong.secSize:TimevalLong.secSize+TimevalLong.usecSize], 1999)
	if got, _ := TimevalLong.Decode(b); got != 1 {
		t.Errorf("TestTimevalFields: 1999usec got %dms, want 1ms", got)
	}
}

func TestSetGet(t *testing.T) {
	tests := []struct {
		desc string
		opt  Option
		st   SocketType
		set  interface{}
		want interface{}
	}{
		{desc: "rcvbuf", opt: RcvBuf, st: Stream, set: 8192, want: 8192},
		{desc: "sndbuf int32", opt: SndBuf, st: Datagram, set: int32(4096), want: 4096},
		{desc: "rcvtimeo ms", opt: RcvTimeo, st: Stream, set: 1500, want: 1500},
		{desc: "sndtimeo duration", opt: SndTimeo, st: Datagram, set: 2 * time.Second, want: 2000},
		{desc: "keepalive on", opt: KeepAlive, st: Stream, set: true, want: true},
		{desc: "keepalive off", opt: KeepAlive, st: Stream, set: false, want: false},
	}

	for _, test := range tests {
		b := New(newFake(), TimevalLong)
		if err := b.Set(3, test.st, test.opt, test.set); err != nil {
			t.Errorf("TestSetGet(%s): Set() got err == %s, want err == nil", test.desc, err)
			continue
		}
		got, err := b.Get(3, test.st, test.opt)
		if err != nil {
			t.Errorf("TestSetGet(%s): Get() got err == %s, want err == nil", test.desc, err)
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestSetGet(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestBoolEncoding(t *testing.T) {
	f := newFake()
	b := New(f, TimevalLong)
	if err := b.Set(3, Stream, KeepAlive, true); err != nil {
		t.Fatal(err)
	}
	if f.ints[KeepAlive.opt] != 1 {
		t.Errorf("TestBoolEncoding: native value got %d, want 1", f.ints[KeepAlive.opt])
	}
	f.ints[KeepAlive.opt] = 7
	on, err := b.GetBool(3, Stream, KeepAlive)
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Errorf("TestBoolEncoding: native 7 got false, want true")
	}
}

func TestSetErrors(t *testing.T) {
	tests := []struct {
		desc string
		opt  Option
		st   SocketType
		val  interface{}
		want sockerr.ErrType
	}{
		{desc: "negative rcvbuf", opt: RcvBuf, st: Stream, val: -1, want: sockerr.ETInvalidOptionValue},
		{desc: "negative sndbuf", opt: SndBuf, st: Datagram, val: -1, want: sockerr.ETInvalidOptionValue},
		{desc: "negative rcvtimeo", opt: RcvTimeo, st: Stream, val: -1, want: sockerr.ETInvalidOptionValue},
		{desc: "negative sndtimeo", opt: SndTimeo, st: Stream, val: -time.Second, want: sockerr.ETInvalidOptionValue},
		{desc: "wrong type", opt: RcvBuf, st: Stream, val: "big", want: sockerr.ETInvalidOptionValue},
		{desc: "bool as int", opt: KeepAlive, st: Stream, val: 1, want: sockerr.ETInvalidOptionValue},
		{desc: "nil value", opt: RcvBuf, st: Stream, val: nil, want: sockerr.ETInvalidOptionValue},
		{desc: "keepalive on datagram", opt: KeepAlive, st: Datagram, val: true, want: sockerr.ETUnsupportedOption},
	}

	for _, test := range tests {
		f := newFake()
		b := New(f, TimevalLong)
		err := b.Set(3, test.st, test.opt, test.val)
		if got := sockerr.Type(err); got != test.want {
			t.Errorf("TestSetErrors(%s): got %v(%v), want %v", test.desc, got, err, test.want)
		}
		if f.calls != 0 {
			t.Errorf("TestSetErrors(%s): native calls got %d, want 0", test.desc, f.calls)
		}
	}
}

func TestReadOnly(t *testing.T) {
	if !PeerCred.Supported(Stream) {
		t.Skip("no peer credential option on this platform")
	}
	f := newFake()
	b := New(f, TimevalLong)
	err := b.Set(3, Stream, PeerCred, struct{}{})
	if sockerr.Type(err) != sockerr.ETReadOnlyOption {
		t.Fatalf("TestReadOnly: got %v, want ETReadOnlyOption", err)
	}
	if err.Error() != "option not found or not writable" {
		t.Errorf("TestReadOnly: message got %q", err.Error())
	}
	if f.calls != 0 {
		t.Errorf("TestReadOnly: native calls got %d, want 0", f.calls)
	}
}

func TestGetUnsupported(t *testing.T) {
	b := New(newFake(), TimevalLong)
	_, err := b.Get(3, Datagram, KeepAlive)
	if sockerr.Type(err) != sockerr.ETUnsupportedOption {
		t.Fatalf("TestGetUnsupported: got %v, want ETUnsupportedOption", err)
	}
	if err.Error() != "'SO_KEEPALIVE' not supported" {
		t.Errorf("TestGetUnsupported: message got %q", err.Error())
	}
}

func TestSupportedOptions(t *testing.T) {
	for _, o := range SupportedOptions(Datagram) {
		if o.Name() == KeepAlive.Name() {
			t.Errorf("TestSupportedOptions: datagram options include SO_KEEPALIVE")
		}
	}
	if _, ok := Lookup("SO_RCVBUF"); !ok {
		t.Errorf("TestSupportedOptions: Lookup(SO_RCVBUF) not found")
	}
	if _, ok := Lookup("SO_REUSEPORT"); ok {
		t.Errorf("TestSupportedOptions: Lookup(SO_REUSEPORT) found")
	}
}
