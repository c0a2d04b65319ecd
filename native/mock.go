package native

import (
	"sync"
	"time"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/sockerr"
	"golang.org/x/sys/unix"
)

// Mock is a Binding that never touches the kernel. Each call is counted by name.
// A nil hook gets a default that succeeds: Socket hands out increasing fds, options are kept
// in memory and reads return 0 bytes. A write to the write end of a Pipe() makes the read end
// readable for Poll(). Poll() reports sockets as writable.
type Mock struct {
	SocketFn      func(sotype int) (int, error)
	BindFn        func(fd int, a addr.Address) error
	ListenFn      func(fd, backlog int) error
	AcceptFn      func(fd int) (int, addr.Address, error)
	ConnectFn     func(fd int, a addr.Address) error
	GetsocknameFn func(fd int) (addr.Address, error)
	GetpeernameFn func(fd int) (addr.Address, error)
	ReadFn        func(fd int, b []byte) (int, error)
	WriteFn       func(fd int, b []byte) (int, error)
	ShutdownFn    func(fd, how int) error

	// Layout encodes and decodes the addresses handed to the hooks. It defaults to addr.Linux.
	Layout addr.Layout

	mu       sync.Mutex
	calls    map[string]int
	pipes    map[int]int // write end -> read end
	readable map[int]bool
	nextFD   int
	opts     map[[3]int][]byte
	blocking map[int]bool
	closed   map[int]bool
}

func (m *Mock) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

// Calls returns how many times the named method was called.
func (m *Mock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Total returns the number of calls across all methods.
func (m *Mock) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := 0
	for _, v := range m.calls {
		t += v
	}
	return t
}

// Closed reports if Close() was called on fd.
func (m *Mock) Closed(fd int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed[fd]
}

func (m *Mock) layout() addr.Layout {
	if m.Layout.Name() == "" {
		return addr.Linux
	}
	return m.Layout
}

func (m *Mock) newFD() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextFD == 0 {
		m.nextFD = 100
	}
	m.nextFD++
	return m.nextFD
}

func (m *Mock) decode(rec *addr.Record, n int) addr.Address {
	return m.layout().Decode(rec, n)
}

func (m *Mock) encode(a addr.Address, rec *addr.Record) (int, error) {
	r, n, err := m.layout().Encode(a)
	if err != nil {
		return 0, err
	}
	*rec = *r
	return n, nil
}

func (m *Mock) Socket(sotype int) (int, error) {
	m.count("Socket")
	if m.SocketFn != nil {
		return m.SocketFn(sotype)
	}
	return m.newFD(), nil
}

func (m *Mock) Socketpair(sotype int) ([2]int, error) {
	m.count("Socketpair")
	return [2]int{m.newFD(), m.newFD()}, nil
}

func (m *Mock) Bind(fd int, rec *addr.Record, n int) error {
	m.count("Bind")
	if m.BindFn != nil {
		return m.BindFn(fd, m.decode(rec, n))
	}
	return nil
}

func (m *Mock) Listen(fd, backlog int) error {
	m.count("Listen")
	if m.ListenFn != nil {
		return m.ListenFn(fd, backlog)
	}
	return nil
}

func (m *Mock) Accept(fd int, rec *addr.Record) (int, int, error) {
	m.count("Accept")
	if m.AcceptFn == nil {
		return m.newFD(), 0, nil
	}
	nfd, a, err := m.AcceptFn(fd)
	if err != nil {
		return -1, 0, err
	}
	n, err := m.encode(a, rec)
	if err != nil {
		return -1, 0, err
	}
	return nfd, n, nil
}

func (m *Mock) Connect(fd int, rec *addr.Record, n int) error {
	m.count("Connect")
	if m.ConnectFn != nil {
		return m.ConnectFn(fd, m.decode(rec, n))
	}
	return nil
}

func (m *Mock) Getsockname(fd int, rec *addr.Record) (int, error) {
	m.count("Getsockname")
	if m.GetsocknameFn == nil {
		return 0, nil
	}
	a, err := m.GetsocknameFn(fd)
	if err != nil {
		return 0, err
	}
	return m.encode(a, rec)
}

func (m *Mock) Getpeername(fd int, rec *addr.Record) (int, error) {
	m.count("Getpeername")
	if m.GetpeernameFn == nil {
		return 0, nil
	}
	a, err := m.GetpeernameFn(fd)
	if err != nil {
		return 0, err
	}
	return m.encode(a, rec)
}

func (m *Mock) Read(fd int, b []byte) (int, error) {
	m.count("Read")
	if m.ReadFn != nil {
		return m.ReadFn(fd, b)
	}
	return 0, nil
}

func (m *Mock) Write(fd int, b []byte) (int, error) {
	m.count("Write")
	m.mu.Lock()
	r, ok := m.pipes[fd]
	if ok {
		m.readable[r] = true
	}
	m.mu.Unlock()
	if ok {
		return len(b), nil
	}
	if m.WriteFn != nil {
		return m.WriteFn(fd, b)
	}
	return len(b), nil
}

func (m *Mock) Sendto(fd int, b []byte, rec *addr.Record, n int) (int, error) {
	m.count("Sendto")
	if m.WriteFn != nil {
		return m.WriteFn(fd, b)
	}
	return len(b), nil
}

func (m *Mock) Recvfrom(fd int, b []byte, rec *addr.Record) (int, int, error) {
	m.count("Recvfrom")
	if m.ReadFn != nil {
		n, err := m.ReadFn(fd, b)
		return n, 0, err
	}
	return 0, 0, nil
}

func (m *Mock) getopt(fd, level, opt int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.opts[[3]int{fd, level, opt}]
	return v, ok
}

func (m *Mock) setopt(fd, level, opt int, v []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts == nil {
		m.opts = map[[3]int][]byte{}
	}
	m.opts[[3]int{fd, level, opt}] = v
}

func (m *Mock) GetsockoptInt(fd, level, opt int) (int, error) {
	m.count("GetsockoptInt")
	v, ok := m.getopt(fd, level, opt)
	if !ok {
		return 0, nil
	}
	n := 0
	for i := len(v) - 1; i >= 0; i-- {
		n = n<<8 | int(v[i])
	}
	return n, nil
}

func (m *Mock) GetsockoptBytes(fd, level, opt int, buf []byte) (int, error) {
	m.count("GetsockoptBytes")
	v, ok := m.getopt(fd, level, opt)
	if !ok {
		return 0, sockerr.Native("getsockopt", unix.ENOPROTOOPT)
	}
	return copy(buf, v), nil
}

func (m *Mock) SetsockoptInt(fd, level, opt, value int) error {
	m.count("SetsockoptInt")
	v := make([]byte, 8)
	for i := range v {
		v[i] = byte(value >> (8 * i))
	}
	m.setopt(fd, level, opt, v)
	return nil
}

func (m *Mock) SetsockoptBytes(fd, level, opt int, buf []byte) error {
	m.count("SetsockoptBytes")
	m.setopt(fd, level, opt, append([]byte(nil), buf...))
	return nil
}

func (m *Mock) SetBlocking(fd int, blocking bool) error {
	m.count("SetBlocking")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocking == nil {
		m.blocking = map[int]bool{}
	}
	m.blocking[fd] = blocking
	return nil
}

func (m *Mock) Blocking(fd int) (bool, error) {
	m.count("Blocking")
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocking[fd]
	if !ok {
		return true, nil
	}
	return b, nil
}

func (m *Mock) Shutdown(fd, how int) error {
	m.count("Shutdown")
	if m.ShutdownFn != nil {
		return m.ShutdownFn(fd, how)
	}
	return nil
}

func (m *Mock) Close(fd int) error {
	m.count("Close")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed == nil {
		m.closed = map[int]bool{}
	}
	m.closed[fd] = true
	return nil
}

func (m *Mock) Pipe() (int, int, error) {
	m.count("Pipe")
	r, w := m.newFD(), m.newFD()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pipes == nil {
		m.pipes = map[int]int{}
		m.readable = map[int]bool{}
	}
	m.pipes[w] = r
	return r, w, nil
}

func (m *Mock) isPipe(fd int) bool {
	for w, r := range m.pipes {
		if fd == w || fd == r {
			return true
		}
	}
	return false
}

func (m *Mock) Poll(fds []unix.PollFd, timeout int) (int, error) {
	m.count("Poll")

	ready := func() int {
		m.mu.Lock()
		defer m.mu.Unlock()
		n := 0
		for i := range fds {
			fds[i].Revents = 0
			fd := int(fds[i].Fd)
			if fds[i].Events&unix.POLLIN != 0 && m.readable[fd] {
				fds[i].Revents |= unix.POLLIN
			}
			if fds[i].Events&unix.POLLOUT != 0 && !m.isPipe(fd) {
				fds[i].Revents |= unix.POLLOUT
			}
			if fds[i].Revents != 0 {
				n++
			}
		}
		return n
	}

	if n := ready(); n > 0 || timeout == 0 {
		return n, nil
	}
	if timeout < 0 {
		timeout = 10
	}
	time.Sleep(time.Duration(timeout) * time.Millisecond)
	return ready(), nil
}

var _ Binding = (*Mock)(nil)
