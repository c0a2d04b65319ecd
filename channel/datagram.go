package channel

import (
	"net"

	log "github.com/golang/glog"
	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/cred"
	"github.com/johnsiilver/unixsock/native"
	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/johnsiilver/unixsock/sockopt"
	"github.com/johnsiilver/unixsock/statemachine"
	"golang.org/x/sys/unix"
)

// Datagram is a SOCK_DGRAM channel.
//
// Connect() only records a default destination, there is no native connect and the kernel does
// not filter who can send to us. While IDLE, Read() and Write() do nothing and return 0.
type Datagram struct {
	*base

	// recorded is set while the destination comes from Connect() and the kernel has no peer for
	// the descriptor. Protected by base.mu.
	recorded bool
}

func newDatagram(fd int, start statemachine.State, c config) *Datagram {
	return &Datagram{base: newBase(fd, "datagram", sockopt.Datagram, start, c)}
}

// OpenDatagram creates an unconnected Datagram.
func OpenDatagram(opts ...Option) (*Datagram, error) {
	c := newConfig(opts)
	fd, err := c.binding.Socket(unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	d := newDatagram(fd, statemachine.Idle, c)
	if err := d.initBlocking(c); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// DatagramPair returns two Datagrams connected to each other with socketpair().
func DatagramPair(opts ...Option) (*Datagram, *Datagram, error) {
	c := newConfig(opts)
	fds, err := c.binding.Socketpair(unix.SOCK_DGRAM)
	if err != nil {
		return nil, nil, err
	}

	var pair [2]*Datagram
	for i, fd := range fds {
		d := newDatagram(fd, statemachine.Connected, c)
		d.guard.MarkBound()
		pair[i] = d
	}
	for _, d := range pair {
		if err := d.initBlocking(c); err != nil {
			pair[0].Close()
			pair[1].Close()
			return nil, nil, err
		}
	}
	return pair[0], pair[1], nil
}

// Bind binds the Datagram to a. The unnamed address asks for an autobind.
func (d *Datagram) Bind(a addr.Address) error {
	return d.bind(a)
}

// Connect sets a as the destination of Write() and of Send() with no address.
func (d *Datagram) Connect(a addr.Address) error {
	if !d.gate.enter() {
		return closedErr("connect")
	}
	defer d.gate.leave()

	if a.IsUnnamed() {
		return sockerr.Errorf(sockerr.ETInvalidAddressType, "cannot connect to the unnamed address")
	}
	if err := d.plat.Address.Validate(a); err != nil {
		return err
	}
	if err := d.sm.Transition(statemachine.Idle, statemachine.Connected); err != nil {
		return err
	}
	d.mu.Lock()
	d.remote = &a
	d.recorded = true
	d.mu.Unlock()
	log.V(1).Infof("datagram fd(%d) connected to %q", d.fd, a.String())
	return nil
}

// Disconnect drops the destination set by Connect(). It does nothing if not connected.
func (d *Datagram) Disconnect() error {
	if !d.gate.enter() {
		return closedErr("disconnect")
	}
	defer d.gate.leave()

	if !d.sm.Is(statemachine.Connected) {
		return nil
	}
	if err := d.sm.Transition(statemachine.Connected, statemachine.Idle); err != nil {
		return err
	}
	d.mu.Lock()
	d.remote = nil
	d.recorded = false
	d.mu.Unlock()
	d.resolver.Reset()
	return nil
}

// Credentials returns the identity of the peer of a Datagram made by DatagramPair(). A
// destination set with Connect() has no peer in the kernel, so it returns an
// ErrUnsupportedOperation without a system call. It returns nil if the Datagram is not connected.
func (d *Datagram) Credentials() (*cred.Cred, error) {
	d.mu.Lock()
	recorded := d.recorded
	d.mu.Unlock()

	if recorded && d.Connected() {
		return nil, sockerr.Errorf(sockerr.ETUnsupportedOperation, "credentials: datagram fd(%d) has a destination but no kernel peer", d.fd)
	}
	return d.base.Credentials()
}

// LocalAddr returns the local address, or nil if the Datagram is not bound.
func (d *Datagram) LocalAddr() net.Addr {
	if !d.Bound() {
		return nil
	}
	return toNetAddr(d.localAddr())
}

// RemoteAddr returns the connected destination, or nil if the Datagram is not CONNECTED.
func (d *Datagram) RemoteAddr() net.Addr {
	if !d.Connected() {
		return nil
	}
	return toNetAddr(d.remoteAddr())
}

// destination returns the record to send to and its length. A nil record means the kernel
// already knows the peer, as with socketpair().
func (d *Datagram) destination(to addr.Address) (*addr.Record, int, error) {
	if to.IsUnnamed() {
		if !d.Connected() {
			return nil, 0, sockerr.Errorf(sockerr.ETInvalidState, "destination address cannot be empty on an unconnected datagram channel")
		}
		d.mu.Lock()
		r := d.remote
		d.mu.Unlock()
		if r == nil || r.IsUnnamed() {
			return nil, 0, nil
		}
		to = *r
	}
	return d.plat.Address.Encode(to)
}

// Send sends b as one datagram to "to". If "to" is the unnamed address it goes to the address
// given to Connect().
func (d *Datagram) Send(b []byte, to addr.Address) (int, error) {
	if !d.gate.enter() {
		return 0, closedErr("send")
	}
	defer d.gate.leave()

	rec, n, err := d.destination(to)
	if err != nil {
		return 0, err
	}
	sent, err := d.native.Sendto(d.fd, b, rec, n)
	if err != nil {
		return 0, d.interrupted("send", err)
	}
	return sent, nil
}

// Receive reads one datagram into b and returns the number of bytes and where it came from.
// Senders that are not bound give the unnamed address.
func (d *Datagram) Receive(b []byte) (int, addr.Address, error) {
	if !d.gate.enter() {
		return 0, addr.Address{}, closedErr("receive")
	}
	defer d.gate.leave()

	rec := &addr.Record{}
	n, l, err := d.native.Recvfrom(d.fd, b, rec)
	if err != nil {
		return 0, addr.Address{}, d.interrupted("receive", err)
	}
	if n == 0 && d.gate.isClosed() {
		return 0, addr.Address{}, closedErr("receive")
	}
	return n, d.plat.Address.Decode(rec, l), nil
}

// Read reads one datagram from the connected peer. While IDLE it returns 0 and no error.
func (d *Datagram) Read(b []byte) (int, error) {
	if !d.gate.enter() {
		return 0, closedErr("read")
	}
	defer d.gate.leave()

	st, err := d.sm.Require("read", statemachine.Idle, statemachine.Connected)
	if err != nil {
		return 0, err
	}
	if st == statemachine.Idle {
		return 0, nil
	}

	rec := &addr.Record{}
	n, _, err := d.native.Recvfrom(d.fd, b, rec)
	if err != nil {
		return 0, d.interrupted("read", err)
	}
	if n == 0 && d.gate.isClosed() {
		return 0, closedErr("read")
	}
	return n, nil
}

// Write sends b as one datagram to the connected peer. While IDLE it returns 0 and no error.
func (d *Datagram) Write(b []byte) (int, error) {
	if !d.gate.enter() {
		return 0, closedErr("write")
	}
	defer d.gate.leave()

	st, err := d.sm.Require("write", statemachine.Idle, statemachine.Connected)
	if err != nil {
		return 0, err
	}
	if st == statemachine.Idle {
		return 0, nil
	}

	rec, n, err := d.destination(addr.Address{})
	if err != nil {
		return 0, err
	}
	sent, err := d.native.Sendto(d.fd, b, rec, n)
	if err != nil {
		return 0, d.interrupted("write", err)
	}
	return sent, nil
}

// Close releases the descriptor. A Receive() or Read() blocked in another goroutine returns an
// ErrClosedOrInterrupted.
func (d *Datagram) Close() error {
	return d.close(native.ShutBoth)
}
