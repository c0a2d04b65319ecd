/*
Package channel provides stream and datagram Unix domain socket channels with an explicit
connection lifecycle.

Every channel runs its operations through a statemachine.Machine. A Stream starts in IDLE
(Open) or CONNECTED (Pair, FromFD, Server.Accept). A non-blocking Connect() that cannot finish
at once moves to CONNECTING and FinishConnect() completes it:

	s, err := channel.Open(channel.Blocking(false))
	if err != nil {
		// Do something
	}
	ok, err := s.Connect(addr.Path("/var/run/my.sock"))
	for err == nil && !ok {
		// wait for the descriptor, s.FD(), to be writable with your poller.
		ok, err = s.FinishConnect()
	}

Addresses are encoded with the layout of the running platform (see the platform package). A
channel can be bound at most once. Binding to the unnamed address is an autobind: Linux picks an
abstract name and the channel reads it back; elsewhere a unique path in the temp directory is
used and removed when the channel closes.

Close() may be called while another goroutine is blocked in Accept(), Connect(), Read() or
Receive(). The blocked call returns an ErrClosedOrInterrupted. After Close() a channel is IDLE, has
no addresses and no credentials.

The package does no readiness polling. In non-blocking mode calls that would block return an
error for which sockerr.Retryable() is true.
*/
package channel

import (
	"net"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/cred"
	"github.com/johnsiilver/unixsock/native"
	"github.com/johnsiilver/unixsock/platform"
	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/johnsiilver/unixsock/sockopt"
	"github.com/johnsiilver/unixsock/statemachine"
)

// DefaultBacklog is the listen() backlog used when none is given.
const DefaultBacklog = 128

type config struct {
	binding  native.Binding
	plat     platform.Platform
	blocking bool
	logging  bool
	backlog  int
}

func newConfig(opts []Option) config {
	c := config{blocking: true, backlog: DefaultBacklog}
	for _, o := range opts {
		o(&c)
	}
	if c.binding == nil {
		c.binding = native.NewUnix()
	}
	if c.plat.OS == "" {
		c.plat = platform.Current()
	}
	return c
}

// Option is an optional argument to a channel constructor.
type Option func(c *config)

// Blocking sets the blocking mode of the new channel's descriptor. Channels are blocking by default.
func Blocking(b bool) Option {
	return func(c *config) {
		c.blocking = b
	}
}

// Logging turns on logging of state transitions to glog.
func Logging(b bool) Option {
	return func(c *config) {
		c.logging = b
	}
}

// WithBinding replaces the system call binding. This is used in tests.
func WithBinding(b native.Binding) Option {
	return func(c *config) {
		c.binding = b
	}
}

// WithPlatform replaces the platform description the channel encodes addresses and options with.
// This is used in tests.
func WithPlatform(p platform.Platform) Option {
	return func(c *config) {
		c.plat = p
	}
}

// Backlog sets the listen() backlog for a Server bound by Listen().
func Backlog(n int) Option {
	return func(c *config) {
		c.backlog = n
	}
}

// base is the descriptor, lock and state shared by every kind of channel.
type base struct {
	fd       int
	kind     string
	sotype   sockopt.SocketType
	native   native.Binding
	plat     platform.Platform
	bridge   *sockopt.Bridge
	sm       *statemachine.Machine
	resolver *cred.Resolver
	gate     gate
	guard    BindGuard

	// mu protects the fields below it.
	mu       sync.Mutex
	blocking bool
	local    *addr.Address
	remote   *addr.Address
	// emulated is an autobind path made up by us, removed on Close().
	emulated addr.Address
	// wake is set while a goroutine waits in poll() for a blocking connect.
	wake *wakePipe
}

func newBase(fd int, kind string, st sockopt.SocketType, start statemachine.State, c config) *base {
	var smOpts []statemachine.Option
	if c.logging {
		smOpts = append(smOpts, statemachine.LogFacility(log.Infof))
	}
	sm := statemachine.New(kind, start, smOpts...)
	sm.Log(c.logging)

	return &base{
		fd:       fd,
		kind:     kind,
		sotype:   st,
		native:   c.binding,
		plat:     c.plat,
		bridge:   sockopt.New(c.binding, c.plat.Timeval),
		sm:       sm,
		resolver: cred.NewResolver(c.binding),
		blocking: true,
	}
}

// initBlocking puts a new descriptor in the mode asked for. Descriptors start out blocking.
func (b *base) initBlocking(c config) error {
	if c.blocking {
		return nil
	}
	return b.SetBlocking(false)
}

func closedErr(op string) error {
	return sockerr.Errorf(sockerr.ETClosedOrInterrupted, "%s: channel is closed", op)
}

// interrupted turns the error of a native call that was running when the channel closed into an
// ErrClosedOrInterrupted.
func (b *base) interrupted(op string, err error) error {
	if b.gate.isClosed() {
		return sockerr.Errorf(sockerr.ETClosedOrInterrupted, "%s: interrupted by close: %s", op, err)
	}
	return err
}

// FD returns the socket descriptor, for registering with a poller.
func (b *base) FD() int {
	return b.fd
}

// State returns a snapshot of the lifecycle state.
func (b *base) State() statemachine.State {
	return b.sm.State()
}

// Transitions returns the state transitions made so far.
func (b *base) Transitions() []string {
	return b.sm.Nodes()
}

// Connected reports if the channel is CONNECTED.
func (b *base) Connected() bool {
	return b.sm.Is(statemachine.Connected)
}

// Bound reports if the channel has a local address.
func (b *base) Bound() bool {
	return b.guard.Bound()
}

// BindState reports how the channel came to be bound.
func (b *base) BindState() BindState {
	return b.guard.State()
}

// IsOpen reports if Close() has not been called.
func (b *base) IsOpen() bool {
	return !b.gate.isClosed()
}

// Blocking reports if the descriptor is in blocking mode.
func (b *base) Blocking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocking
}

// SetBlocking changes the blocking mode of the descriptor.
func (b *base) SetBlocking(blocking bool) error {
	if !b.gate.enter() {
		return closedErr("setBlocking")
	}
	defer b.gate.leave()

	if err := b.native.SetBlocking(b.fd, blocking); err != nil {
		return err
	}
	b.mu.Lock()
	b.blocking = blocking
	b.mu.Unlock()
	return nil
}

// GetOption reads o. The value is an int (milliseconds for timeouts), a bool or a cred.Cred
// depending on o.Kind().
func (b *base) GetOption(o sockopt.Option) (interface{}, error) {
	if !b.gate.enter() {
		return nil, closedErr("getOption")
	}
	defer b.gate.leave()

	return b.bridge.Get(b.fd, b.sotype, o)
}

// SetOption writes o. Validation errors are returned before any system call is made.
func (b *base) SetOption(o sockopt.Option, v interface{}) error {
	if !b.gate.enter() {
		return closedErr("setOption")
	}
	defer b.gate.leave()

	return b.bridge.Set(b.fd, b.sotype, o, v)
}

// SupportedOptions lists the options valid for this channel.
func (b *base) SupportedOptions() []sockopt.Option {
	return sockopt.SupportedOptions(b.sotype)
}

// ReadTimeout returns SO_RCVTIMEO. Zero means reads never time out.
func (b *base) ReadTimeout() (time.Duration, error) {
	if !b.gate.enter() {
		return 0, closedErr("readTimeout")
	}
	defer b.gate.leave()

	ms, err := b.bridge.GetInt(b.fd, b.sotype, sockopt.RcvTimeo)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// SetReadTimeout sets SO_RCVTIMEO. It has millisecond granularity.
func (b *base) SetReadTimeout(d time.Duration) error {
	return b.SetOption(sockopt.RcvTimeo, d)
}

// WriteTimeout returns SO_SNDTIMEO.
func (b *base) WriteTimeout() (time.Duration, error) {
	if !b.gate.enter() {
		return 0, closedErr("writeTimeout")
	}
	defer b.gate.leave()

	ms, err := b.bridge.GetInt(b.fd, b.sotype, sockopt.SndTimeo)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// SetWriteTimeout sets SO_SNDTIMEO.
func (b *base) SetWriteTimeout(d time.Duration) error {
	return b.SetOption(sockopt.SndTimeo, d)
}

// Credentials returns the identity of the peer. It returns nil if the channel is not connected.
// Platforms that cannot report it return an ErrUnsupportedOperation.
func (b *base) Credentials() (*cred.Cred, error) {
	if !b.gate.enter() {
		return nil, closedErr("credentials")
	}
	defer b.gate.leave()

	return b.resolver.Resolve(b)
}

// bind runs the bind() through the BindGuard. An unnamed a is an autobind.
func (b *base) bind(a addr.Address) error {
	if !b.gate.enter() {
		return closedErr("bind")
	}
	defer b.gate.leave()

	if err := b.guard.Begin(); err != nil {
		return err
	}
	if _, err := b.sm.Require("bind", statemachine.Idle); err != nil {
		b.guard.Abort()
		return err
	}

	auto := a.IsUnnamed()
	target := a
	if auto {
		var err error
		target, err = b.plat.Address.Autobind()
		if err != nil {
			b.guard.Abort()
			return err
		}
	}

	rec, n, err := b.plat.Address.Encode(target)
	if err != nil {
		b.guard.Abort()
		addr.Release(target)
		return err
	}
	if err := b.native.Bind(b.fd, rec, n); err != nil {
		b.guard.Abort()
		addr.Release(target)
		return err
	}

	local := target
	if got, err := b.sockname(); err == nil && !got.IsUnnamed() {
		local = got
	}
	b.mu.Lock()
	b.local = &local
	if addr.Emulated(target) {
		b.emulated = target
	}
	b.mu.Unlock()
	b.guard.Commit(auto, local)

	log.V(1).Infof("%s fd(%d) bound to %q (autobind: %v)", b.kind, b.fd, local.String(), auto)
	return nil
}

func (b *base) sockname() (addr.Address, error) {
	rec := &addr.Record{}
	n, err := b.native.Getsockname(b.fd, rec)
	if err != nil {
		return addr.Address{}, err
	}
	return b.plat.Address.Decode(rec, n), nil
}

func (b *base) peername() (addr.Address, error) {
	rec := &addr.Record{}
	n, err := b.native.Getpeername(b.fd, rec)
	if err != nil {
		return addr.Address{}, err
	}
	return b.plat.Address.Decode(rec, n), nil
}

// localAddr returns the cached local address, resolving it with getsockname() the first time.
// It returns false once the channel is closed.
func (b *base) localAddr() (addr.Address, bool) {
	if !b.gate.enter() {
		return addr.Address{}, false
	}
	defer b.gate.leave()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.local != nil {
		return *b.local, true
	}
	a, err := b.sockname()
	if err != nil {
		log.V(2).Infof("%s fd(%d) getsockname: %s", b.kind, b.fd, err)
		return addr.Address{}, false
	}
	b.local = &a
	return a, true
}

func (b *base) remoteAddr() (addr.Address, bool) {
	if !b.gate.enter() {
		return addr.Address{}, false
	}
	defer b.gate.leave()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remote != nil {
		return *b.remote, true
	}
	a, err := b.peername()
	if err != nil {
		log.V(2).Infof("%s fd(%d) getpeername: %s", b.kind, b.fd, err)
		return addr.Address{}, false
	}
	b.remote = &a
	return a, true
}

func (b *base) setRemote(a *addr.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = a
}

// close shuts the descriptor down to wake any goroutine blocked on it, waits for in-flight
// operations to leave and then releases the descriptor.
func (b *base) close(how int) error {
	if !b.gate.close() {
		return nil
	}

	if err := b.native.Shutdown(b.fd, how); err != nil {
		log.V(2).Infof("%s fd(%d) shutdown on close: %s", b.kind, b.fd, err)
	}
	// shutdown() does not wake a connect() waiting for room in a listener's queue.
	b.signalWake()
	b.gate.wait()

	if st := b.sm.State(); st != statemachine.Idle {
		if err := b.sm.Transition(st, statemachine.Idle); err != nil {
			log.V(2).Infof("%s fd(%d) close: %s", b.kind, b.fd, err)
		}
	}

	err := b.native.Close(b.fd)
	b.resolver.Reset()

	b.mu.Lock()
	emu := b.emulated
	b.emulated = addr.Address{}
	b.mu.Unlock()
	if !emu.IsUnnamed() {
		if rerr := addr.Release(emu); rerr != nil {
			log.Warning(rerr)
		}
	}

	log.V(1).Infof("%s fd(%d) closed", b.kind, b.fd)
	return err
}

// toNetAddr returns a as a net.Addr, or nil if ok is false.
func toNetAddr(a addr.Address, ok bool) net.Addr {
	if !ok {
		return nil
	}
	return a
}
