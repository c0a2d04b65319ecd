package channel

import (
	"fmt"
	"sync"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/sockerr"
)

// BindState is how a channel came to have a local address.
type BindState int

const (
	// Unbound has no local address.
	Unbound BindState = 0
	// AutobindRequested was bound with no address, so the name was picked for us.
	AutobindRequested BindState = 1
	// ExplicitlyBound was bound to an address the caller gave.
	ExplicitlyBound BindState = 2
)

func (b BindState) String() string {
	switch b {
	case Unbound:
		return "Unbound"
	case AutobindRequested:
		return "AutobindRequested"
	case ExplicitlyBound:
		return "ExplicitlyBound"
	}
	return fmt.Sprintf("BindState(%d)", int(b))
}

// BindGuard allows a channel to be bound at most once. Begin() reserves the bind, and the caller
// then either Commit()s or Abort()s it. Once committed the state never goes back to Unbound.
type BindGuard struct {
	mu      sync.Mutex
	state   BindState
	pending bool
	local   addr.Address
}

// Begin reserves the bind. It fails with ErrAlreadyBound if the channel is bound or another bind
// is in flight, whatever address is being asked for.
func (g *BindGuard) Begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Unbound || g.pending {
		return sockerr.Errorf(sockerr.ETAlreadyBound, "socket is already bound")
	}
	g.pending = true
	return nil
}

// Commit records a successful bind to local.
func (g *BindGuard) Commit(autobind bool, local addr.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = false
	g.local = local
	if autobind {
		g.state = AutobindRequested
		return
	}
	g.state = ExplicitlyBound
}

// Abort gives up a reservation made by Begin().
func (g *BindGuard) Abort() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = false
}

// MarkBound records a descriptor that is bound by the kernel without a bind() call, such as
// the result of accept() or socketpair().
func (g *BindGuard) MarkBound() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Unbound {
		g.state = ExplicitlyBound
	}
}

// State returns the current BindState.
func (g *BindGuard) State() BindState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Bound reports if a bind has completed.
func (g *BindGuard) Bound() bool {
	return g.State() != Unbound
}

// Local returns the address recorded by Commit(), if any.
func (g *BindGuard) Local() (addr.Address, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.local, g.state != Unbound && !g.local.IsUnnamed()
}
