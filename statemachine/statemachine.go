/*
Package statemachine provides the lifecycle state machine shared by every channel.

A Machine holds one State and the lock that guards it. Callers check and move the state with
Require() and Transition(), which hold the lock only for the check or the check plus the
mutation. The lock is never held while a system call runs, so a native connect() that blocks
does not stop another goroutine from reading the state.

The typical sequence for an operation that calls the kernel is:

	if _, err := m.Require("connect", statemachine.Idle); err != nil {
		return err
	}
	err := doConnect()
	...
	if err := m.Transition(statemachine.Idle, statemachine.Connected); err != nil {
		return err
	}

If you would like a running diagnostic mixed with your other logs, provide a LogFn and turn it on:

	log := func(s string, i ...interface{}) {
		glog.Infof(s, i...)
	}

	m := statemachine.New("stream", statemachine.Idle, statemachine.LogFacility(log))
	m.Log(true)

Every transition made is kept and is available from Machine.Nodes().
*/
package statemachine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/johnsiilver/unixsock/sockerr"
)

// State is the lifecycle state of a channel.
type State int32

const (
	// Uninitialized is never held by an open channel.
	Uninitialized State = 0
	// Idle is open and not connected. The channel may or may not be bound.
	Idle State = 1
	// Connecting is a non-blocking connect() that has not finished.
	Connecting State = 2
	// Connected is a channel whose connect() completed or that came from accept() or socketpair().
	Connected State = 3
)

var stateNames = map[State]string{
	Uninitialized: "UNINITIALIZED",
	Idle:          "IDLE",
	Connecting:    "CONNECTING",
	Connected:     "CONNECTED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// edges are the legal transitions. A transition to the current state is never legal.
var edges = map[State][]State{
	Uninitialized: {Idle, Connected},
	Idle:          {Connecting, Connected},
	Connecting:    {Connected, Idle},
	Connected:     {Idle},
}

func legal(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LogFn represents some logging function to handle logging when Machine.Log(true) is set. It should do
// variable substituion similar to fmt.Sprintf() does.
type LogFn func(s string, i ...interface{})

// Option provides an optional argument for New().
type Option func(m *Machine)

// LogFacility sets up the internal log function for Machine for when Machine.Log(true) is called.
func LogFacility(l LogFn) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// Machine holds the state of one channel. It is safe for concurrent use.
type Machine struct {
	// name is used to prepend logging messages as a unique identifier.
	name string

	// mu protects state, nodes and logOn. It is held only across a state check and its mutation.
	mu    sync.RWMutex
	state State

	// nodes are the transitions made, in order, as "FROM->TO".
	nodes []string

	logger LogFn
	logOn  bool
}

// New is the constructor for Machine. "start" is the initial state, normally Idle for an unconnected
// channel or Connected for one made from an already connected descriptor.
func New(name string, start State, opts ...Option) *Machine {
	m := &Machine{name: name, state: start, nodes: make([]string, 0, 4)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Is reports if the current state is one of states.
func (m *Machine) Is(states ...State) bool {
	s := m.State()
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}

// Require returns the current state if it is one of allowed. Otherwise it returns an ErrInvalidState
// naming op.
func (m *Machine) Require(op string, allowed ...State) (State, error) {
	s := m.State()
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return s, sockerr.Errorf(sockerr.ETInvalidState, "%s: invalid in state %s, must be %s", op, s, join(allowed))
}

// Transition moves the machine from "from" to "to". It fails with ErrInvalidState if the current
// state is not "from", which happens when another goroutine moved the state first, or if the edge
// is not a legal one.
func (m *Machine) Transition(from, to State) error {
	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return sockerr.Errorf(sockerr.ETInvalidState, "cannot move to %s: state is %s, not %s", to, cur, from)
	}
	if !legal(from, to) {
		m.mu.Unlock()
		return sockerr.Errorf(sockerr.ETInvalidState, "%s->%s is not a legal transition", from, to)
	}
	m.state = to
	node := from.String() + "->" + to.String()
	m.nodes = append(m.nodes, node)
	m.mu.Unlock()

	m.log("transition %s", node)
	return nil
}

// Nodes returns the transitions made so far.
func (m *Machine) Nodes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := make([]string, len(m.nodes))
	copy(n, m.nodes)
	return n
}

// Log turns on/off detailed logging of transitions. To use this you must have provided New() with the LogFacility() option.
func (m *Machine) Log(b bool) {
	if m.logger == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.logOn = b
}

func (m *Machine) log(s string, i ...interface{}) {
	m.mu.RLock()
	on := m.logOn
	m.mu.RUnlock()

	if on && m.logger != nil {
		m.logger(fmt.Sprintf("StateMachine[%s]: %s", m.name, s), i...)
	}
}

func join(states []State) string {
	s := make([]string, 0, len(states))
	for _, st := range states {
		s = append(s, st.String())
	}
	return strings.Join(s, " or ")
}
