/*
Package sockopt bridges the small set of socket options that make sense on Unix domain sockets to
their native getsockopt/setsockopt encodings.

Each Option carries everything needed to handle it: the native level and name, the kind of value
(integer, boolean, duration or credentials), whether it can be written, and which socket types
support it. There is no second table to keep in sync.

Durations (SO_RCVTIMEO, SO_SNDTIMEO) are milliseconds to callers and a struct timeval to the
kernel. The shape of struct timeval differs between platforms and is described by a TimevalLayout
chosen once by the platform package.

Note on buffer sizes: what SO_RCVBUF/SO_SNDBUF read back after a set is up to the kernel. Linux
doubles the value (to account for bookkeeping overhead) and clamps it to a minimum, other kernels
round it. The Bridge does not try to hide this.
*/
package sockopt

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind is the kind of value an Option holds.
type Kind uint8

const (
	// Int options hold a native int.
	Int Kind = iota
	// Bool options hold 0 or 1 in a native int.
	Bool
	// Duration options hold a struct timeval and are milliseconds to callers.
	Duration
	// Credentials options hold the peer credential record.
	Credentials
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Duration:
		return "duration"
	case Credentials:
		return "credentials"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// SocketType is the type of socket an option is used on.
type SocketType int

const (
	// Stream is SOCK_STREAM.
	Stream SocketType = unix.SOCK_STREAM
	// Datagram is SOCK_DGRAM.
	Datagram SocketType = unix.SOCK_DGRAM
)

func (s SocketType) String() string {
	switch s {
	case Stream:
		return "stream"
	case Datagram:
		return "datagram"
	}
	return fmt.Sprintf("SocketType(%d)", int(s))
}

// Option describes a socket option.
type Option struct {
	name  string
	level int
	// opt is the native option name, -1 if the platform does not have it.
	opt  int
	kind Kind
	// writable is false for options that can only be read, like SO_PEERCRED.
	writable bool
	// streamOnly options are not supported on datagram sockets.
	streamOnly bool
	// nonNegative options reject negative values before the native call.
	nonNegative bool
}

// Name is the name of the option, like "SO_RCVBUF".
func (o Option) Name() string {
	return o.name
}

func (o Option) String() string {
	return o.name
}

// Kind returns the kind of value the option holds.
func (o Option) Kind() Kind {
	return o.kind
}

// Writable reports if the option can be set.
func (o Option) Writable() bool {
	return o.writable
}

// Supported reports if the option can be used on a socket of type st on this platform.
func (o Option) Supported(st SocketType) bool {
	if o.opt < 0 {
		return false
	}
	if o.streamOnly && st != Stream {
		return false
	}
	return true
}

var (
	// SndBuf is the size of the socket send buffer.
	SndBuf = Option{name: "SO_SNDBUF", level: unix.SOL_SOCKET, opt: unix.SO_SNDBUF, kind: Int, writable: true, nonNegative: true}

	// SndTimeo is the send timeout in milliseconds. 0 means no timeout.
	SndTimeo = Option{name: "SO_SNDTIMEO", level: unix.SOL_SOCKET, opt: unix.SO_SNDTIMEO, kind: Duration, writable: true, nonNegative: true}

	// RcvBuf is the size of the socket receive buffer.
	RcvBuf = Option{name: "SO_RCVBUF", level: unix.SOL_SOCKET, opt: unix.SO_RCVBUF, kind: Int, writable: true, nonNegative: true}

	// RcvTimeo is the receive timeout in milliseconds. 0 means no timeout.
	RcvTimeo = Option{name: "SO_RCVTIMEO", level: unix.SOL_SOCKET, opt: unix.SO_RCVTIMEO, kind: Duration, writable: true, nonNegative: true}

	// KeepAlive keeps the connection alive. Stream sockets only.
	KeepAlive = Option{name: "SO_KEEPALIVE", level: unix.SOL_SOCKET, opt: unix.SO_KEEPALIVE, kind: Bool, writable: true, streamOnly: true}

	// PeerCred fetches the peer credentials. Read only.
	PeerCred = Option{name: "SO_PEERCRED", level: peerCredLevel, opt: peerCredOpt, kind: Credentials}

	// PassCred enables receiving SCM_CREDENTIALS control messages.
	PassCred = Option{name: "SO_PASSCRED", level: unix.SOL_SOCKET, opt: passCredOpt, kind: Bool, writable: true}
)

var all = []Option{SndBuf, SndTimeo, RcvBuf, RcvTimeo, KeepAlive, PeerCred, PassCred}

// All returns every option the package knows about, supported here or not.
func All() []Option {
	out := make([]Option, len(all))
	copy(out, all)
	return out
}

// Lookup finds an option by name.
func Lookup(name string) (Option, bool) {
	for _, o := range all {
		if o.name == name {
			return o, true
		}
	}
	return Option{}, false
}

// SupportedOptions returns the options usable on a socket of type st.
func SupportedOptions(st SocketType) []Option {
	var out []Option
	for _, o := range all {
		if o.Supported(st) {
			out = append(out, o)
		}
	}
	return out
}
