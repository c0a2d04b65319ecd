/*
Package addr provides the Unix domain socket address and its native encoding.

An Address is either unnamed, a filesystem path, or (Linux only) a name in the abstract namespace.
Abstract names are told apart from paths only by a leading NUL byte, the same as the kernel does:

	a := addr.Path("/tmp/my.sock")
	b := addr.Abstract("my-service") // Name() is "\x00my-service", String() is "@my-service"

Addresses are turned into the fixed size native sockaddr_un record by a Layout. There is one Layout
per family of platforms (Linux, Solaris, BSD), chosen once at startup by the platform package. The
Layout also knows how to decode what the kernel hands back from accept(), getsockname() and
getpeername(), which is where the platforms disagree the most.

Addresses are immutable and can be shared between goroutines.
*/
package addr

import (
	"fmt"
	"net"
	"strings"

	"github.com/johnsiilver/unixsock/sockerr"
)

// Kind is the kind of address an Address holds.
type Kind uint8

const (
	// Unnamed is an address with no name. Socket pairs and unbound sockets have this.
	Unnamed Kind = iota
	// Filesystem is an address that is a path in the filesystem.
	Filesystem
	// AbstractNamespace is a Linux abstract namespace address. It has no filesystem entry.
	AbstractNamespace
)

func (k Kind) String() string {
	switch k {
	case Unnamed:
		return "unnamed"
	case Filesystem:
		return "filesystem"
	case AbstractNamespace:
		return "abstract"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Address is a Unix domain socket address. The zero value is the unnamed address.
// Address implements net.Addr.
type Address struct {
	name string
}

// Path returns the Address for the filesystem path p. An empty p is the unnamed address.
func Path(p string) Address {
	return Address{name: p}
}

// Abstract returns the Address for name in the Linux abstract namespace.
func Abstract(name string) Address {
	return Address{name: "\x00" + name}
}

// Raw returns the Address whose payload is exactly b. A leading NUL makes it abstract.
func Raw(b []byte) Address {
	return Address{name: string(b)}
}

// FromNetAddr converts a net.Addr into an Address. Only *net.UnixAddr and Address are
// accepted. A nil a returns the unnamed address.
func FromNetAddr(a net.Addr) (Address, error) {
	switch v := a.(type) {
	case nil:
		return Address{}, nil
	case Address:
		return v, nil
	case *Address:
		if v == nil {
			return Address{}, nil
		}
		return *v, nil
	case *net.UnixAddr:
		if v == nil {
			return Address{}, nil
		}
		switch v.Net {
		case "", "unix", "unixgram", "unixpacket":
		default:
			return Address{}, sockerr.Errorf(sockerr.ETInvalidAddressType, "network %q is not a unix network", v.Net)
		}
		// The net package spells abstract names with a leading '@'.
		if strings.HasPrefix(v.Name, "@") {
			return Abstract(v.Name[1:]), nil
		}
		return Path(v.Name), nil
	}
	return Address{}, sockerr.Errorf(sockerr.ETInvalidAddressType, "address %v of type %T is not a unix socket address", a, a)
}

// Kind returns the kind of address.
func (a Address) Kind() Kind {
	switch {
	case a.name == "":
		return Unnamed
	case a.name[0] == 0:
		return AbstractNamespace
	}
	return Filesystem
}

// IsUnnamed reports if the address has no name.
func (a Address) IsUnnamed() bool {
	return a.name == ""
}

// IsAbstract reports if the address is in the abstract namespace.
func (a Address) IsAbstract() bool {
	return a.Kind() == AbstractNamespace
}

// Name returns the address payload as the kernel sees it. For abstract addresses this includes
// the leading NUL.
func (a Address) Name() string {
	return a.name
}

// Path returns the filesystem path, or "" if this is not a filesystem address.
func (a Address) Path() string {
	if a.Kind() != Filesystem {
		return ""
	}
	return a.name
}

// Len returns the payload length in bytes.
func (a Address) Len() int {
	return len(a.name)
}

// Equal reports if a and b are the same address.
func (a Address) Equal(b Address) bool {
	return a.name == b.name
}

// Network implements net.Addr.Network().
func (a Address) Network() string {
	return "unix"
}

// String implements net.Addr.String(). Abstract names are printed with a leading '@' the way
// the net package and ss(8) print them. Unnamed addresses print as "".
func (a Address) String() string {
	if a.IsAbstract() {
		return "@" + a.name[1:]
	}
	return a.name
}

// UnixAddr returns the address as a *net.UnixAddr for the given network ("unix", "unixgram").
func (a Address) UnixAddr(network string) *net.UnixAddr {
	return &net.UnixAddr{Name: a.String(), Net: network}
}
