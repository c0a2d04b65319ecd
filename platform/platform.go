/*
Package platform describes how Unix domain sockets behave on the running OS.

The description is computed once, on first use, and never changes after that. Everything that
differs across platforms (the sockaddr_un layout, the struct timeval layout, kernel autobind and
peer credential support) is looked up here instead of being decided at each call site.
*/
package platform

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/sockopt"
)

// Platform is a read only description of a platform.
type Platform struct {
	// OS is the GOOS value this describes.
	OS string
	// Address is the sockaddr_un layout.
	Address addr.Layout
	// Timeval is the struct timeval layout used for timeouts.
	Timeval sockopt.TimevalLayout
	// PeerCred reports if the kernel can tell us who is on the other end of a socket.
	PeerCred bool
}

// KernelAutobind reports if binding to no address has the kernel pick an abstract name.
func (p Platform) KernelAutobind() bool {
	return p.Address.KernelAutobind()
}

func (p Platform) String() string {
	return fmt.Sprintf("Platform{OS: %s, Address: %s, Timeval: %s, PeerCred: %v}", p.OS, p.Address.Name(), p.Timeval, p.PeerCred)
}

var (
	once    sync.Once
	current Platform
)

// Current returns the Platform of the running process.
func Current() Platform {
	once.Do(func() {
		current = For(runtime.GOOS)
	})
	return current
}

// For returns the Platform for goos. Unknown values get the Solaris shaped defaults, which
// make no assumptions about exact lengths or the abstract namespace.
func For(goos string) Platform {
	switch goos {
	case "linux", "android":
		return Platform{OS: goos, Address: addr.Linux, Timeval: sockopt.TimevalLong, PeerCred: true}
	case "darwin", "ios":
		return Platform{OS: goos, Address: addr.BSD, Timeval: sockopt.TimevalInt32Usec, PeerCred: true}
	case "freebsd", "dragonfly":
		return Platform{OS: goos, Address: addr.BSD, Timeval: sockopt.TimevalLong}
	case "openbsd", "netbsd":
		return Platform{OS: goos, Address: addr.BSD, Timeval: sockopt.TimevalInt64Sec}
	case "aix":
		return Platform{OS: goos, Address: addr.Solaris, Timeval: sockopt.TimevalInt32Usec}
	}
	return Platform{OS: goos, Address: addr.Solaris, Timeval: sockopt.TimevalLong}
}
