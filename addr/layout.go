package addr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/johnsiilver/unixsock/sockerr"
)

// RecordSize is the size of a Record. It is large enough to hold the sockaddr_un of every
// supported platform; a Layout only uses its own Size() bytes of it.
const RecordSize = 110

// familyUnix is AF_UNIX. It is 1 on every platform we support.
const familyUnix = 1

// Record is the native sockaddr_un buffer handed to and filled by system calls. A Record is owned
// by a single call and never shared.
type Record [RecordSize]byte

type variant uint8

const (
	variantLinux variant = iota
	variantSolaris
	variantBSD
)

// Layout describes the shape of sockaddr_un on a family of platforms. The zero value is not
// usable, use one of Linux, Solaris or BSD.
type Layout struct {
	variant variant
	name    string
	// pathMax is the largest payload that fits after the header.
	pathMax int
}

var (
	// Linux is the layout used by Linux: a 2 byte native endian family then the path. The kernel
	// reports exact address lengths and supports the abstract namespace and autobind.
	Linux = Layout{variant: variantLinux, name: "linux", pathMax: 106}

	// Solaris has the same shape as Linux (2 byte family then path), but lengths reported by the
	// kernel are not exact and there is no abstract namespace.
	Solaris = Layout{variant: variantSolaris, name: "solaris", pathMax: 106}

	// BSD is the layout of the BSD derived systems (including Darwin): a 1 byte length, a 1 byte
	// family and then the path.
	BSD = Layout{variant: variantBSD, name: "bsd", pathMax: 104}
)

// Name returns the name of the layout.
func (l Layout) Name() string {
	return l.name
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout(%s)", l.name)
}

// HeaderLen is the number of bytes before the path field.
func (l Layout) HeaderLen() int {
	return 2
}

// PathMax is the largest payload, in bytes, this layout can encode.
func (l Layout) PathMax() int {
	return l.pathMax
}

// Size is the full size of the record on this layout, header included.
func (l Layout) Size() int {
	return l.HeaderLen() + l.pathMax
}

// Abstract reports if the layout supports the abstract namespace.
func (l Layout) Abstract() bool {
	return l.variant == variantLinux
}

// KernelAutobind reports if binding to the unnamed address makes the kernel pick a name.
func (l Layout) KernelAutobind() bool {
	return l.variant == variantLinux
}

// ExactLength reports if the kernel reported length always delimits the name exactly.
func (l Layout) ExactLength() bool {
	return l.variant == variantLinux
}

// Validate checks that a can be encoded with this layout.
func (l Layout) Validate(a Address) error {
	name := a.name
	if len(name) > l.pathMax {
		return sockerr.Errorf(
			sockerr.ETAddressTooLong,
			"address %q is %d bytes, the most %s allows is %d", a.String(), len(name), l.name, l.pathMax,
		)
	}
	if name == "" {
		return nil
	}
	if name[0] == 0 && !l.Abstract() {
		return sockerr.Errorf(sockerr.ETInvalidAddressType, "abstract namespace addresses are not supported on %s", l.name)
	}
	if i := strings.IndexByte(name[1:], 0); i >= 0 {
		return sockerr.Errorf(sockerr.ETInvalidAddressType, "address %q has an embedded NUL at byte %d", a.String(), i+1)
	}
	return nil
}

// Encode writes a into a Record and returns it with the length to pass to the system call
// (header plus payload). The unnamed address encodes to just the header, which on Linux is a
// request for the kernel to autobind.
func (l Layout) Encode(a Address) (*Record, int, error) {
	if err := l.Validate(a); err != nil {
		return nil, 0, err
	}
	rec := &Record{}
	switch l.variant {
	case variantBSD:
		rec[0] = byte(len(a.name))
		rec[1] = familyUnix
	default:
		binary.NativeEndian.PutUint16(rec[0:2], familyUnix)
	}
	copy(rec[l.HeaderLen():], a.name)
	return rec, l.HeaderLen() + len(a.name), nil
}

// Family returns the family field held in rec.
func (l Layout) Family(rec *Record) uint16 {
	if l.variant == variantBSD {
		return uint16(rec[1])
	}
	return binary.NativeEndian.Uint16(rec[0:2])
}

// Decode returns the Address held in rec. reported is the address length the kernel returned
// from accept(), recvfrom(), getsockname() or getpeername(); it is authoritative and is never
// exceeded. A reported length at or below the header length is the unnamed address.
//
// On Linux the payload is exactly reported-HeaderLen() bytes. Abstract names are kept verbatim.
// A filesystem name is a C string to the kernel, which reports its length with the terminator,
// so it is cut at its first NUL. Other platforms may report lengths that do not match the name (some report the
// size of the whole path field), so the path is cut at the first NUL in the field and then
// limited to the reported length.
func (l Layout) Decode(rec *Record, reported int) Address {
	hl := l.HeaderLen()
	if reported <= hl {
		return Address{}
	}
	if reported > l.Size() {
		reported = l.Size()
	}
	limit := reported - hl

	if l.variant == variantLinux {
		payload := rec[hl:reported]
		if payload[0] == 0 {
			return Address{name: string(payload)}
		}
		if i := bytes.IndexByte(payload, 0); i >= 0 {
			payload = payload[:i]
		}
		return Address{name: string(payload)}
	}

	field := rec[hl:l.Size()]
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		n = len(field)
	}
	if n > limit {
		n = limit
	}
	return Address{name: string(field[:n])}
}
