package sockopt

import (
	"time"

	"github.com/johnsiilver/unixsock/cred"
	"github.com/johnsiilver/unixsock/sockerr"
)

// Native is the part of the system call binding the Bridge needs.
type Native interface {
	cred.Native
	SetsockoptInt(fd, level, opt, value int) error
	SetsockoptBytes(fd, level, opt int, buf []byte) error
}

// Bridge reads and writes options on a descriptor.
type Bridge struct {
	native  Native
	timeval TimevalLayout
}

// New is the constructor for Bridge. tv is the struct timeval shape of the platform.
func New(n Native, tv TimevalLayout) *Bridge {
	return &Bridge{native: n, timeval: tv}
}

func (b *Bridge) check(st SocketType, o Option) error {
	if !o.Supported(st) {
		return sockerr.Errorf(sockerr.ETUnsupportedOption, "'%s' not supported", o.name)
	}
	return nil
}

// Get reads option o from fd, a socket of type st. The returned value is an int for Int and
// Duration (milliseconds) options, a bool for Bool options and a cred.Cred for Credentials.
func (b *Bridge) Get(fd int, st SocketType, o Option) (interface{}, error) {
	if err := b.check(st, o); err != nil {
		return nil, err
	}

	switch o.kind {
	case Int:
		return b.native.GetsockoptInt(fd, o.level, o.opt)
	case Bool:
		v, err := b.native.GetsockoptInt(fd, o.level, o.opt)
		if err != nil {
			return nil, err
		}
		return v != 0, nil
	case Duration:
		buf := make([]byte, b.timeval.Size())
		n, err := b.native.GetsockoptBytes(fd, o.level, o.opt, buf)
		if err != nil {
			return nil, err
		}
		return b.timeval.Decode(buf[:n])
	case Credentials:
		return cred.Fetch(b.native, fd)
	}
	return nil, sockerr.Errorf(sockerr.ETUnsupportedOption, "'%s' has unknown kind %v", o.name, o.kind)
}

// GetInt reads an Int or Duration option.
func (b *Bridge) GetInt(fd int, st SocketType, o Option) (int, error) {
	if o.kind != Int && o.kind != Duration {
		return 0, sockerr.Errorf(sockerr.ETInvalidOptionValue, "'%s' is a %v option, not an int", o.name, o.kind)
	}
	v, err := b.Get(fd, st, o)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// GetBool reads a Bool option.
func (b *Bridge) GetBool(fd int, st SocketType, o Option) (bool, error) {
	if o.kind != Bool {
		return false, sockerr.Errorf(sockerr.ETInvalidOptionValue, "'%s' is a %v option, not a bool", o.name, o.kind)
	}
	v, err := b.Get(fd, st, o)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Set writes v to option o on fd, a socket of type st. Validation happens before any native call:
// unsupported options fail with ErrUnsupportedOption, read only options with ErrReadOnlyOption and
// bad values (wrong type, negative buffer sizes or timeouts) with ErrInvalidOptionValue.
//
// Int options take any Go integer. Duration options take an integer number of milliseconds or a
// time.Duration. Bool options take a bool.
func (b *Bridge) Set(fd int, st SocketType, o Option, v interface{}) error {
	if err := b.check(st, o); err != nil {
		return err
	}
	if !o.writable {
		return sockerr.Errorf(sockerr.ETReadOnlyOption, "option not found or not writable")
	}
	if v == nil {
		return sockerr.Errorf(sockerr.ETInvalidOptionValue, "invalid option value")
	}

	switch o.kind {
	case Bool:
		on, ok := v.(bool)
		if !ok {
			return sockerr.Errorf(sockerr.ETInvalidOptionValue, "'%s' takes a bool, got %T", o.name, v)
		}
		i := 0
		if on {
			i = 1
		}
		return b.native.SetsockoptInt(fd, o.level, o.opt, i)
	case Int, Duration:
		i, ok := toInt(o.kind, v)
		if !ok {
			return sockerr.Errorf(sockerr.ETInvalidOptionValue, "'%s' takes an integer, got %T", o.name, v)
		}
		if o.nonNegative && i < 0 {
			if o.kind == Duration {
				return sockerr.Errorf(sockerr.ETInvalidOptionValue, "invalid send/receive timeout")
			}
			return sockerr.Errorf(sockerr.ETInvalidOptionValue, "invalid send/receive buffer size")
		}
		if o.kind == Duration {
			return b.native.SetsockoptBytes(fd, o.level, o.opt, b.timeval.Encode(i))
		}
		return b.native.SetsockoptInt(fd, o.level, o.opt, i)
	}
	return sockerr.Errorf(sockerr.ETReadOnlyOption, "option not found or not writable")
}

func toInt(k Kind, v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case time.Duration:
		if k != Duration {
			return 0, false
		}
		return int(x / time.Millisecond), true
	}
	return 0, false
}
