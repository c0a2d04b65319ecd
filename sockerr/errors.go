/*
Package sockerr holds the error types returned by the unixsock packages.

Every error returned by addr, sockopt, cred and channel can be classified with Type(), even when it
has been wrapped with fmt.Errorf("%w"). Errors coming back from the kernel are an ErrNativeCall,
which keeps the errno so callers can tell transient conditions from permanent ones with Retryable().

	if sockerr.Type(err) == sockerr.ETAlreadyBound {
		// Bind was called twice.
	}
*/
package sockerr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrType indicates the type of error.
type ErrType int8

const (
	// ETUnknown means the error is not one of ours.
	ETUnknown ErrType = 0
	// ETAddressTooLong means to use the ErrAddressTooLong type.
	ETAddressTooLong ErrType = 1
	// ETInvalidAddressType means to use the ErrInvalidAddressType type.
	ETInvalidAddressType ErrType = 2
	// ETAlreadyBound means to use the ErrAlreadyBound type.
	ETAlreadyBound ErrType = 3
	// ETNotYetBound means to use the ErrNotYetBound type.
	ETNotYetBound ErrType = 4
	// ETInvalidState means to use the ErrInvalidState type.
	ETInvalidState ErrType = 5
	// ETUnsupportedOption means to use the ErrUnsupportedOption type.
	ETUnsupportedOption ErrType = 6
	// ETInvalidOptionValue means to use the ErrInvalidOptionValue type.
	ETInvalidOptionValue ErrType = 7
	// ETReadOnlyOption means to use the ErrReadOnlyOption type.
	ETReadOnlyOption ErrType = 8
	// ETNativeCall means the error is an ErrNativeCall. Use Native() to build one.
	ETNativeCall ErrType = 9
	// ETClosedOrInterrupted means to use the ErrClosedOrInterrupted type.
	ETClosedOrInterrupted ErrType = 10
	// ETUnsupportedOperation means to use the ErrUnsupportedOperation type.
	ETUnsupportedOperation ErrType = 11
)

var typeNames = map[ErrType]string{
	ETUnknown:              "Unknown",
	ETAddressTooLong:       "AddressTooLong",
	ETInvalidAddressType:   "InvalidAddressType",
	ETAlreadyBound:         "AlreadyBound",
	ETNotYetBound:          "NotYetBound",
	ETInvalidState:         "InvalidState",
	ETUnsupportedOption:    "UnsupportedOption",
	ETInvalidOptionValue:   "InvalidOptionValue",
	ETReadOnlyOption:       "ReadOnlyOption",
	ETNativeCall:           "NativeCallFailed",
	ETClosedOrInterrupted:  "ClosedOrInterrupted",
	ETUnsupportedOperation: "UnsupportedOperation",
}

func (e ErrType) String() string {
	if s, ok := typeNames[e]; ok {
		return s
	}
	return fmt.Sprintf("ErrType(%d)", int8(e))
}

type typer interface {
	errType() ErrType
}

type setter interface {
	set(msg string) error
}

// ErrAddressTooLong indicates an address payload does not fit in the native address record.
type ErrAddressTooLong struct {
	msg string
}

func (e ErrAddressTooLong) Error() string       { return e.msg }
func (e ErrAddressTooLong) errType() ErrType    { return ETAddressTooLong }
func (e ErrAddressTooLong) set(msg string) error { return ErrAddressTooLong{msg: msg} }

// ErrInvalidAddressType indicates an address that is not a local (AF_UNIX) address, or one that is
// malformed for this family (such as an embedded NUL past the first byte).
type ErrInvalidAddressType struct {
	msg string
}

func (e ErrInvalidAddressType) Error() string       { return e.msg }
func (e ErrInvalidAddressType) errType() ErrType    { return ETInvalidAddressType }
func (e ErrInvalidAddressType) set(msg string) error { return ErrInvalidAddressType{msg: msg} }

// ErrAlreadyBound indicates Bind() was called on a channel that is already bound.
type ErrAlreadyBound struct {
	msg string
}

func (e ErrAlreadyBound) Error() string       { return e.msg }
func (e ErrAlreadyBound) errType() ErrType    { return ETAlreadyBound }
func (e ErrAlreadyBound) set(msg string) error { return ErrAlreadyBound{msg: msg} }

// ErrNotYetBound indicates an operation that requires a bound channel was called on an unbound one.
type ErrNotYetBound struct {
	msg string
}

func (e ErrNotYetBound) Error() string       { return e.msg }
func (e ErrNotYetBound) errType() ErrType    { return ETNotYetBound }
func (e ErrNotYetBound) set(msg string) error { return ErrNotYetBound{msg: msg} }

// ErrInvalidState indicates an operation was attempted outside the channel state where it is legal.
type ErrInvalidState struct {
	msg string
}

func (e ErrInvalidState) Error() string       { return e.msg }
func (e ErrInvalidState) errType() ErrType    { return ETInvalidState }
func (e ErrInvalidState) set(msg string) error { return ErrInvalidState{msg: msg} }

// ErrUnsupportedOption indicates the socket option is not supported by the channel's socket type.
type ErrUnsupportedOption struct {
	msg string
}

func (e ErrUnsupportedOption) Error() string       { return e.msg }
func (e ErrUnsupportedOption) errType() ErrType    { return ETUnsupportedOption }
func (e ErrUnsupportedOption) set(msg string) error { return ErrUnsupportedOption{msg: msg} }

// ErrInvalidOptionValue indicates an option value was rejected before the native call, such as
// a negative buffer size or timeout.
type ErrInvalidOptionValue struct {
	msg string
}

func (e ErrInvalidOptionValue) Error() string       { return e.msg }
func (e ErrInvalidOptionValue) errType() ErrType    { return ETInvalidOptionValue }
func (e ErrInvalidOptionValue) set(msg string) error { return ErrInvalidOptionValue{msg: msg} }

// ErrReadOnlyOption indicates Set was called on an option that can only be read.
type ErrReadOnlyOption struct {
	msg string
}

func (e ErrReadOnlyOption) Error() string       { return e.msg }
func (e ErrReadOnlyOption) errType() ErrType    { return ETReadOnlyOption }
func (e ErrReadOnlyOption) set(msg string) error { return ErrReadOnlyOption{msg: msg} }

// ErrClosedOrInterrupted indicates the channel was closed, possibly while another goroutine was
// blocked in a call on it.
type ErrClosedOrInterrupted struct {
	msg string
}

func (e ErrClosedOrInterrupted) Error() string       { return e.msg }
func (e ErrClosedOrInterrupted) errType() ErrType    { return ETClosedOrInterrupted }
func (e ErrClosedOrInterrupted) set(msg string) error { return ErrClosedOrInterrupted{msg: msg} }

// ErrUnsupportedOperation indicates the platform or socket type has no kernel support for the
// operation, such as peer credentials on an OS without SO_PEERCRED.
type ErrUnsupportedOperation struct {
	msg string
}

func (e ErrUnsupportedOperation) Error() string       { return e.msg }
func (e ErrUnsupportedOperation) errType() ErrType    { return ETUnsupportedOperation }
func (e ErrUnsupportedOperation) set(msg string) error { return ErrUnsupportedOperation{msg: msg} }

// ErrNativeCall wraps a failed system call.
type ErrNativeCall struct {
	// Op is the name of the call that failed, "connect", "getsockopt", ...
	Op string
	// Errno is the platform error code.
	Errno unix.Errno
}

func (e ErrNativeCall) Error() string {
	return fmt.Sprintf("%s: %s (errno %d)", e.Op, e.Errno.Error(), int(e.Errno))
}

func (e ErrNativeCall) errType() ErrType { return ETNativeCall }

// Unwrap allows errors.Is(err, unix.EAGAIN) and friends to work.
func (e ErrNativeCall) Unwrap() error {
	return e.Errno
}

var codeToErr = map[ErrType]setter{
	ETAddressTooLong:       ErrAddressTooLong{},
	ETInvalidAddressType:   ErrInvalidAddressType{},
	ETAlreadyBound:         ErrAlreadyBound{},
	ETNotYetBound:          ErrNotYetBound{},
	ETInvalidState:         ErrInvalidState{},
	ETUnsupportedOption:    ErrUnsupportedOption{},
	ETInvalidOptionValue:   ErrInvalidOptionValue{},
	ETReadOnlyOption:       ErrReadOnlyOption{},
	ETClosedOrInterrupted:  ErrClosedOrInterrupted{},
	ETUnsupportedOperation: ErrUnsupportedOperation{},
}

// Errorf returns an error specificed by the ErrType containing the error text
// of fmt.Sprintf(s, i...). ETNativeCall and ETUnknown produce a plain error, use Native() for
// errors that came from the kernel.
func Errorf(code ErrType, s string, i ...interface{}) error {
	err, ok := codeToErr[code]
	if !ok {
		return fmt.Errorf(s, i...)
	}
	return err.set(fmt.Sprintf(s, i...))
}

// Native translates an error returned by a system call into an ErrNativeCall. If err is not a
// unix.Errno it is returned with op prepended. A nil err returns nil.
func Native(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return ErrNativeCall{Op: op, Errno: errno}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Type returns the ErrType of err. It looks through wrapped errors.
func Type(err error) ErrType {
	if err == nil {
		return ETUnknown
	}
	var t typer
	if errors.As(err, &t) {
		return t.errType()
	}
	return ETUnknown
}

// Errno returns the native error code held in err and true, or false if err did not come from a
// system call.
func Errno(err error) (unix.Errno, bool) {
	var nc ErrNativeCall
	if errors.As(err, &nc) {
		return nc.Errno, true
	}
	return 0, false
}

// Retryable indicates that the error is transient and the call can be tried again, usually after
// the descriptor becomes ready.
func Retryable(err error) bool {
	errno, ok := Errno(err)
	if !ok {
		return false
	}
	return WouldBlock(errno) || errno == unix.EINTR
}

// WouldBlock reports if errno is the deferral condition of a non-blocking descriptor.
func WouldBlock(errno unix.Errno) bool {
	switch errno {
	case unix.EAGAIN, unix.EINPROGRESS, unix.EALREADY:
		return true
	}
	// EWOULDBLOCK equals EAGAIN on every platform we build for, but not by definition.
	return errno == unix.EWOULDBLOCK
}
