/*
Package cred resolves the credentials of the process on the other end of a connected Unix domain
socket.

The kernel fills in the peer's credentials when the connection is made (or when the socket pair is
created), so they cannot change for the life of the connection. A Resolver therefore fetches them
once and hands back the cached value after that.

On Linux this is SO_PEERCRED. On Darwin the peer pid comes from LOCAL_PEERPID and the uid/gid are
looked up from the process table. Other platforms return an ErrUnsupportedOperation.
*/
package cred

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"sync"

	"github.com/johnsiilver/unixsock/sockerr"
	"golang.org/x/sys/unix"
)

// ID represents a numeric ID. Go in various libraries stores IDs such as Uid or Gid as strings.
// However in other more OS specific libraries, it might be int or int32. This simply unifies that
// so it is easier to translate for whatever need you have.
type ID int

// String returns the ID as a string.
func (i ID) String() string {
	return strconv.Itoa(int(i))
}

// Int returns the ID as an int.
func (i ID) Int() int {
	return int(i)
}

// Int32 returns the ID as an int32.
func (i ID) Int32() int32 {
	return int32(i)
}

// Cred provides the credentials of the process at the other end of a socket.
type Cred struct {
	// PID is the process id of the process.
	PID ID
	// UID is the effective user id of the process.
	UID ID
	// GID is the effective group id of the process.
	GID ID
}

// String returns a human readable description of the credentials.
func (c Cred) String() string {
	return fmt.Sprintf("[uid=%d gid=%d pid=%d]", c.UID, c.GID, c.PID)
}

// Current provides information about the current process and user.
func Current() (Cred, *user.User, error) {
	u, err := user.Current()
	if err != nil {
		return Cred{}, nil, err
	}

	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)

	cred := Cred{
		PID: ID(os.Getpid()),
		UID: ID(uid),
		GID: ID(gid),
	}
	return cred, u, nil
}

// RecordSize is the size of the native peer credential record: pid, uid and gid as 32 bit values.
const RecordSize = 12

// DecodeRecord decodes the native struct ucred {pid_t pid; uid_t uid; gid_t gid;}, which is three
// 32 bit values in native byte order.
func DecodeRecord(b []byte) (Cred, error) {
	if len(b) < RecordSize {
		return Cred{}, fmt.Errorf("peer credential record is %d bytes, want %d", len(b), RecordSize)
	}
	return Cred{
		PID: ID(int32(binary.NativeEndian.Uint32(b[0:4]))),
		UID: ID(binary.NativeEndian.Uint32(b[4:8])),
		GID: ID(binary.NativeEndian.Uint32(b[8:12])),
	}, nil
}

// EncodeRecord is the inverse of DecodeRecord.
func EncodeRecord(c Cred) []byte {
	b := make([]byte, RecordSize)
	binary.NativeEndian.PutUint32(b[0:4], uint32(c.PID.Int32()))
	binary.NativeEndian.PutUint32(b[4:8], uint32(c.UID))
	binary.NativeEndian.PutUint32(b[8:12], uint32(c.GID))
	return b
}

// Native is the part of the system call binding needed to fetch credentials.
type Native interface {
	GetsockoptInt(fd, level, opt int) (int, error)
	GetsockoptBytes(fd, level, opt int, buf []byte) (int, error)
}

// Conn is a socket whose peer credentials can be resolved.
type Conn interface {
	// FD is the socket descriptor.
	FD() int
	// Connected reports if the socket currently has a peer.
	Connected() bool
}

// Fetch issues the native peer credential call for fd. Most callers want a Resolver instead.
func Fetch(n Native, fd int) (Cred, error) {
	return fetch(n, fd)
}

// Resolver resolves and caches the peer credentials of one connection.
type Resolver struct {
	native Native

	mu     sync.Mutex
	cached *Cred
}

// NewResolver is the constructor for Resolver.
func NewResolver(n Native) *Resolver {
	return &Resolver{native: n}
}

// Resolve returns the peer credentials of c. If c is not connected, it returns nil and no native
// call is made. The first successful result is cached until Reset() is called.
func (r *Resolver) Resolve(c Conn) (*Cred, error) {
	if !c.Connected() {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		cp := *r.cached
		return &cp, nil
	}
	cr, err := fetch(r.native, c.FD())
	if err != nil {
		return nil, err
	}
	r.cached = &cr
	return &cr, nil
}

// Reset drops the cached credentials. Call it when the connection goes away.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// noPeer is returned when the kernel answers the credential query but has no process to report,
// as for a datagram socket that was never connected. The record then has a zero pid.
func noPeer(fd int) error {
	return sockerr.Errorf(sockerr.ETUnsupportedOperation, "peer credentials not available: fd(%d) has no kernel peer", fd)
}

// unsupported converts err into an ErrUnsupportedOperation when the errno says the kernel lacks
// the option, and leaves it an ErrNativeCall otherwise.
func unsupported(err error) error {
	errno, ok := sockerr.Errno(err)
	if !ok {
		return err
	}
	switch errno {
	case unix.ENOPROTOOPT, unix.EOPNOTSUPP, unix.EINVAL:
		return sockerr.Errorf(sockerr.ETUnsupportedOperation, "peer credentials not supported: %s", err)
	}
	return err
}
