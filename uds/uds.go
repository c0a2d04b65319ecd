/*
Package uds provides a server and client for Unix Domain Sockets. This provides a lot of convenience
around the channel package for handling all the file setup and detecting closed connections. It also
provides the ability to authenticate connections.

The package works on Linux and Darwin. Other BSDs work but cannot authenticate, as their kernels do
not give us the peer's credentials.

This package takes the stance that Read() and Write() calls by default should infinitely block
unless the socket is closed. This eases development.

We also handle write only connections where Write() calls may not detect a closed connection. This can
be done setting the WriteOnly option.

This package is fairly straight forward in that you can uses server.Conn objects and Client objects
as io.ReadWriteClose objects.

OSX Note:
	NewServer() is unable to chown the socket if the containing directory doesn't have
	a 0770 mask (operation not permitted). So opening in os.Tempdir() will fail.  You can simply
	put a sub-directory with those perms and it will work.

Unix/Linux Note:
	Socket paths have a length limit that is different than the normal filesystem. Paths are
	checked against the limit of the platform before a socket is made, so you get an
	ErrAddressTooLong instead of a non-sensical "invalid argument".
*/
package uds

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/johnsiilver/unixsock/channel"
	"github.com/johnsiilver/unixsock/cred"
	"github.com/johnsiilver/unixsock/sockerr"
)

// oneByte is used as the receiver for a read that will never succeed. Because the read must be at
// least a single byte, this exists to prevent any heap allocations.
var oneByte = make([]byte, 1)

// Current provides information about the current process and user.
var Current = cred.Current

// stream holds what is shared by a server side Conn and a Client.
type stream struct {
	s *channel.Stream

	// readTimeout and writeTimeout are for the next call only, -1 if not set.
	readTimeout, writeTimeout time.Duration
	// readArmed and writeArmed are true while the socket holds a timeout from an earlier call.
	readArmed, writeArmed bool
	writeOnly             bool
}

// WriteOnly lets the stream know that it will only be used for writing. This will cause a
// *special* read to happen on all writes to make sure the connection isn't closed, as writes are
// not guaranteed to error on a UDS. If doing reads, this isn't required. If this is set and
// you read from it, Read() will panic.
func (c *stream) WriteOnly() {
	c.writeOnly = true
}

// Stream will return the underlying channel.Stream. You can use this to get at socket options
// or the descriptor.
func (c *stream) Stream() *channel.Stream {
	return c.s
}

// Read implements io.Reader.Read(). This has an inifite read timeout. If you want to have a timeout,
// call ReadDeadline() or ReadTimeout() before calling. You must do this for every Read() call.
func (c *stream) Read(b []byte) (int, error) {
	if c.writeOnly {
		panic("called Read() when WriteOnly() set")
	}
	if err := arm(c.s.SetReadTimeout, &c.readTimeout, &c.readArmed); err != nil {
		return 0, err
	}
	n, err := c.s.Read(b)
	return n, timeoutErr("read", err)
}

// ReadByte implements io.ByteReader.
func (c *stream) ReadByte() (byte, error) {
	b := make([]byte, 1)
	if _, err := c.Read(b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadTimeout caused the next Read() call to timeout after timeout. Must be used
// before every Read() call that you want to have a timeout.
func (c *stream) ReadTimeout(timeout time.Duration) {
	c.readTimeout = clampTimeout(timeout)
}

// ReadDeadline caused the next Read() call to timeout at t. Must be used
// before every Read() call that you want to have a timeout.
func (c *stream) ReadDeadline(t time.Time) {
	c.readTimeout = clampTimeout(time.Until(t))
}

// WriteTimeout caused the next Write() call to timeout after timeout. Must be used
// before every Write() call that you want to have a timeout.
func (c *stream) WriteTimeout(timeout time.Duration) {
	c.writeTimeout = clampTimeout(timeout)
}

// WriteDeadline caused the next Write() call to timeout at t. Must be used
// before every Write() call that you want to have a timeout.
func (c *stream) WriteDeadline(t time.Time) {
	c.writeTimeout = clampTimeout(time.Until(t))
}

// Write implements io.Writer.Write(). This has an inifite write timeout. If you want to have a timeout,
// call WriteDeadline() or WriteTimeout() before calling. You must do this for every Write() call.
func (c *stream) Write(b []byte) (int, error) {
	if c.writeOnly {
		if c.isClosed() {
			return 0, io.EOF
		}
	}
	if err := arm(c.s.SetWriteTimeout, &c.writeTimeout, &c.writeArmed); err != nil {
		return 0, err
	}
	n, err := c.s.Write(b)
	return n, timeoutErr("write", err)
}

// Close implements io.Closer.Close().
func (c *stream) Close() error {
	return c.s.Close()
}

// arm applies a pending timeout for one call. A socket that had a timeout set for the previous
// call is put back to blocking forever.
func arm(set func(time.Duration) error, pending *time.Duration, armed *bool) error {
	d := *pending
	*pending = -1
	switch {
	case d >= 0:
		*armed = true
		return set(d)
	case *armed:
		*armed = false
		return set(0)
	}
	return nil
}

// isClosed tests the connection to see if it is open by trying a non-blocking read from it.
// We do this because this connection is actually one way and we normally don't read.
// This will never actually read anything, but you can't use a 0 byte slice because that will never error.
// Writes do not block on a broken conn.
func (c *stream) isClosed() bool {
	if err := c.s.SetBlocking(false); err != nil {
		return true
	}
	defer c.s.SetBlocking(true)

	// A peer that closed with data we never read gives ECONNRESET instead of io.EOF.
	_, err := c.s.Read(oneByte)
	return err != nil && !sockerr.Retryable(err)
}

// clampTimeout turns a timeout into the value sent to the socket. Zero would mean no timeout
// to the kernel, so timeouts that are already up become the smallest one it takes.
func clampTimeout(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func timeoutErr(op string, err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	if sockerr.Retryable(err) {
		return fmt.Errorf("%s: %w: %w", op, os.ErrDeadlineExceeded, err)
	}
	return err
}

func newStream(s *channel.Stream) stream {
	return stream{s: s, readTimeout: -1, writeTimeout: -1}
}
