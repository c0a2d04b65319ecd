package uds

import (
	"fmt"
	"os"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/channel"
	"github.com/johnsiilver/unixsock/cred"
	"golang.org/x/sys/unix"
)

// Client provides a UDS client for connecting to a UDS server.
type Client struct {
	stream
}

// NewClient creates a new UDS client to the socket at socketAddr that must have the uid and gid specified.
// fileModes provides a list of acceptable file modes that the socket can be in (suggest 0770, 1770).
// A uid or gid of -1 is not checked, nor is an empty fileModes.
func NewClient(socketAddr string, uid, gid int, fileModes []os.FileMode) (*Client, error) {
	stats, err := os.Stat(socketAddr)
	if err != nil {
		return nil, fmt.Errorf("could not stat socket address(%s): %w", socketAddr, err)
	}
	if stats.Mode()&os.ModeSocket == 0 {
		return nil, fmt.Errorf("socket address(%s) is not a socket", socketAddr)
	}

	if len(fileModes) > 0 {
		found := false
		for _, m := range fileModes {
			if stats.Mode().Perm()|(stats.Mode()&os.ModeSticky) == m {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("socket address(%s) had incorrect mode(%v), must be one of %v", socketAddr, stats.Mode(), fileModes)
		}
	}

	var st unix.Stat_t
	if err := unix.Stat(socketAddr, &st); err != nil {
		return nil, fmt.Errorf("could not stat socket address(%s): %w", socketAddr, err)
	}
	if uid != -1 && int(st.Uid) != uid {
		return nil, fmt.Errorf("socket address(%s) is owned by uid %d, want %d", socketAddr, st.Uid, uid)
	}
	if gid != -1 && int(st.Gid) != gid {
		return nil, fmt.Errorf("socket address(%s) is owned by gid %d, want %d", socketAddr, st.Gid, gid)
	}

	s, err := channel.Dial(addr.Path(socketAddr))
	if err != nil {
		return nil, fmt.Errorf("unable to dial socket(%s): %w", socketAddr, err)
	}
	return &Client{stream: newStream(s)}, nil
}

// Server returns the credentials of the server process.
func (c *Client) Server() (*cred.Cred, error) {
	return c.s.Credentials()
}
