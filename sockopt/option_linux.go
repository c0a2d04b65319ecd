//go:build linux

package sockopt

import "golang.org/x/sys/unix"

const (
	peerCredLevel = unix.SOL_SOCKET
	peerCredOpt   = unix.SO_PEERCRED
	passCredOpt   = unix.SO_PASSCRED
)
