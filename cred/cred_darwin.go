//go:build darwin

package cred

import (
	"fmt"
	"os/user"
	"strconv"

	"github.com/shirou/gopsutil/process"
)

const (
	syscall_SOL_LOCAL     = 0
	syscall_LOCAL_PEERPID = 2
)

// fetch returns the credentials of the peer process.
// Some of this came from: https://github.com/mysteriumnetwork/node/issues/2204
func fetch(n Native, fd int) (Cred, error) {
	pid, err := n.GetsockoptInt(fd, syscall_SOL_LOCAL, syscall_LOCAL_PEERPID)
	if err != nil {
		return Cred{}, unsupported(err)
	}
	if pid == 0 {
		return Cred{}, noPeer(fd)
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Cred{}, fmt.Errorf("could not find PID(%d) for the socket peer: %w", pid, err)
	}

	uids, err := proc.Uids()
	if err != nil || len(uids) == 0 {
		return Cred{}, fmt.Errorf("could not find UIDs associated with peer PID(%v): %w", pid, err)
	}

	// Uids() is real, effective, saved. We report the effective one like SO_PEERCRED does.
	uid := uids[0]
	if len(uids) > 1 {
		uid = uids[1]
	}

	u, err := user.LookupId(strconv.Itoa(int(uid)))
	if err != nil {
		return Cred{}, fmt.Errorf("could not lookup UID(%v) for peer PID(%v): %w", uid, pid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Cred{}, fmt.Errorf("could not lookup GID for UID(%v) PID(%v): %w", uid, pid, err)
	}

	return Cred{PID: ID(pid), UID: ID(uid), GID: ID(gid)}, nil
}
