//go:build !linux && !darwin

package cred

import (
	"runtime"

	"github.com/johnsiilver/unixsock/sockerr"
)

func fetch(n Native, fd int) (Cred, error) {
	return Cred{}, sockerr.Errorf(sockerr.ETUnsupportedOperation, "peer credentials are not supported on %s", runtime.GOOS)
}
