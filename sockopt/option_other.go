//go:build !linux && !darwin

package sockopt

const (
	peerCredLevel = 0
	peerCredOpt   = -1
	passCredOpt   = -1
)
