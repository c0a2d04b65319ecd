//go:build darwin

package sockopt

// Darwin has no SO_PEERCRED, the cred package reads LOCAL_PEERPID at SOL_LOCAL instead.
const (
	peerCredLevel = 0
	peerCredOpt   = 2
	passCredOpt   = -1
)
