package addr

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	log "github.com/golang/glog"
	"github.com/google/uuid"
)

// AutobindPrefix and AutobindSuffix surround the unique part of an emulated autobind path.
const (
	AutobindPrefix = "unixsock-tmp"
	AutobindSuffix = ".sock"
)

var emulated = &registry{paths: map[string]struct{}{}}

// registry tracks emulated autobind paths so they can be removed.
type registry struct {
	paths map[string]struct{}
	sync.Mutex
}

// Autobind returns the address to bind to when the caller asked for no address. On layouts with
// kernel autobind this is the unnamed address and the kernel picks an abstract name, which must be
// read back with getsockname() after bind. Otherwise a unique path in the temp directory is made
// up and tracked, so that Release() or Cleanup() removes the socket file.
func (l Layout) Autobind() (Address, error) {
	if l.KernelAutobind() {
		return Address{}, nil
	}

	name := AutobindPrefix + strings.ReplaceAll(uuid.New().String(), "-", "") + AutobindSuffix
	dirs := []string{os.TempDir(), "/tmp"}
	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if len(p) > l.pathMax {
			continue
		}
		a := Path(p)
		emulated.Lock()
		emulated.paths[p] = struct{}{}
		emulated.Unlock()
		log.V(1).Infof("emulating autobind with path %s", p)
		return a, nil
	}
	return Address{}, fmt.Errorf("cannot emulate autobind: temp directory %q gives a path longer than %d bytes", os.TempDir(), l.pathMax)
}

// Emulated reports if a is a path handed out by Autobind() that has not been released.
func Emulated(a Address) bool {
	emulated.Lock()
	defer emulated.Unlock()
	_, ok := emulated.paths[a.name]
	return ok
}

// Release removes the socket file of an emulated autobind address and stops tracking it.
// Addresses not made by Autobind() are ignored, so this is safe to call on any local address.
func Release(a Address) error {
	emulated.Lock()
	_, ok := emulated.paths[a.name]
	delete(emulated.paths, a.name)
	emulated.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(a.name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove autobind socket file(%s): %w", a.name, err)
	}
	return nil
}

// Cleanup removes every emulated autobind socket file still tracked. Programs on platforms
// without kernel autobind should defer this in main(), or use CleanupOnSignal().
func Cleanup() {
	emulated.Lock()
	paths := emulated.paths
	emulated.paths = map[string]struct{}{}
	emulated.Unlock()

	for p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warningf("could not remove autobind socket file(%s): %s", p, err)
		}
	}
}

// CleanupOnSignal runs Cleanup() when one of sigs (default SIGINT and SIGTERM) is received and
// then re-raises the signal with the default handler, so the process still exits the way it
// would have. The returned func stops watching.
func CleanupOnSignal(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, sigs...)

	go func() {
		select {
		case sig := <-ch:
			Cleanup()
			signal.Reset(sigs...)
			if p, err := os.FindProcess(os.Getpid()); err == nil {
				p.Signal(sig)
			}
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
