package channel

import (
	log "github.com/golang/glog"
)

// wakePipe is a pipe close() writes to so that a goroutine in poll() returns.
type wakePipe struct {
	r, w int
}

// armWake makes the wake pipe and returns its read end. Only one goroutine may have it armed.
func (b *base) armWake() (int, error) {
	r, w, err := b.native.Pipe()
	if err != nil {
		return -1, err
	}
	b.mu.Lock()
	b.wake = &wakePipe{r: r, w: w}
	b.mu.Unlock()
	return r, nil
}

func (b *base) disarmWake() {
	b.mu.Lock()
	p := b.wake
	b.wake = nil
	b.mu.Unlock()

	if p == nil {
		return
	}
	b.native.Close(p.r)
	b.native.Close(p.w)
}

// signalWake wakes the goroutine that armed the pipe, if there is one.
func (b *base) signalWake() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wake == nil {
		return
	}
	if _, err := b.native.Write(b.wake.w, []byte{1}); err != nil {
		log.V(2).Infof("%s fd(%d) wake: %s", b.kind, b.fd, err)
	}
}
