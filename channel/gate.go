package channel

import "sync"

// gate tracks the operations using a descriptor so that Close() can wait for them before the
// descriptor number is released for reuse.
type gate struct {
	mu     sync.Mutex
	closed bool
	users  sync.WaitGroup
}

// enter registers an operation. It returns false once the gate is closed.
func (g *gate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.users.Add(1)
	return true
}

// leave must be called once for every enter() that returned true.
func (g *gate) leave() {
	g.users.Done()
}

// close stops new operations from entering. Only the first call returns true.
func (g *gate) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.closed = true
	return true
}

// wait blocks until every operation that entered has left.
func (g *gate) wait() {
	g.users.Wait()
}

func (g *gate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
