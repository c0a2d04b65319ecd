package channel

import (
	"sync"
	"testing"

	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/sockerr"
)

func TestBindGuard(t *testing.T) {
	g := &BindGuard{}
	if g.Bound() {
		t.Fatalf("TestBindGuard: new guard is bound")
	}

	if err := g.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := g.Begin(); sockerr.Type(err) != sockerr.ETAlreadyBound {
		t.Errorf("TestBindGuard: Begin() while pending: got %v, want ETAlreadyBound", err)
	}
	g.Abort()
	if g.Bound() {
		t.Errorf("TestBindGuard: bound after Abort()")
	}

	if err := g.Begin(); err != nil {
		t.Fatal(err)
	}
	g.Commit(true, addr.Abstract("abcde"))
	if g.State() != AutobindRequested {
		t.Errorf("TestBindGuard: got %v, want AutobindRequested", g.State())
	}
	if a, ok := g.Local(); !ok || a.String() != "@abcde" {
		t.Errorf("TestBindGuard: Local(): got (%v, %v), want (@abcde, true)", a, ok)
	}
	if err := g.Begin(); sockerr.Type(err) != sockerr.ETAlreadyBound {
		t.Errorf("TestBindGuard: Begin() after Commit(): got %v, want ETAlreadyBound", err)
	}
}

func TestBindGuardConcurrent(t *testing.T) {
	g := &BindGuard{}

	const n = 20
	wg := sync.WaitGroup{}
	mu := sync.Mutex{}
	won := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Begin(); err != nil {
				return
			}
			mu.Lock()
			won++
			mu.Unlock()
			g.Commit(false, addr.Path("/tmp/x.sock"))
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("TestBindGuardConcurrent: got %d binds, want 1", won)
	}
}

func TestMarkBound(t *testing.T) {
	g := &BindGuard{}
	g.MarkBound()
	if !g.Bound() {
		t.Fatalf("TestMarkBound: got unbound, want bound")
	}
	if _, ok := g.Local(); ok {
		t.Errorf("TestMarkBound: Local(): got ok, want !ok for an unnamed binding")
	}
	if err := g.Begin(); sockerr.Type(err) != sockerr.ETAlreadyBound {
		t.Errorf("TestMarkBound: got %v, want ETAlreadyBound", err)
	}
}
