package statemachine

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/johnsiilver/unixsock/sockerr"
	"github.com/kr/pretty"
)

type logging struct {
	msgs []string
}

func (l *logging) Log(s string, i ...interface{}) {
	l.msgs = append(l.msgs, fmt.Sprintf(s, i...))
}

func TestTransition(t *testing.T) {
	tests := []struct {
		desc      string
		start     State
		moves     [][2]State
		err       bool
		shouldLog bool
		nodes     []string
		log       []string
	}{
		{
			desc:      "Non-blocking connect then finish",
			start:     Idle,
			moves:     [][2]State{{Idle, Connecting}, {Connecting, Connected}},
			shouldLog: true,
			nodes:     []string{"IDLE->CONNECTING", "CONNECTING->CONNECTED"},
			log: []string{
				"StateMachine[tester]: transition IDLE->CONNECTING",
				"StateMachine[tester]: transition CONNECTING->CONNECTED",
			},
		},
		{
			desc:  "Datagram connect and disconnect",
			start: Idle,
			moves: [][2]State{{Idle, Connected}, {Connected, Idle}},
			nodes: []string{"IDLE->CONNECTED", "CONNECTED->IDLE"},
		},
		{
			desc:  "Wrong from state",
			start: Idle,
			moves: [][2]State{{Connecting, Connected}},
			err:   true,
			nodes: []string{},
		},
		{
			desc:  "Illegal edge",
			start: Connected,
			moves: [][2]State{{Connected, Connecting}},
			err:   true,
			nodes: []string{},
		},
		{
			desc:  "Self transition",
			start: Idle,
			moves: [][2]State{{Idle, Idle}},
			err:   true,
			nodes: []string{},
		},
	}

	for _, test := range tests {
		l := &logging{}
		m := New("tester", test.start, LogFacility(l.Log))
		m.Log(test.shouldLog)

		var err error
		for _, mv := range test.moves {
			if err = m.Transition(mv[0], mv[1]); err != nil {
				break
			}
		}
		switch {
		case err == nil && test.err:
			t.Errorf("Test %q: got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("Test %q: got err == %q, want err == nil", test.desc, err)
			continue
		case err != nil:
			if sockerr.Type(err) != sockerr.ETInvalidState {
				t.Errorf("Test %q: got error type %v, want ETInvalidState", test.desc, sockerr.Type(err))
			}
		}

		if diff := pretty.Diff(test.nodes, m.Nodes()); len(diff) != 0 {
			t.Errorf("Test %q: node trace was not accurate got/want diff:\n%s", test.desc, strings.Join(diff, "\n"))
		}
		if diff := pretty.Diff(test.log, l.msgs); len(diff) != 0 {
			t.Errorf("Test %q: log was not as expected:\n%s", test.desc, strings.Join(diff, "\n"))
		}
	}
}

func TestRequire(t *testing.T) {
	m := New("tester", Connecting)

	if s, err := m.Require("finishConnect", Connecting, Connected); err != nil || s != Connecting {
		t.Errorf("TestRequire: got (%v, %v), want (CONNECTING, nil)", s, err)
	}

	_, err := m.Require("read", Connected, Idle)
	if sockerr.Type(err) != sockerr.ETInvalidState {
		t.Fatalf("TestRequire: got %v, want ETInvalidState", err)
	}
	want := "read: invalid in state CONNECTING, must be CONNECTED or IDLE"
	if err.Error() != want {
		t.Errorf("TestRequire: got %q, want %q", err.Error(), want)
	}

	if !m.Is(Idle, Connecting) {
		t.Errorf("TestRequire: Is(Idle, Connecting): got false, want true")
	}
}

func TestConcurrentTransition(t *testing.T) {
	m := New("tester", Idle)

	const n = 50
	wg := sync.WaitGroup{}
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Transition(Idle, Connected)
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
		}
	}
	if won != 1 {
		t.Errorf("TestConcurrentTransition: got %d successful transitions, want 1", won)
	}
	if m.State() != Connected {
		t.Errorf("TestConcurrentTransition: got state %v, want CONNECTED", m.State())
	}
}

func TestStateString(t *testing.T) {
	if got := State(9).String(); got != "State(9)" {
		t.Errorf("TestStateString: got %q, want %q", got, "State(9)")
	}
}
