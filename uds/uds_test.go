package uds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/johnsiilver/unixsock/cred"
	"github.com/kylelemons/godebug/pretty"
)

func socketPath() string {
	return filepath.Join(os.TempDir(), uuid.New().String())
}

func TestUDS(t *testing.T) {
	socketAddr := socketPath()

	me, _, err := Current()
	if err != nil {
		t.Fatal(err)
	}

	serv, err := NewServer(socketAddr, me.UID.Int(), me.GID.Int(), 0770)
	if err != nil {
		t.Fatal(err)
	}
	closedErr := make(chan error, 1)
	go func() {
		closedErr <- <-serv.Closed()
	}()

	var (
		mu  sync.Mutex
		got []interface{}
	)
	record := func(v interface{}) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	}

	currentConns := sync.WaitGroup{}
	go func() {
		for conn := range serv.Conn() {
			conn := conn
			currentConns.Add(1)

			if diff := pretty.Compare(me, conn.Cred); diff != "" {
				record(fmt.Sprintf("-want/+got creds:\n%s", diff))
			}

			go func() {
				defer currentConns.Done()
				defer conn.Close()
				dec := json.NewDecoder(conn)
				m := cred.Cred{}
				for {
					if err := dec.Decode(&m); err != nil {
						if err != io.EOF {
							record(err)
						}
						return
					}
					record(m)
					conn.Write([]byte("ack"))
				}
			}()
		}
	}()

	// Create client and send 10 messages.
	client, err := NewClient(socketAddr, me.UID.Int(), me.GID.Int(), []os.FileMode{0770, 01770})
	if err != nil {
		t.Fatal(err)
	}

	server, err := client.Server()
	if err != nil {
		t.Fatalf("TestUDS: client.Server(): %s", err)
	}
	if diff := pretty.Compare(me, *server); diff != "" {
		t.Errorf("TestUDS: server creds -want/+got:\n%s", diff)
	}

	credJSON, err := json.Marshal(me)
	if err != nil {
		t.Fatal(err)
	}

	ackRecv := []byte("abcisaseasyas123") // Test we can read into a larger slice than the data.
	for i := 0; i < 10; i++ {
		ackRecv = ackRecv[:cap(ackRecv)]
		if _, err := client.Write(credJSON); err != nil {
			t.Fatal(err)
		}
		client.ReadTimeout(5 * time.Second)
		n, err := client.Read(ackRecv)
		if err != nil {
			t.Fatalf("TestUDS: error type %T: %s", err, pretty.Sprint(err))
		}
		ackRecv = ackRecv[:n]

		if string(ackRecv) != "ack" {
			t.Fatalf("TestUDS: waiting for ack, got %q", string(ackRecv))
		}
	}
	client.Close()
	currentConns.Wait()

	if err := serv.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-closedErr; err != nil {
		t.Errorf("TestUDS: Closed(): got %s, want nil", err)
	}
	if _, err := os.Stat(socketAddr); !os.IsNotExist(err) {
		t.Errorf("TestUDS: socket file still exists after Close()")
	}

	want := []interface{}{}
	for i := 0; i < 10; i++ {
		want = append(want, me)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestUDS: -want/+got:\n%s", diff)
	}
}

func TestSocketFileRemoved(t *testing.T) {
	socketAddr := socketPath()

	serv, err := NewServer(socketAddr, -1, -1, 0770)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(socketAddr); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-serv.Closed():
		if !errors.Is(err, ErrSocketRemoved) {
			t.Errorf("TestSocketFileRemoved: got %v, want ErrSocketRemoved", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("TestSocketFileRemoved: server did not notice its socket file was removed")
	}

	// Conn() is closed once the server stops.
	select {
	case _, ok := <-serv.Conn():
		if ok {
			t.Errorf("TestSocketFileRemoved: got a Conn, want a closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("TestSocketFileRemoved: Conn() was not closed")
	}
}

func TestCloseWithUnreadConns(t *testing.T) {
	socketAddr := socketPath()

	serv, err := NewServer(socketAddr, -1, -1, 0770, WatchSocketFile(false))
	if err != nil {
		t.Fatal(err)
	}

	// Nobody reads Conn(). The first connection fills its buffer and the second is left waiting.
	for i := 0; i < 2; i++ {
		c, err := NewClient(socketAddr, -1, -1, []os.FileMode{0770})
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
	}
	time.Sleep(100 * time.Millisecond)

	if err := serv.Close(); err != nil {
		t.Fatal(err)
	}

	// Closed() is closed when the accept loop exits.
	select {
	case <-serv.Closed():
	case <-time.After(5 * time.Second):
		t.Fatalf("TestCloseWithUnreadConns: the accept loop did not exit after Close()")
	}
}

func TestNewClientChecks(t *testing.T) {
	socketAddr := socketPath()

	serv, err := NewServer(socketAddr, -1, -1, 0700, WatchSocketFile(false))
	if err != nil {
		t.Fatal(err)
	}
	defer serv.Close()

	me, _, err := Current()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		desc  string
		path  string
		uid   int
		modes []os.FileMode
		err   bool
	}{
		{desc: "No file", path: socketAddr + ".nope", uid: -1, err: true},
		{desc: "Wrong mode", path: socketAddr, uid: -1, modes: []os.FileMode{0770}, err: true},
		{desc: "Wrong owner", path: socketAddr, uid: me.UID.Int() + 1, err: true},
		{desc: "Success", path: socketAddr, uid: me.UID.Int(), modes: []os.FileMode{0700}},
	}

	for _, test := range tests {
		c, err := NewClient(test.path, test.uid, -1, test.modes)
		switch {
		case err == nil && test.err:
			t.Errorf("Test %q: got err == nil, want err != nil", test.desc)
			c.Close()
			continue
		case err != nil && !test.err:
			t.Errorf("Test %q: got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		c.Close()
	}
}

func TestPathTooLong(t *testing.T) {
	long := "/tmp/" + strings.Repeat("a", 200)
	if _, err := NewServer(long, -1, -1, 0770); err == nil {
		t.Errorf("TestPathTooLong: got err == nil, want err != nil")
	}
}

func TestReadTimeout(t *testing.T) {
	socketAddr := socketPath()

	serv, err := NewServer(socketAddr, -1, -1, 0770)
	if err != nil {
		t.Fatal(err)
	}
	defer serv.Close()

	client, err := NewClient(socketAddr, -1, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	conn := <-serv.Conn()
	defer conn.Close()

	client.ReadTimeout(50 * time.Millisecond)
	start := time.Now()
	_, err = client.Read(make([]byte, 1))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("TestReadTimeout: got %v, want os.ErrDeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("TestReadTimeout: Read() took %v", time.Since(start))
	}

	// The timeout only applies to one Read().
	go func() {
		time.Sleep(100 * time.Millisecond)
		conn.Write([]byte("x"))
	}()
	b, err := client.ReadByte()
	if err != nil {
		t.Fatalf("TestReadTimeout: ReadByte(): %s", err)
	}
	if b != 'x' {
		t.Errorf("TestReadTimeout: got %q, want 'x'", b)
	}
}

func TestWriteOnlyDetectsClose(t *testing.T) {
	socketAddr := socketPath()

	serv, err := NewServer(socketAddr, -1, -1, 0770)
	if err != nil {
		t.Fatal(err)
	}
	defer serv.Close()

	client, err := NewClient(socketAddr, -1, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	client.WriteOnly()

	conn := <-serv.Conn()
	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("TestWriteOnlyDetectsClose: Write(): %s", err)
	}
	conn.Close()

	if _, err := client.Write([]byte("hello")); err != io.EOF {
		t.Errorf("TestWriteOnlyDetectsClose: Write() after server side Close(): got %v, want io.EOF", err)
	}
}
