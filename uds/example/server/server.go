// Server is an example uds server. It writes the time to every client of the same user
// every --interval until the client goes away.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/johnsiilver/unixsock/addr"
	"github.com/johnsiilver/unixsock/uds"
	"github.com/spf13/pflag"

	log "github.com/golang/glog"
)

var (
	socketAddr = pflag.String("addr", "", "The path to create the unix socket at, defaults to a random file in the temp directory")
	interval   = pflag.Duration("interval", 10*time.Second, "How often to write to each client")
)

func main() {
	// glog registers its flags with the standard library.
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	stop := addr.CleanupOnSignal()
	defer stop()

	if *socketAddr == "" {
		*socketAddr = filepath.Join(os.TempDir(), uuid.New().String())
	}

	cred, _, err := uds.Current()
	if err != nil {
		log.Exit(err)
	}

	// This will set the socket file to have a uid and gid of whatever the
	// current user is. 0770 will be set for the file permissions (though on some
	// systems the sticky bit gets set, resulting in 1770.
	serv, err := uds.NewServer(*socketAddr, cred.UID.Int(), cred.GID.Int(), 0770)
	if err != nil {
		log.Exit(err)
	}

	fmt.Println("Listening on socket: ", *socketAddr)
	go func() {
		if err := <-serv.Closed(); err != nil {
			log.Errorf("server stopped: %s", err)
		}
	}()

	// This listens for a client connecting and returns the connection object.
	for conn := range serv.Conn() {
		conn := conn

		// We spinoff handling of this connection to its own goroutine and
		// go back to listening for another connection.
		go func() {
			defer conn.Close()
			// We are checking the client's user ID to make sure its the same
			// user ID or we reject it. Cred objects give you the user's
			// uid/gid/pid for filtering.
			if conn.Cred.UID.Int() != cred.UID.Int() {
				log.Warningf("unauthorized user %s attempted a connection", conn.Cred)
				return
			}
			for {
				if _, err := conn.Write([]byte(fmt.Sprintf("%s\n", time.Now().UTC()))); err != nil {
					log.V(1).Infof("client %s went away: %s", conn.Cred, err)
					return
				}
				time.Sleep(*interval)
			}
		}()
	}
}
