// Client is an example uds client. It prints whatever the server sends.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/johnsiilver/unixsock/uds"
	"github.com/spf13/pflag"
)

var (
	socketAddr = pflag.String("addr", "", "The path to the unix socket to dial")
	anyOwner   = pflag.Bool("any_owner", false, "Do not require the socket file to be owned by our user")
)

func main() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	if *socketAddr == "" {
		fmt.Println("did not pass --addr")
		os.Exit(1)
	}

	cred, _, err := uds.Current()
	if err != nil {
		panic(err)
	}

	uid, gid := cred.UID.Int(), cred.GID.Int()
	if *anyOwner {
		uid, gid = -1, -1
	}

	// Connects to the server at socketAddr that must have the file uid/gid of
	// our current user and one of the os.FileMode specified.
	client, err := uds.NewClient(*socketAddr, uid, gid, []os.FileMode{0770, 01770})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	server, err := client.Server()
	if err == nil {
		fmt.Println("connected to server", server)
	}

	// client implements io.ReadWriteCloser and this will print to the screen
	// whatever the server sends until the connection is closed.
	io.Copy(os.Stdout, client)
}
