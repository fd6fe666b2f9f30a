// Command chanrpcd is a demo daemon proving out the chanrpc transport end
// to end: it loads layered configuration, wires a transport.Context around
// a trivial echo RpcHandler, and serves inbound connections until
// interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/chanrpc/cmd/chanrpcd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.Version = version
	commands.Commit = commit

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
