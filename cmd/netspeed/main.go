// Command netspeed wraps the client, server, and report subcommands
// under a single root command.
package main

import (
	"fmt"
	"os"

	"github.com/nik1740/netspeed/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
