// Command server runs the netspeed multi-protocol server standalone.
package main

import (
	"fmt"
	"os"

	"github.com/nik1740/netspeed/internal/cli"
)

func main() {
	cmd := cli.NewServerCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
