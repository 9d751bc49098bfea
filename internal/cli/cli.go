// Package cli assembles the three netspeed subcommands (client, server,
// report) as cobra.Commands, shared by the combined netspeed binary and
// by each single-purpose cmd/ binary.
package cli

import "github.com/spf13/cobra"

// Version is the build version stamped into reports and the /info
// endpoint. Overridden at link time via -ldflags in release builds.
var Version = "dev"

// NewRootCommand returns the combined "netspeed" command with all three
// subcommands attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "netspeed",
		Short: "Cross-protocol network performance measurement tool",
	}
	root.AddCommand(NewClientCommand(), NewServerCommand(), NewReportCommand())
	return root
}
