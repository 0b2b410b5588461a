package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drblury/mpiflow/transport"
	_ "github.com/drblury/mpiflow/transport/transports"
)

// newTransportsCommand creates the `mpiflow transports` command.
func newTransportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transports",
		Short: "List the transports a rank can join over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tORDERED\tDURABLE\tACK\tPARTITIONED")
			for _, name := range transport.DefaultRegistry.Names() {
				caps := transport.GetCapabilities(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name,
					yesNo(caps.SupportsOrdering), yesNo(caps.Durable),
					yesNo(caps.SupportsAck), yesNo(caps.SupportsPartitioning))
			}
			return w.Flush()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
