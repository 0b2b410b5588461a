package main

import (
	"github.com/spf13/cobra"

	"github.com/drblury/mpiflow/internal/runtime/logging"
)

// app carries state shared by every subcommand.
type app struct {
	logLevel string
	logger   logging.ServiceLogger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mpiflow",
		Short: "Run message passing jobs over Watermill transports",
		Long: `mpiflow runs rank programs on the fabric engine.

Use "run" to start a whole job inside this process over Go channels, or
"join" to start one rank of a job whose ranks meet on a shared broker.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logging.NewTextServiceLogger(cmd.ErrOrStderr(), level)
			logging.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(a),
		newJoinCommand(a),
		newTransportsCommand(),
	)
	return root
}
