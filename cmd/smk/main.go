// Command smk runs the smart-kitchen order broker and its clients. Orders
// are totally ordered by Lamport timestamps with the client id as the
// tie-break, and only the head of the queue can be processed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "smk",
		Short: "smk - Lamport-ordered kitchen orders",
		Long: `Lamport clocks for a total order of orders across clients.
One broker owns the queue; clients submit ORDER and receive READY, START and DONE.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $SMK_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.host, "host", "", "broker host (default $SMK_SERVER_HOST or localhost)")
	cmd.PersistentFlags().StringVar(&opts.port, "port", "", "broker port (default $SMK_SERVER_PORT or 5000)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newOrderCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newLogCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "smk", version)
		},
	})

	return cmd
}
