package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// NewRootCmd creates the root admit command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "admit",
		Short: "Admission control algorithms you can run, test and replay",
		Long: `admit decides, per caller key, whether a request may proceed now.

It ships five algorithms (fixed window, sliding window counter, sliding
window log, token bucket and leaky bucket) behind an HTTP and gRPC server,
plus a virtual clock so limits can be tested and replayed without waiting.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServerCmd(),
		newTestCmd(),
		newReplayCmd(),
		newGenerateCmd(),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the admit version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "admit %s\n", Version)
			return err
		},
	}
}
