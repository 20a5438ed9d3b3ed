package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Print the block hashes of a stopped node from head to genesis",
	Args:  cobra.NoArgs,
	RunE:  traceRun,
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func traceRun(cmd *cobra.Command, args []string) error {
	chain, err := openChain()
	if err != nil {
		return err
	}

	trace, err := chain.Trace()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, hash := range trace {
		fmt.Fprintf(out, "%d %s\n", len(trace)-1-i, hash)
	}

	return nil
}
