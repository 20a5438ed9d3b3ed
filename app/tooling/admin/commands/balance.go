package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var offline bool

var balanceCmd = &cobra.Command{
	Use:   "balance <name|account>",
	Short: "Print the balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().BoolVar(&offline, "offline", false, "Read the block files of a stopped node instead of calling the node.")
}

func balanceRun(cmd *cobra.Command, args []string) error {
	account, err := resolve(args[0])
	if err != nil {
		return err
	}

	if offline {
		chain, err := openChain()
		if err != nil {
			return err
		}

		bal, err := chain.Balance(account)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", account, bal)
		return nil
	}

	var resp struct {
		Name    string `json:"name"`
		Balance int64  `json:"balance"`
	}
	if err := send(http.MethodGet, fmt.Sprintf("%s/v1/balance/%s", nodeURL, account), nil, &resp); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d\n", account, resp.Name, resp.Balance)
	return nil
}
