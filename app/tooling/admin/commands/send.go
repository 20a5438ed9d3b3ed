package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	from  string
	value int64
	fee   int64
)

var sendCmd = &cobra.Command{
	Use:   "send <name|account>",
	Short: "Pay value to an account from a key file",
	Args:  cobra.ExactArgs(1),
	RunE:  sendRun,
}

var registerCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a name for the account of a key file",
	Args:  cobra.ExactArgs(1),
	RunE:  registerRun,
}

func init() {
	rootCmd.AddCommand(sendCmd, registerCmd)

	sendCmd.Flags().StringVarP(&from, "from", "f", "", "Name of the key file paying.")
	sendCmd.Flags().Int64Var(&value, "value", 0, "Value to pay.")
	sendCmd.Flags().Int64Var(&fee, "fee", 0, "Fee offered to the miner.")
	sendCmd.MarkFlagRequired("from")
	sendCmd.MarkFlagRequired("value")

	registerCmd.Flags().StringVarP(&from, "from", "f", "", "Name of the key file being named.")
	registerCmd.MarkFlagRequired("from")
}

func sendRun(cmd *cobra.Command, args []string) error {
	to, err := resolve(args[0])
	if err != nil {
		return err
	}

	privateKey, err := crypto.LoadECDSA(keyPath(from))
	if err != nil {
		return err
	}

	tx := ledger.NewCurrencyTx(uint64(time.Now().UnixNano()), []ledger.Output{{Account: to, Value: value}})
	tx, err = tx.AddInput(value+fee, privateKey)
	if err != nil {
		return err
	}

	return submit(cmd, tx)
}

func registerRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(keyPath(from))
	if err != nil {
		return err
	}

	ie, err := ledger.NewIdentityEntry(uint64(time.Now().UnixNano()), args[0], privateKey)
	if err != nil {
		return err
	}

	if !ie.IsValid() {
		return fmt.Errorf("name %q can not be registered", args[0])
	}

	return submit(cmd, ie)
}

func submit(cmd *cobra.Command, tx ledger.Tx) error {
	var resp struct {
		Hash bighash.Hash `json:"hash"`
	}
	if err := send(http.MethodPost, fmt.Sprintf("%s/v1/tx/submit", nodeURL), ledger.Envelope{Tx: tx}, &resp); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "submitted %s %s\n", tx.Kind(), resp.Hash)
	return nil
}
