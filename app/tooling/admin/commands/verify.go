package commands

import (
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate every block of a stopped node against the genesis file",
	Args:  cobra.NoArgs,
	RunE:  verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, args []string) error {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return err
	}

	genesisBlock, err := gen.Block()
	if err != nil {
		return err
	}

	chain, err := openChain()
	if err != nil {
		return err
	}

	first, err := chain.BlockAt(0)
	if err != nil {
		return err
	}

	if first.Hash != genesisBlock.Hash {
		return fmt.Errorf("genesis block %s does not match the genesis file %s", first.Hash, genesisBlock.Hash)
	}

	if !chain.IsValid() {
		return fmt.Errorf("chain of %d blocks is not valid", chain.Size())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "valid size[%d] head[%s] difficulty[%.4f]\n", chain.Size(), chain.HeadHash(), chain.TotalDifficulty())
	return nil
}
