// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// Default values used when the genesis file leaves them out.
const (
	DefaultTargetBlockTime  = 30
	DefaultAdjustmentPeriod = 120
	DefaultMaxTxPerBlock    = 100
)

// Genesis represents the genesis file.
type Genesis struct {
	Date             time.Time        `json:"date"`
	ChainID          uint16           `json:"chain_id"`          // The chain id represents an unique id for this running instance.
	MiningReward     int64            `json:"mining_reward"`     // Reward for mining a block.
	TargetBlockTime  uint64           `json:"target_block_time"` // Seconds the network aims to spend mining a block.
	AdjustmentPeriod uint64           `json:"adjustment_period"` // Number of blocks between difficulty retargets.
	MaxTxPerBlock    int              `json:"max_tx_per_block"`  // The maximum number of transactions in a block, coinbase included.
	Balances         map[string]int64 `json:"balances"`          // Initial allocation carried by the genesis coinbase.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if genesis.TargetBlockTime == 0 {
		genesis.TargetBlockTime = DefaultTargetBlockTime
	}
	if genesis.AdjustmentPeriod == 0 {
		genesis.AdjustmentPeriod = DefaultAdjustmentPeriod
	}
	if genesis.MaxTxPerBlock == 0 {
		genesis.MaxTxPerBlock = DefaultMaxTxPerBlock
	}

	return genesis, nil
}

// Block constructs the genesis block. The block only depends on the genesis
// values so every node derives the same block and hash.
func (g Genesis) Block() (database.Block, error) {
	if len(g.Balances) == 0 {
		return database.Block{}, fmt.Errorf("genesis has no balances")
	}

	accounts := make([]string, 0, len(g.Balances))
	for account := range g.Balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	outputs := make([]ledger.Output, 0, len(accounts))
	for _, account := range accounts {
		acct, err := ledger.ToAccount(account)
		if err != nil {
			return database.Block{}, fmt.Errorf("genesis balance %q: %w", account, err)
		}
		outputs = append(outputs, ledger.Output{Account: acct.Canonical(), Value: g.Balances[account]})
	}

	cb := ledger.NewCoinbase(0, uint64(g.ChainID), outputs)
	if !cb.IsValid() {
		return database.Block{}, fmt.Errorf("genesis allocation is not valid")
	}

	header := database.BlockHeader{
		Target:    bighash.MaxTarget,
		TimeStamp: g.Date.UnixMilli(),
	}

	for {
		b, err := database.NewBlock(header, []ledger.Tx{cb})
		if err != nil {
			return database.Block{}, err
		}
		if b.IsValid() {
			return b, nil
		}
		header.Nonce++
	}
}
