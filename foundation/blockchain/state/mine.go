package state

import (
	"context"
	"errors"

	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
)

// ErrNoBeneficiaries is returned when mining is requested without any
// account to pay the reward to.
var ErrNoBeneficiaries = errors.New("no beneficiaries to pay the mining reward")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. The transactions are taken from the
// mempool, highest fees first, as long as the chain can afford them.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	if err := s.Refused(); err != nil {
		return database.Block{}, err
	}

	if len(s.beneficiaries) == 0 {
		return database.Block{}, ErrNoBeneficiaries
	}

	chain := s.chain.Load()

	head, err := chain.Head()
	if err != nil {
		return database.Block{}, err
	}

	txs := mining.Select(chain, s.mempool.PickBest(-1), s.genesis.MaxTxPerBlock)

	payouts, err := mining.Payouts(s.genesis.MiningReward+mining.Fees(txs), s.beneficiaries, mining.RandomShuffle)
	if err != nil {
		return database.Block{}, err
	}

	work := mining.Work{
		Height:   chain.Size(),
		PrevHash: head.Hash,
		Target:   s.targetFor(chain),
		MinTime:  head.Header.TimeStamp,
		Txs:      txs,
		Payouts:  payouts,
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: height[%d] txs[%d]", work.Height, len(txs))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := s.engine.Mine(ctx, work)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	if err := s.pushCanonical(block); err != nil {
		return database.Block{}, err
	}

	s.mined.Add(1)

	return block, nil
}
