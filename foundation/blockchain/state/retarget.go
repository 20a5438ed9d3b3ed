package state

import (
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
)

// targetTolerance absorbs float rounding when a block's target is compared
// with the target the chain expects.
const targetTolerance = 1e-9

// Bounds of the change to the difficulty at a single retarget.
const (
	minAdjustment = 0.25
	maxAdjustment = 4.0
)

// Difficulty returns the difficulty the block following the head of the
// chain is mined at. After the first period it changes once every period
// blocks: the difficulty of the last block before the boundary is scaled by
// how much faster than blockTime seconds per block the last period was
// mined. While the chain is shorter than one period the genesis difficulty
// is scaled by the pace of every block mined since genesis.
func Difficulty(chain *database.Chain, period uint64, blockTime uint64) (float64, error) {
	size := chain.Size()
	if size == 0 || period == 0 {
		return 1, nil
	}

	// The pace is measured over the blocks from..to and applied to the
	// difficulty of the base block.
	var from, to, base uint64

	switch boundary := size - size%period; boundary {
	case 0:
		to = size - 1

	default:
		to = boundary - 1
		if boundary > period {
			from = boundary - 1 - period
		}
		base = to
	}

	baseBlock, err := chain.BlockAt(base)
	if err != nil {
		return 0, err
	}

	if from == to {
		return baseBlock.Difficulty(), nil
	}

	first, err := chain.BlockAt(from)
	if err != nil {
		return 0, err
	}

	last, err := chain.BlockAt(to)
	if err != nil {
		return 0, err
	}

	factor := maxAdjustment
	if elapsed := float64(last.Header.TimeStamp-first.Header.TimeStamp) / 1000; elapsed > 0 {
		factor = float64(blockTime*(to-from)) / elapsed
	}
	factor = min(max(factor, minAdjustment), maxAdjustment)

	return baseBlock.Difficulty() * factor, nil
}

// CurrentTarget returns the target the next block must be mined below.
func (s *State) CurrentTarget() bighash.Hash {
	return s.targetFor(s.chain.Load())
}

// targetFor returns the target following the head of the chain. The head
// target is used when the difficulty can't be calculated.
func (s *State) targetFor(chain *database.Chain) bighash.Hash {
	difficulty, err := Difficulty(chain, s.genesis.AdjustmentPeriod, s.genesis.TargetBlockTime)
	if err != nil {
		s.evHandler("state: targetFor: WARNING: %s", err)

		head, err := chain.Head()
		if err != nil {
			return bighash.MaxTarget
		}
		return head.Header.Target
	}

	return bighash.TargetFor(difficulty)
}

// checkTarget rejects a block extending the head of the chain that was
// mined at an easier target than the chain requires.
func (s *State) checkTarget(chain *database.Chain, block database.Block) error {
	if block.Header.PrevBlockHash != chain.HeadHash() {
		return nil
	}

	required := bighash.Difficulty(s.targetFor(chain))
	if block.Difficulty() < required*(1-targetTolerance) {
		return fmt.Errorf("%w: block %s difficulty %f is below the required %f", database.ErrRejected, block.Hash.Short(), block.Difficulty(), required)
	}

	return nil
}
