package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// SubmitBlock takes a block received from a peer, validates it and if that
// passes, adds the block to the canonical chain.
func (s *State) SubmitBlock(block database.Block) error {
	s.evHandler("state: SubmitBlock: started: prevBlk[%s]: newBlk[%s]", block.Header.PrevBlockHash.Short(), block.Hash.Short())
	defer s.evHandler("state: SubmitBlock: completed: newBlk[%s]", block.Hash.Short())

	if err := s.pushCanonical(block); err != nil {
		return err
	}

	// If a mining round is running it is mining on the old head and needs
	// to stop. The round can't end until done is called, after the state
	// change above is complete.
	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: SubmitBlock: signal runMiningOperation to terminate")
			done()
			s.Worker.SignalStartMining()
		}()
	}

	return nil
}

// =============================================================================

// pushCanonical validates the block against the canonical chain and adds it
// as the new head.
func (s *State) pushCanonical(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Refused(); err != nil {
		return err
	}

	chain := s.chain.Load()

	if err := s.checkTarget(chain, block); err != nil {
		return err
	}

	if err := chain.PushBlock(block); err != nil {
		if errors.Is(err, database.ErrCorrupt) {
			return s.refuse(err)
		}
		return err
	}

	if err := chain.Save(); err != nil {
		return s.refuse(fmt.Errorf("save chain: %w", err))
	}

	s.purgeMempool(chain)
	s.blockEvent(block)

	return nil
}

// purgeMempool removes the pending transactions the chain now holds.
func (s *State) purgeMempool(chain *database.Chain) {
	n, err := s.mempool.Purge(chain.Contains)
	if err != nil {
		s.evHandler("state: purgeMempool: WARNING: %s", err)
	}
	if n > 0 {
		s.evHandler("state: purgeMempool: removed[%d] pending[%d]", n, s.mempool.Count())
	}
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(ledger.Wrap(block.Values()))
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash, string(blockHeaderJSON), string(blockTransJSON))
}
