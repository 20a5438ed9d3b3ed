package state

import (
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// SubmitTransaction accepts a transaction for inclusion in a future block.
// Accepted transactions are shared with the known peers.
func (s *State) SubmitTransaction(tx ledger.Tx) error {
	if s.chain.Load().Contains(tx.Hash()) {
		return fmt.Errorf("transaction %s is already in the chain", tx.Hash().Short())
	}

	n, err := s.mempool.Upsert(tx)
	if err != nil {
		return err
	}

	s.evHandler("state: SubmitTransaction: %s pending[%d]", tx.Hash().Short(), n)

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartMining()
	}

	return nil
}
