package state

import (
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// Better reports whether the candidate chain should replace the current
// one. An invalid candidate never wins, a valid candidate always beats an
// invalid chain, otherwise the higher total difficulty wins and on equal
// difficulty the longer chain wins. On a full tie the current chain stays.
func Better(current *database.Chain, candidate *database.Chain) bool {
	if !candidate.IsValid() {
		return false
	}

	if !current.IsValid() {
		return true
	}

	cs := peer.ChainSummary{
		Size:            candidate.Size(),
		TotalDifficulty: candidate.TotalDifficulty(),
	}

	return cs.Better(current.TotalDifficulty(), current.Size())
}

// ReplaceChain adopts the candidate as the canonical chain when it is
// better. The blocks of the current chain after the common block are
// deleted, the candidate is promoted and persisted, and subscribers are
// notified. Transactions of the abandoned blocks go back to the mempool.
func (s *State) ReplaceChain(candidate *database.Chain) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Refused(); err != nil {
		return false, err
	}

	current := s.chain.Load()
	if candidate == current || !Better(current, candidate) {
		s.evHandler("state: ReplaceChain: candidate branch[%s] size[%d] not better than branch[%s] size[%d]", candidate.Branch(), candidate.Size(), current.Branch(), current.Size())
		return false, nil
	}

	trace, err := candidate.Trace()
	if err != nil {
		return false, err
	}

	if trace[len(trace)-1] != s.genesisHash {
		return false, fmt.Errorf("%w: candidate starts at %s, genesis is %s", database.ErrRejected, trace[len(trace)-1].Short(), s.genesisHash.Short())
	}

	common := current.FirstCommonBlock(trace)

	abandoned, err := abandonedTxs(current, common)
	if err != nil {
		return false, err
	}

	s.evHandler("state: ReplaceChain: adopting branch[%s] size[%d] common[%s] abandoned txs[%d]", candidate.Branch(), candidate.Size(), common.Short(), len(abandoned))

	// Once the metadata points at the candidate, reopening the database
	// completes the promotion, so failures past this point are fatal.
	if err := candidate.Save(); err != nil {
		return false, fmt.Errorf("save candidate: %w", err)
	}

	if err := current.Delete(common); err != nil {
		return false, s.refuse(fmt.Errorf("delete superseded blocks: %w", err))
	}

	if err := candidate.Promote(); err != nil {
		return false, s.refuse(fmt.Errorf("promote candidate: %w", err))
	}

	candidate.SetFeed(s.feed)
	s.chain.Store(candidate)
	s.reorgs.Add(1)

	head, err := candidate.Head()
	if err != nil {
		return true, s.refuse(fmt.Errorf("read promoted head: %w", err))
	}

	s.feed.Publish(database.ChainEvent{Head: head, Size: candidate.Size(), Replaced: true})

	s.purgeMempool(candidate)
	for _, tx := range abandoned {
		if candidate.Contains(tx.Hash()) {
			continue
		}
		if _, err := s.mempool.Upsert(tx); err != nil {
			s.evHandler("state: ReplaceChain: abandoned tx[%s]: %s", tx.Hash().Short(), err)
			continue
		}

		// Peers following the old branch dropped this transaction too.
		if s.Worker != nil {
			s.Worker.SignalReshareTx(tx)
		}
	}

	s.blockEvent(head)

	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer func() {
			done()
			s.Worker.SignalStartMining()
		}()
	}

	return true, nil
}

// abandonedTxs returns the non coinbase transactions of the blocks from the
// head of the chain back to, but not including, the stop block.
func abandonedTxs(chain *database.Chain, stop bighash.Hash) ([]ledger.Tx, error) {
	var txs []ledger.Tx

	for hash := chain.HeadHash(); hash != stop && !hash.IsZero(); {
		b, err := chain.Get(hash)
		if err != nil {
			return nil, err
		}

		for _, tx := range b.Values() {
			if tx.Kind() != ledger.KindCoinbase {
				txs = append(txs, tx)
			}
		}

		hash = b.Header.PrevBlockHash
	}

	return txs, nil
}
