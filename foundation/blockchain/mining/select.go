package mining

import (
	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// Ledger is the chain state transaction selection is checked against.
type Ledger interface {
	Balance(account ledger.Account) (int64, error)
	Contains(txHash bighash.Hash) bool
}

// Select walks the candidates in order and keeps the ones the ledger can
// afford, leaving room for the coinbase in a block of maxTx transactions.
// A candidate that would take an account below zero, given the candidates
// kept before it, is skipped. Transactions already in the ledger are skipped.
func Select(l Ledger, candidates []ledger.Tx, maxTx int) []ledger.Tx {
	if maxTx <= 1 {
		return nil
	}

	balances := make(map[ledger.Account]int64)
	selected := make([]ledger.Tx, 0, min(len(candidates), maxTx-1))

next:
	for _, tx := range candidates {
		if l.Contains(tx.Hash()) {
			continue
		}

		effects := tx.Effects()
		for account, value := range effects {
			if _, exists := balances[account]; !exists {
				bal, err := l.Balance(account)
				if err != nil {
					continue next
				}
				balances[account] = bal
			}
			bal, ok := ledger.AddDelta(balances[account], value)
			if !ok || bal < 0 || bal > ledger.MaxValue {
				continue next
			}
		}

		for account, value := range effects {
			balances[account] += value
		}

		selected = append(selected, tx)
		if len(selected) == maxTx-1 {
			break
		}
	}

	return selected
}

// Fees adds up the fees of the value transfer transactions.
func Fees(txs []ledger.Tx) int64 {
	var fees int64
	for _, tx := range txs {
		if ledger.IsTransfer(tx) {
			fees += tx.Fee()
		}
	}
	return fees
}
