// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// List of different select strategies.
const (
	StrategyFee         = "fee"
	StrategyFeeAdvanced = "fee_advanced"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:         feeSelect,
	StrategyFeeAdvanced: advancedFeeSelect,
}

// Func defines a function that takes pending transactions grouped by payer
// and selects howMany of them in an order based on the functions strategy.
// All selector functions MUST respect the id ordering of a payer. Receiving
// -1 for howMany must return all the transactions in the strategies ordering.
type Func func(transactions map[ledger.Account][]ledger.Tx, howMany int) []ledger.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byID provides sorting support by the transaction id value.
type byID []ledger.Tx

// Len returns the number of transactions in the list.
func (bi byID) Len() int {
	return len(bi)
}

// Less helps to sort the list by id in ascending order to keep the
// transactions of a payer in the order they were created.
func (bi byID) Less(i, j int) bool {
	return bi[i].ID() < bi[j].ID()
}

// Swap moves transactions in the order of the id value.
func (bi byID) Swap(i, j int) {
	bi[i], bi[j] = bi[j], bi[i]
}

// =============================================================================

// byFee provides sorting support by the transaction fee value.
type byFee []ledger.Tx

// Len returns the number of transactions in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in decending order to pick the
// transactions that provide the best reward.
func (bf byFee) Less(i, j int) bool {
	return bf[i].Fee() > bf[j].Fee()
}

// Swap moves transactions in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}
