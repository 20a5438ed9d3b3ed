package selector

import (
	"sort"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// advancedFeeSelect returns transactions with the best fee while respecting
// the id order of each payer. This strategy takes into account high fee
// transactions that happen to be stuck behind a low fee transaction of the
// same payer.
var advancedFeeSelect = func(m map[ledger.Account][]ledger.Tx, howMany int) []ledger.Tx {
	final := []ledger.Tx{}

	// Sort the transactions per payer by id.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byID(m[key]))
		}
	}

	if howMany == -1 {
		for _, group := range m {
			final = append(final, group...)
		}
		return final
	}

	af := newAdvancedFees(m, howMany)
	for _, from := range af.payers {
		for i := 0; i < af.bestPos[from]; i++ {
			final = append(final, m[from][i])
		}
	}

	return final
}

// =============================================================================

type advancedFees struct {
	howMany   int
	bestFee   int64
	bestUsed  int
	bestPos   map[ledger.Account]int
	groupFees map[ledger.Account][]int64
	payers    []ledger.Account
}

func newAdvancedFees(m map[ledger.Account][]ledger.Tx, howMany int) *advancedFees {
	groupFees := map[ledger.Account][]int64{}
	payers := []ledger.Account{}

	for from := range m {
		groupFees[from] = []int64{0}
		payers = append(payers, from)
	}
	sort.Slice(payers, func(i, j int) bool { return payers[i] < payers[j] })

	// groupFees[from][n] is the total fee of taking the first n transactions.
	for from, group := range m {
		for i, tx := range group {
			if i >= howMany {
				break
			}
			groupFees[from] = append(groupFees[from], tx.Fee()+groupFees[from][i])
		}
	}

	af := advancedFees{
		howMany:   howMany,
		bestFee:   -1,
		bestPos:   map[ledger.Account]int{},
		groupFees: groupFees,
		payers:    payers,
	}
	af.findBest(0, howMany, map[ledger.Account]int{}, 0)

	return &af
}

// findBest searches every combination of prefixes that fits in the space
// left. More transactions win a tie on fee.
func (af *advancedFees) findBest(groupID int, left int, currPos map[ledger.Account]int, prevFee int64) {
	if groupID >= len(af.payers) {
		used := af.howMany - left
		if prevFee > af.bestFee || (prevFee == af.bestFee && used > af.bestUsed) {
			af.bestFee = prevFee
			af.bestUsed = used
			af.bestPos = copyMap(currPos)
		}
		return
	}
	from := af.payers[groupID]

	for pos, fee := range af.groupFees[from] {
		if left-pos < 0 {
			break
		}

		currPos[from] = pos
		af.findBest(groupID+1, left-pos, currPos, prevFee+fee)
	}
	delete(currPos, from)
}

// =============================================================================

func copyMap(m map[ledger.Account]int) map[ledger.Account]int {
	cpy := map[ledger.Account]int{}
	for from, pos := range m {
		cpy[from] = pos
	}

	return cpy
}
