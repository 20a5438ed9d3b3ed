package selector

import (
	"sort"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// feeSelect returns transactions with the best fee while respecting the id
// order of each payer.
var feeSelect = func(m map[ledger.Account][]ledger.Tx, howMany int) []ledger.Tx {

	/*
		Bill: {ID: 2, Fee: 250},
			  {ID: 1, Fee: 150},
		Pavl: {ID: 2, Fee: 200},
			  {ID: 1, Fee: 75},
		Edua: {ID: 2, Fee: 75},
			  {ID: 1, Fee: 100},
	*/

	// Sort the transactions per payer by id.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byID(m[key]))
		}
	}

	// Pick the first transaction in the slice for each payer. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]ledger.Tx
	for {
		var row []ledger.Tx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill: {ID: 1, Fee: 150},
		0: Pavl: {ID: 1, Fee: 75},
		0: Edua: {ID: 1, Fee: 100},
		1: Bill: {ID: 2, Fee: 250},
		1: Pavl: {ID: 2, Fee: 200},
		1: Edua: {ID: 2, Fee: 75},
	*/

	if howMany == -1 {
		howMany = 0
		for _, row := range rows {
			howMany += len(row)
		}
	}

	// Sort each row by fee so the best paying transactions of a row come
	// first. Keep pulling transactions from each row until the amount is
	// fulfilled or there are no more transactions.
	final := []ledger.Tx{}
	for _, row := range rows {
		sort.Stable(byFee(row))

		need := howMany - len(final)
		if len(row) >= need {
			final = append(final, row[:need]...)
			break
		}
		final = append(final, row...)
	}

	/*
		0: Bill: {ID: 1, Fee: 150},
		1: Edua: {ID: 1, Fee: 100},
		2: Pavl: {ID: 1, Fee: 75},
		3: Bill: {ID: 2, Fee: 250},
	*/

	return final
}
