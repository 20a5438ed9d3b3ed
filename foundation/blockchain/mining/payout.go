package mining

import (
	"errors"
	"math"
	"math/rand"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// Payee is an account receiving a share of every mined block.
type Payee struct {
	Account ledger.Account `json:"account"`
	Share   float64        `json:"share"`
}

// ShuffleFunc permutes n elements through swap. It matches rand.Shuffle so
// tests can inject a fixed order.
type ShuffleFunc func(n int, swap func(i, j int))

// RandomShuffle shuffles with the global random source.
var RandomShuffle ShuffleFunc = rand.Shuffle

// Payouts splits the total across the payees by share. Shares are
// normalized, each payee gets its rounded share and the rounding difference
// is settled one unit at a time in the order produced by shuffle. The
// outputs are returned in payee order and always add up to the total.
func Payouts(total int64, payees []Payee, shuffle ShuffleFunc) ([]ledger.Output, error) {
	if len(payees) == 0 {
		return nil, errors.New("no payees configured")
	}
	if total < 0 {
		return nil, errors.New("negative payout")
	}

	var sum float64
	for _, p := range payees {
		if p.Share < 0 || math.IsNaN(p.Share) || math.IsInf(p.Share, 0) {
			return nil, errors.New("invalid payee share")
		}
		sum += p.Share
	}
	if sum == 0 {
		return nil, errors.New("payee shares add up to zero")
	}

	amounts := make([]int64, len(payees))
	var paid int64
	for i, p := range payees {
		amounts[i] = int64(math.Round(float64(total) * p.Share / sum))
		paid += amounts[i]
	}

	order := make([]int, len(payees))
	for i := range order {
		order[i] = i
	}
	if shuffle != nil {
		shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	for paid < total {
		for _, i := range order {
			amounts[i]++
			paid++
			if paid == total {
				break
			}
		}
	}

	for paid > total {
		for _, i := range order {
			if amounts[i] == 0 {
				continue
			}
			amounts[i]--
			paid--
			if paid == total {
				break
			}
		}
	}

	outputs := make([]ledger.Output, len(payees))
	for i, p := range payees {
		outputs[i] = ledger.Output{Account: p.Account, Value: amounts[i]}
	}

	return outputs, nil
}
