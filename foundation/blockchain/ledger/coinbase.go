package ledger

import (
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/signature"
)

// Coinbase issues the mining reward. It has no inputs and is only valid as
// the first transaction of a block.
type Coinbase struct {
	TxID       uint64   `json:"id"`
	Height     uint64   `json:"height"`
	ExtraNonce uint64   `json:"extra_nonce"`
	Outputs    []Output `json:"outputs"`
}

// NewCoinbase constructs a coinbase for the block at the specified height.
func NewCoinbase(height uint64, extraNonce uint64, outputs []Output) Coinbase {
	return Coinbase{
		TxID:       height,
		Height:     height,
		ExtraNonce: extraNonce,
		Outputs:    outputs,
	}
}

// ID implements the Tx interface.
func (cb Coinbase) ID() uint64 { return cb.TxID }

// Kind implements the Tx interface.
func (Coinbase) Kind() Kind { return KindCoinbase }

// Hash implements the Tx interface.
func (cb Coinbase) Hash() bighash.Hash {
	return signature.Hash(struct {
		Kind Kind     `json:"kind"`
		Tx   Coinbase `json:"tx"`
	}{KindCoinbase, cb})
}

// IsValid implements the Tx interface.
func (cb Coinbase) IsValid() bool {
	if len(cb.Outputs) == 0 {
		return false
	}

	for _, out := range cb.Outputs {
		if out.Value < 0 || !out.Account.IsAccount() {
			return false
		}
	}

	_, ok := sumOutputs(cb.Outputs)
	return ok
}

// Effects implements the Tx interface.
func (cb Coinbase) Effects() Effects {
	effects := make(Effects)
	for _, out := range cb.Outputs {
		effects[out.Account.Canonical()] += out.Value
	}
	return effects
}

// Fee implements the Tx interface.
func (Coinbase) Fee() int64 { return 0 }

// Equals implements the Tx interface.
func (cb Coinbase) Equals(other Tx) bool { return equalHash(cb, other) }

// Total returns the total value issued by the coinbase. It reports false
// when the outputs don't add up within MaxValue.
func (cb Coinbase) Total() (int64, bool) {
	return sumOutputs(cb.Outputs)
}

// String implements the fmt.Stringer interface.
func (cb Coinbase) String() string {
	total, _ := cb.Total()
	return fmt.Sprintf("coinbase[%d] extra[%d] total[%d]", cb.Height, cb.ExtraNonce, total)
}
