// Package ledger defines the transaction variants recorded in blocks. Block
// and chain logic only consume the Tx behavior: validity, effects on
// balances, content hash and fee.
package ledger

import (
	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
)

// Kind identifies a transaction variant.
type Kind string

// Set of transaction variants.
const (
	KindCoinbase Kind = "coinbase"
	KindCurrency Kind = "currency"
	KindIdentity Kind = "identity"
	KindMessage  Kind = "message"
)

// Tx is the behavior every transaction variant provides.
type Tx interface {
	ID() uint64
	Kind() Kind
	Hash() bighash.Hash
	IsValid() bool

	// Effects returns the balance changes the transaction implies. Variants
	// that do not transfer value return nil.
	Effects() Effects

	// Fee is inputs minus outputs for value transfer variants, zero otherwise.
	Fee() int64

	Equals(other Tx) bool
}

// IsTransfer reports whether the transaction moves value between accounts
// and contributes fees to the block.
func IsTransfer(tx Tx) bool {
	return tx.Kind() == KindCurrency
}

// =============================================================================

// Output credits an account with a value.
type Output struct {
	Account Account `json:"account"`
	Value   int64   `json:"value"`
}

// MaxValue bounds every amount a transaction carries and every sum of
// amounts, so totals never leave the int64 range.
const MaxValue int64 = 1 << 62

// AddValues sums the values. It reports false when a value is negative or
// the total goes above MaxValue.
func AddValues(values ...int64) (int64, bool) {
	var total int64
	for _, v := range values {
		if v < 0 || v > MaxValue-total {
			return 0, false
		}
		total += v
	}
	return total, true
}

// sumOutputs adds up the value of the outputs.
func sumOutputs(outputs []Output) (int64, bool) {
	values := make([]int64, len(outputs))
	for i, out := range outputs {
		values[i] = out.Value
	}
	return AddValues(values...)
}

// equalHash is the Equals implementation shared by the variants.
func equalHash(tx Tx, other Tx) bool {
	if other == nil {
		return false
	}
	return tx.Hash() == other.Hash()
}

// Payer returns the account that originates the transaction. A coinbase has
// no payer and returns an empty account.
func Payer(tx Tx) Account {
	switch v := tx.(type) {
	case CurrencyTx:
		if len(v.Inputs) > 0 {
			return v.Inputs[0].Account.Canonical()
		}
	case IdentityEntry:
		return v.Account.Canonical()
	case Message:
		return v.From.Canonical()
	}

	return ""
}
