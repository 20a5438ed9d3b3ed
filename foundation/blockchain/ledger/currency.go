package ledger

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/signature"
)

// Input debits an account. The signature covers the whole unsigned
// transaction so inputs cannot be moved between transactions.
type Input struct {
	Account Account             `json:"account"`
	Value   int64               `json:"value"`
	Sig     signature.Signature `json:"sig"`
}

// CurrencyTx moves value from the input accounts to the output accounts.
// The difference between inputs and outputs is the fee paid to the miner.
type CurrencyTx struct {
	TxID    uint64   `json:"id"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// unsignedInput is the part of an input covered by the signatures.
type unsignedInput struct {
	Account Account `json:"account"`
	Value   int64   `json:"value"`
}

// NewCurrencyTx constructs an unsigned currency transaction.
func NewCurrencyTx(id uint64, outputs []Output) CurrencyTx {
	return CurrencyTx{
		TxID:    id,
		Outputs: outputs,
	}
}

// AddInput adds an input for the account of the private key and re-signs
// every existing input since the signed payload changed.
func (tx CurrencyTx) AddInput(value int64, keys ...*ecdsa.PrivateKey) (CurrencyTx, error) {
	if len(keys) != len(tx.Inputs)+1 {
		return CurrencyTx{}, errors.New("a key is required for every input")
	}

	inputs := make([]Input, len(tx.Inputs), len(tx.Inputs)+1)
	copy(inputs, tx.Inputs)
	inputs = append(inputs, Input{
		Account: PublicKeyToAccount(keys[len(keys)-1].PublicKey),
		Value:   value,
	})

	signed := CurrencyTx{TxID: tx.TxID, Inputs: inputs, Outputs: tx.Outputs}
	payload := signed.payload()

	for i := range signed.Inputs {
		sig, err := signature.Sign(payload, keys[i])
		if err != nil {
			return CurrencyTx{}, fmt.Errorf("sign input %d: %w", i, err)
		}
		signed.Inputs[i].Sig = sig
	}

	return signed, nil
}

// ID implements the Tx interface.
func (tx CurrencyTx) ID() uint64 { return tx.TxID }

// Kind implements the Tx interface.
func (CurrencyTx) Kind() Kind { return KindCurrency }

// Hash implements the Tx interface.
func (tx CurrencyTx) Hash() bighash.Hash {
	return signature.Hash(struct {
		Kind Kind       `json:"kind"`
		Tx   CurrencyTx `json:"tx"`
	}{KindCurrency, tx})
}

// IsValid implements the Tx interface. Every input must be signed by its
// account and the outputs may not exceed the inputs.
func (tx CurrencyTx) IsValid() bool {
	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return false
	}

	seen := make(map[Account]bool)
	payload := tx.payload()

	for _, in := range tx.Inputs {
		if in.Value <= 0 || !in.Account.IsAccount() || seen[in.Account.Canonical()] {
			return false
		}
		seen[in.Account.Canonical()] = true

		from, err := in.Sig.FromAddress(payload)
		if err != nil || !Account(from).Equal(in.Account) {
			return false
		}
	}

	for _, out := range tx.Outputs {
		if out.Value <= 0 || !out.Account.IsAccount() {
			return false
		}
	}

	_, ok := tx.fee()
	return ok
}

// Effects implements the Tx interface.
func (tx CurrencyTx) Effects() Effects {
	effects := make(Effects)
	for _, in := range tx.Inputs {
		effects[in.Account.Canonical()] -= in.Value
	}
	for _, out := range tx.Outputs {
		effects[out.Account.Canonical()] += out.Value
	}
	return effects
}

// Fee implements the Tx interface. A transaction whose amounts don't add
// up has no fee.
func (tx CurrencyTx) Fee() int64 {
	fee, ok := tx.fee()
	if !ok {
		return 0
	}
	return fee
}

// fee returns inputs minus outputs. It reports false when either sum is out
// of range or the outputs exceed the inputs.
func (tx CurrencyTx) fee() (int64, bool) {
	values := make([]int64, len(tx.Inputs))
	for i, input := range tx.Inputs {
		values[i] = input.Value
	}

	in, ok := AddValues(values...)
	if !ok {
		return 0, false
	}

	out, ok := sumOutputs(tx.Outputs)
	if !ok || out > in {
		return 0, false
	}

	return in - out, true
}

// Equals implements the Tx interface.
func (tx CurrencyTx) Equals(other Tx) bool { return equalHash(tx, other) }

// String implements the fmt.Stringer interface.
func (tx CurrencyTx) String() string {
	return fmt.Sprintf("currency[%d] inputs[%d] outputs[%d] fee[%d]", tx.TxID, len(tx.Inputs), len(tx.Outputs), tx.Fee())
}

// payload is the data covered by the input signatures.
func (tx CurrencyTx) payload() any {
	inputs := make([]unsignedInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = unsignedInput{Account: in.Account, Value: in.Value}
	}

	return struct {
		ID      uint64          `json:"id"`
		Inputs  []unsignedInput `json:"inputs"`
		Outputs []Output        `json:"outputs"`
	}{tx.TxID, inputs, tx.Outputs}
}
