package ledger

import (
	"encoding/json"
	"fmt"
)

// Envelope carries a transaction of any variant through JSON.
type Envelope struct {
	Tx Tx
}

// Wrap converts a list of transactions into envelopes.
func Wrap(txs []Tx) []Envelope {
	envs := make([]Envelope, len(txs))
	for i, tx := range txs {
		envs[i] = Envelope{Tx: tx}
	}
	return envs
}

// Unwrap converts a list of envelopes back into transactions.
func Unwrap(envs []Envelope) []Tx {
	txs := make([]Tx, len(envs))
	for i, env := range envs {
		txs[i] = env.Tx
	}
	return txs
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON implements the json.Marshaler interface.
func (env Envelope) MarshalJSON() ([]byte, error) {
	if env.Tx == nil {
		return nil, fmt.Errorf("empty transaction envelope")
	}

	data, err := json.Marshal(env.Tx)
	if err != nil {
		return nil, err
	}

	return json.Marshal(envelope{Kind: env.Tx.Kind(), Data: data})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (env *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var tx Tx
	var err error

	switch raw.Kind {
	case KindCoinbase:
		var v Coinbase
		err = json.Unmarshal(raw.Data, &v)
		tx = v
	case KindCurrency:
		var v CurrencyTx
		err = json.Unmarshal(raw.Data, &v)
		tx = v
	case KindIdentity:
		var v IdentityEntry
		err = json.Unmarshal(raw.Data, &v)
		tx = v
	case KindMessage:
		var v Message
		err = json.Unmarshal(raw.Data, &v)
		tx = v
	default:
		return fmt.Errorf("unknown transaction kind %q", raw.Kind)
	}

	if err != nil {
		return fmt.Errorf("decode %s transaction: %w", raw.Kind, err)
	}

	env.Tx = tx
	return nil
}
