package public

import (
	"github.com/ardanlabs/idchain/business/sys/validate"
	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/merkle"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

type status struct {
	peer.ChainSummary
	Target  bighash.Hash `json:"target"`
	Mining  string       `json:"mining"`
	Allowed bool         `json:"mining_allowed"`
	Hashes  uint64       `json:"hashes"`
	Mined   uint64       `json:"mined"`
	Reorgs  uint64       `json:"reorgs"`
	Mempool int          `json:"mempool"`
	Refused string       `json:"refused,omitempty"`
	ChainID uint16       `json:"chain_id"`
	Branch  string       `json:"branch"`
}

type accountRequest struct {
	Account string `json:"account" validate:"required,account"`
}

// Validate checks the request is a well formed account.
func (ar accountRequest) Validate() error {
	return validate.Check(ar)
}

type balance struct {
	Account ledger.Account `json:"account"`
	Name    string         `json:"name"`
	Balance int64          `json:"balance"`
	Head    bighash.Hash   `json:"head"`
}

type identityRequest struct {
	Name string `json:"name" validate:"required,max=64,printascii"`
}

// Validate checks the name can be registered.
func (ir identityRequest) Validate() error {
	return validate.Check(ir)
}

type identity struct {
	Name     string         `json:"name"`
	Account  ledger.Account `json:"account"`
	Known    string         `json:"known_as"`
	Balance  int64          `json:"balance"`
	TxHash   bighash.Hash   `json:"tx"`
	Position int            `json:"position"`
}

type rangeRequest struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to" validate:"gtefield=From"`
}

// Validate checks the range is ordered.
func (rr rangeRequest) Validate() error {
	return validate.Check(rr)
}

type proof struct {
	Block      bighash.Hash            `json:"block"`
	MerkleRoot bighash.Hash            `json:"merkle_root"`
	Tx         ledger.Envelope         `json:"tx"`
	Hashes     []bighash.Hash          `json:"hashes"`
	Order      []int64                 `json:"order"`
	Tree       *merkle.Tree[ledger.Tx] `json:"tree"`
	Header     database.BlockHeader    `json:"header"`
}
