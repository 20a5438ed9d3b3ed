package database

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/merkle"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevBlockHash bighash.Hash `json:"prev_block_hash"` // Hash of the previous block in the chain.
	Target        bighash.Hash `json:"target"`          // The block hash must be below this value.
	Nonce         uint64       `json:"nonce"`           // Value identified to solve the hash solution.
	TimeStamp     int64        `json:"timestamp"`       // Time the block was mined in unix milliseconds.
	MerkleRoot    bighash.Hash `json:"merkle_root"`     // Merkle root of the transactions in this block.
}

// headerSize is the number of bytes hashed for a header.
const headerSize = 3*bighash.Size + 16

// Hash calculates the hash of the header fields.
func (bh BlockHeader) Hash() bighash.Hash {
	var buf [headerSize]byte
	copy(buf[0:], bh.PrevBlockHash[:])
	copy(buf[32:], bh.Target[:])
	binary.BigEndian.PutUint64(buf[64:], bh.Nonce)
	binary.BigEndian.PutUint64(buf[72:], uint64(bh.TimeStamp))
	copy(buf[80:], bh.MerkleRoot[:])

	return bighash.Hash(sha256.Sum256(buf[:]))
}

// IsSolved reports whether the header hash falls under its target.
func (bh BlockHeader) IsSolved() bool {
	return bh.Hash().Less(bh.Target)
}

// =============================================================================

// Block represents a group of transactions batched together. A block is
// never mutated once constructed and is identified by its hash.
type Block struct {
	Hash   bighash.Hash
	Header BlockHeader
	Trans  *merkle.Tree[ledger.Tx]
}

// NewBlock constructs a block over the transactions. The merkle root of the
// header is set from the transactions and the hash is calculated.
func NewBlock(header BlockHeader, txs []ledger.Tx) (Block, error) {
	tree, err := merkle.NewTree(txs)
	if err != nil {
		return Block{}, fmt.Errorf("build merkle tree: %w", err)
	}

	header.MerkleRoot = tree.RootHash()

	b := Block{
		Hash:   header.Hash(),
		Header: header,
		Trans:  tree,
	}

	return b, nil
}

// IsValid reports whether the block hash is below its target and matches the
// hash of the header. The transactions are not validated.
func (b Block) IsValid() bool {
	return b.Hash.Less(b.Header.Target) && b.Hash == b.Header.Hash()
}

// Equal reports whether both blocks are valid and have the same hash. An
// invalid block is not equal to anything, itself included.
func (b Block) Equal(o Block) bool {
	return b.IsValid() && o.IsValid() && b.Hash == o.Hash
}

// Values returns the transactions of the block in order.
func (b Block) Values() []ledger.Tx {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// VerifyCoinbase checks the first transaction is the only coinbase in the
// block and that it pays exactly the reward plus the fees of the other
// value transfer transactions.
func (b Block) VerifyCoinbase(reward int64) bool {
	txs := b.Values()
	if len(txs) == 0 {
		return false
	}

	cb, ok := txs[0].(ledger.Coinbase)
	if !ok || !cb.IsValid() {
		return false
	}

	values := []int64{reward}
	for _, tx := range txs[1:] {
		if tx.Kind() == ledger.KindCoinbase {
			return false
		}
		if ledger.IsTransfer(tx) {
			if !tx.IsValid() {
				return false
			}
			values = append(values, tx.Fee())
		}
	}

	expected, ok := ledger.AddValues(values...)
	if !ok {
		return false
	}

	total, ok := cb.Total()
	return ok && total == expected
}

// Effects merges the effects of every value transfer in the block, the
// coinbase included.
func (b Block) Effects() ledger.Effects {
	effects, _ := b.CheckedEffects()
	return effects
}

// CheckedEffects is Effects, also reporting false when a merged value
// leaves the int64 range.
func (b Block) CheckedEffects() (ledger.Effects, bool) {
	effects := make(ledger.Effects)
	for _, tx := range b.Values() {
		if !effects.Merge(tx.Effects()) {
			return effects, false
		}
	}
	return effects, true
}

// NegativeEffects returns the accounts whose balance the block reduces.
func (b Block) NegativeEffects() ledger.Effects {
	return b.Effects().Negative()
}

// Difficulty returns the work the block represents relative to the
// genesis era target.
func (b Block) Difficulty() float64 {
	return bighash.Difficulty(b.Header.Target)
}

// Proof returns the transaction tree with every subtree not leading to the
// specified transaction replaced by a stub.
func (b Block) Proof(txHash bighash.Hash) (*merkle.Tree[ledger.Tx], error) {
	found := false
	pruned := b.Trans.Prune(func(tx ledger.Tx) bool {
		if tx.Hash() == txHash {
			found = true
			return true
		}
		return false
	})

	if !found {
		return nil, fmt.Errorf("block %s: %w", b.Hash.Short(), merkle.ErrNotFound)
	}

	return pruned, nil
}

// String implements the fmt.Stringer interface.
func (b Block) String() string {
	return fmt.Sprintf("blk[%s] prev[%s] trans[%d]", b.Hash.Short(), b.Header.PrevBlockHash.Short(), b.Trans.Len())
}

// =============================================================================

// BlockData represents what is written to a block file and sent between
// nodes.
type BlockData struct {
	Hash   bighash.Hash      `json:"hash"`
	Header BlockHeader       `json:"block"`
	Trans  []ledger.Envelope `json:"trans"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash,
		Header: block.Header,
		Trans:  ledger.Wrap(block.Values()),
	}
}

// ToBlock converts BlockData into a Block. The merkle tree is rebuilt from
// the transactions and must match the root in the header.
func ToBlock(bd BlockData) (Block, error) {
	tree, err := merkle.NewTree(ledger.Unwrap(bd.Trans))
	if err != nil {
		return Block{}, err
	}

	if tree.RootHash() != bd.Header.MerkleRoot {
		return Block{}, fmt.Errorf("merkle root does not match transactions, got %s, exp %s", tree.RootHex(), bd.Header.MerkleRoot)
	}

	b := Block{
		Hash:   bd.Hash,
		Header: bd.Header,
		Trans:  tree,
	}

	return b, nil
}
