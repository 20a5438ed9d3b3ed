// Package mempool maintains the set of transactions waiting to be mined.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mempool/selector"
)

// Set of errors returned when a transaction is not accepted.
var (
	ErrCoinbase = errors.New("coinbase transactions can't be submitted")
	ErrInvalid  = errors.New("transaction is not valid")
	ErrExists   = errors.New("transaction is already pending")
)

// Storage is the behavior required to persist the pending set.
type Storage interface {
	Put(tx ledger.Tx) error
	Delete(hashes ...bighash.Hash) error
	Truncate() error
}

// Mempool represents a cache of pending transactions keyed by hash.
type Mempool struct {
	pool     map[bighash.Hash]ledger.Tx
	mu       sync.RWMutex
	selectFn selector.Func
	store    Storage
}

// New constructs a new mempool using the default select strategy and no
// persistence.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee, nil)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
// When a storage is provided every change to the pool is written to it.
func NewWithStrategy(strategy string, store Storage) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[bighash.Hash]ledger.Tx),
		selectFn: selectFn,
		store:    store,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the transaction is pending.
func (mp *Mempool) Contains(hash bighash.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[hash]
	return exists
}

// Upsert adds a transaction to the pool. A coinbase, an invalid transaction
// or one already pending is not accepted.
func (mp *Mempool) Upsert(tx ledger.Tx) (int, error) {
	if tx.Kind() == ledger.KindCoinbase {
		return 0, ErrCoinbase
	}

	if !tx.IsValid() {
		return 0, ErrInvalid
	}

	hash := tx.Hash()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[hash]; exists {
		return len(mp.pool), ErrExists
	}

	if mp.store != nil {
		if err := mp.store.Put(tx); err != nil {
			return len(mp.pool), fmt.Errorf("persist transaction: %w", err)
		}
	}

	mp.pool[hash] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the pool.
func (mp *Mempool) Delete(tx ledger.Tx) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.delete(tx.Hash())
}

// Purge removes every pending transaction the function reports as already
// recorded and returns the number removed.
func (mp *Mempool) Purge(recorded func(hash bighash.Hash) bool) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var hashes []bighash.Hash
	for hash := range mp.pool {
		if recorded(hash) {
			hashes = append(hashes, hash)
		}
	}

	if len(hashes) == 0 {
		return 0, nil
	}

	return len(hashes), mp.delete(hashes...)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[bighash.Hash]ledger.Tx)

	if mp.store != nil {
		return mp.store.Truncate()
	}
	return nil
}

// Copy returns a copy of the pending transactions in the strategy ordering.
func (mp *Mempool) Copy() []ledger.Tx {
	return mp.PickBest(-1)
}

// PickBest uses the configured select strategy to return the next set of
// transactions for the next block. Pass -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []ledger.Tx {

	// Group the transactions by payer.
	m := make(map[ledger.Account][]ledger.Tx)
	mp.mu.RLock()
	{
		for _, tx := range mp.pool {
			from := ledger.Payer(tx)
			m[from] = append(m[from], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// delete removes the transactions. The caller must hold the write lock.
func (mp *Mempool) delete(hashes ...bighash.Hash) error {
	for _, hash := range hashes {
		delete(mp.pool, hash)
	}

	if mp.store != nil {
		return mp.store.Delete(hashes...)
	}
	return nil
}
