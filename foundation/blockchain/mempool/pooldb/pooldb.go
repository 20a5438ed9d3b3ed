// Package pooldb persists the pending transaction set so it survives a
// restart of the node.
package pooldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/syndtr/goleveldb/leveldb"
)

// DB stores pending transactions keyed by their hash.
type DB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens or creates the database in the specified directory.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("pool database path required")
	}

	db, err := leveldb.OpenFile(filepath.Clean(path), nil)
	if err != nil {
		return nil, fmt.Errorf("open pool database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close flushes and closes the underlying database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil
	return err
}

// Put stores the transaction.
func (d *DB) Put(tx ledger.Tx) error {
	data, err := json.Marshal(ledger.Envelope{Tx: tx})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return leveldb.ErrClosed
	}

	hash := tx.Hash()
	return d.db.Put(hash.Bytes(), data, nil)
}

// Delete removes the transactions with the specified hashes.
func (d *DB) Delete(hashes ...bighash.Hash) error {
	batch := new(leveldb.Batch)
	for _, hash := range hashes {
		batch.Delete(hash.Bytes())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return leveldb.ErrClosed
	}

	return d.db.Write(batch, nil)
}

// Truncate removes every transaction.
func (d *DB) Truncate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return leveldb.ErrClosed
	}

	iter := d.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}

	return d.db.Write(batch, nil)
}

// Load returns every stored transaction. Records that can't be decoded are
// skipped and reported through the handler.
func (d *DB) Load(ev func(v string, args ...any)) ([]ledger.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil, leveldb.ErrClosed
	}

	iter := d.db.NewIterator(nil, nil)
	defer iter.Release()

	var txs []ledger.Tx
	for iter.Next() {
		var env ledger.Envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			ev("pooldb: Load: skipping record[%x]: %s", iter.Key(), err)
			continue
		}
		txs = append(txs, env.Tx)
	}

	return txs, iter.Error()
}
