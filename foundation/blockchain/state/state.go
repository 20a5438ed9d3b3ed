// Package state is the core API for the blockchain and implements all the
// business rules and processing. It owns the canonical chain and decides
// when a better chain replaces it.
package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/idchain/foundation/blockchain/mempool/pooldb"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
	"github.com/ardanlabs/idchain/foundation/blockchain/notify"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// ErrRefused is returned once a storage failure left the canonical chain in
// a state the node can't trust. No blocks are mined or accepted after that.
var ErrRefused = errors.New("node refuses work after a storage failure")

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx ledger.Tx)
	SignalReshareTx(tx ledger.Tx)
	SignalReconcile(summary peer.ChainSummary)
	SignalResync(pr peer.Peer)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Beneficiaries  []mining.Payee
	Host           string
	DBPath         string
	Genesis        genesis.Genesis
	SelectStrategy string
	KnownPeers     *peer.PeerSet
	Miners         int
	CacheSlots     int
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	beneficiaries []mining.Payee
	host          string
	dbPath        string
	miners        int
	evHandler     EventHandler

	genesis     genesis.Genesis
	genesisHash bighash.Hash

	mu      sync.Mutex
	chain   atomic.Pointer[database.Chain]
	refused atomic.Pointer[error]
	reorgs  atomic.Uint64
	mined   atomic.Uint64

	feed       *notify.Feed[database.ChainEvent]
	knownPeers *peer.PeerSet
	mempool    *mempool.Mempool
	pool       *pooldb.DB
	engine     *mining.Engine

	Worker Worker
}

// New constructs a new blockchain for data management. The database path
// is registered so only one State manages it at a time.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	key, err := filepath.Abs(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if err := registry.reserve(key); err != nil {
		return nil, err
	}

	s, err := open(cfg, key, ev)
	if err != nil {
		registry.release(key)
		return nil, err
	}

	registry.set(key, s)

	return s, nil
}

// open performs the work of New once the path is reserved.
func open(cfg Config, key string, ev EventHandler) (*State, error) {
	genesisBlock, err := cfg.Genesis.Block()
	if err != nil {
		return nil, fmt.Errorf("build genesis block: %w", err)
	}

	// Access the storage for the blockchain.
	chain, err := database.Open(database.Config{
		DBPath:       cfg.DBPath,
		MiningReward: cfg.Genesis.MiningReward,
		CacheSlots:   cfg.CacheSlots,
		EvHandler:    ev,
	})
	if err != nil {
		return nil, err
	}

	switch chain.Size() {
	case 0:
		ev("state: New: writing genesis block[%s]", genesisBlock.Hash.Short())
		if err := chain.PushBlock(genesisBlock); err != nil {
			return nil, fmt.Errorf("push genesis block: %w", err)
		}
		if err := chain.Save(); err != nil {
			return nil, fmt.Errorf("save chain: %w", err)
		}

	default:
		first, err := chain.BlockAt(0)
		if err != nil {
			return nil, err
		}
		if first.Hash != genesisBlock.Hash {
			return nil, fmt.Errorf("database genesis %s does not match genesis file %s", first.Hash.Short(), genesisBlock.Hash.Short())
		}
	}

	// Reload the pending transactions and drop the ones already mined.
	pool, err := pooldb.Open(filepath.Join(cfg.DBPath, "mempool"))
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified sort strategy.
	mp, err := mempool.NewWithStrategy(cfg.SelectStrategy, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	pending, err := pool.Load(ev)
	if err != nil {
		pool.Close()
		return nil, err
	}
	for _, tx := range pending {
		mp.Upsert(tx)
	}
	if _, err := mp.Purge(chain.Contains); err != nil {
		ev("state: New: purge mempool: WARNING: %s", err)
	}

	feed := notify.New[database.ChainEvent]()
	chain.SetFeed(feed)

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	s := State{
		beneficiaries: cfg.Beneficiaries,
		host:          cfg.Host,
		dbPath:        key,
		miners:        cfg.Miners,
		evHandler:     ev,

		genesis:     cfg.Genesis,
		genesisHash: genesisBlock.Hash,

		feed:       feed,
		knownPeers: knownPeers,
		mempool:    mp,
		pool:       pool,
		engine:     mining.New(cfg.Miners, ev),
	}
	s.chain.Store(chain)

	ev("state: New: chain ready: size[%d] head[%s] pending[%d]", chain.Size(), chain.HeadHash().Short(), mp.Count())

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database is properly closed and the path released.
	defer func() {
		s.pool.Close()
		registry.release(s.dbPath)
	}()

	s.engine.Stop()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chain.Load()
	chain.Wait()

	return chain.Save()
}

// Refused returns the error that put the node into refused mode, or nil.
func (s *State) Refused() error {
	if err := s.refused.Load(); err != nil {
		return fmt.Errorf("%w: %w", ErrRefused, *err)
	}
	return nil
}

// refuse puts the node into refused mode and stops mining.
func (s *State) refuse(err error) error {
	s.refused.CompareAndSwap(nil, &err)
	s.engine.Stop()

	s.evHandler("state: refuse: ERROR: %s", err)

	return s.Refused()
}
