// Package mining implements the proof of work search. A round hands the
// same frozen snapshot of work to a set of workers which race to find a
// block hash below the target.
package mining

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// checkInterval is the number of hashes a worker computes between checks
// for the end of the round.
const checkInterval = 1 << 14

// Set of errors describing a round that ended without a block.
var (
	ErrStopped    = errors.New("mining stopped")
	ErrOverflowed = errors.New("extra-nonce space exhausted")
)

// Status represents where the engine is in a mining round.
type Status int

// Set of round states.
const (
	StatusIdle Status = iota
	StatusRunning
	StatusSolved
	StatusSuperseded
	StatusStopped
	StatusOverflowed
)

var statusNames = map[Status]string{
	StatusIdle:       "idle",
	StatusRunning:    "running",
	StatusSolved:     "solved",
	StatusSuperseded: "superseded",
	StatusStopped:    "stopped",
	StatusOverflowed: "overflowed",
}

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	return statusNames[s]
}

// =============================================================================

// Work is the snapshot every worker of a round mines against.
type Work struct {
	Height   uint64          // Sequence number of the block being mined.
	PrevHash bighash.Hash    // Hash of the current head.
	Target   bighash.Hash    // The block hash must be below this value.
	MinTime  int64           // Timestamp of the current head in unix milliseconds.
	Txs      []ledger.Tx     // Transactions following the coinbase.
	Payouts  []ledger.Output // Coinbase outputs, reward plus fees.
}

// Engine runs mining rounds with a fixed number of concurrent workers.
type Engine struct {
	workers   int
	nonceSpan uint64
	coord     *Coordinator
	ev        func(v string, args ...any)

	round  sync.Mutex
	status atomic.Int32
	hashes atomic.Uint64
}

// Option configures an engine.
type Option func(*Engine)

// WithNonceSpan limits the nonces a worker scans for one extra-nonce.
func WithNonceSpan(span uint64) Option {
	return func(e *Engine) {
		e.nonceSpan = span
	}
}

// WithExtraNonceLimit limits the extra-nonces handed out in a round.
func WithExtraNonceLimit(limit uint64) Option {
	return func(e *Engine) {
		e.coord = NewCoordinator(limit)
	}
}

// New constructs an engine with the specified number of workers.
func New(workers int, ev func(v string, args ...any), opts ...Option) *Engine {
	if workers <= 0 {
		workers = 1
	}
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	e := Engine{
		workers:   workers,
		nonceSpan: math.MaxUint64,
		coord:     NewCoordinator(0),
		ev:        ev,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return &e
}

// Status returns the state of the current or last round.
func (e *Engine) Status() Status {
	return Status(e.status.Load())
}

// Hashes returns the number of hashes computed since the engine started.
func (e *Engine) Hashes() uint64 {
	return e.hashes.Load()
}

// Stop ends the running round and keeps new rounds from starting until
// Start is called.
func (e *Engine) Stop() {
	e.coord.SetStopped(true)
}

// Start allows rounds to run again after a Stop.
func (e *Engine) Start() {
	e.coord.SetStopped(false)
}

// IsStopped reports whether mining was stopped from outside.
func (e *Engine) IsStopped() bool {
	return e.coord.IsStopped()
}

// Mine runs one round against the work. It returns the block of the first
// worker to solve it. Cancelling the context supersedes the round.
func (e *Engine) Mine(ctx context.Context, work Work) (database.Block, error) {
	e.round.Lock()
	defer e.round.Unlock()

	if e.coord.IsStopped() {
		e.status.Store(int32(StatusStopped))
		return database.Block{}, ErrStopped
	}

	e.coord.Reset()
	e.status.Store(int32(StatusRunning))

	e.ev("mining: Mine: started: height[%d] prev[%s] txs[%d] workers[%d]", work.Height, work.PrevHash.Short(), len(work.Txs), e.workers)

	found := make(chan database.Block, 1)

	var wg sync.WaitGroup
	wg.Add(e.workers)

	for i := 0; i < e.workers; i++ {
		go func(id int) {
			defer wg.Done()

			if err := e.work(ctx, id, work, found); err != nil {
				e.ev("mining: worker[%d]: ERROR: %s", id, err)
			}
		}(i)
	}

	wg.Wait()

	select {
	case b := <-found:
		e.status.Store(int32(StatusSolved))
		e.ev("mining: Mine: solved: %s nonce[%d]", b, b.Header.Nonce)
		return b, nil
	default:
	}

	switch {
	case ctx.Err() != nil:
		e.status.Store(int32(StatusSuperseded))
		return database.Block{}, ctx.Err()

	case e.coord.IsStopped():
		e.status.Store(int32(StatusStopped))
		return database.Block{}, ErrStopped

	default:
		e.status.Store(int32(StatusOverflowed))
		return database.Block{}, ErrOverflowed
	}
}

// work is the loop of a single worker. Each extra-nonce yields a different
// coinbase and merkle root, so workers never scan the same headers.
func (e *Engine) work(ctx context.Context, id int, work Work, found chan<- database.Block) error {
	for !e.coord.done() && ctx.Err() == nil {
		extraNonce, ok := e.coord.NextExtraNonce()
		if !ok {
			return nil
		}

		txs := make([]ledger.Tx, 0, len(work.Txs)+1)
		txs = append(txs, ledger.NewCoinbase(work.Height, extraNonce, work.Payouts))
		txs = append(txs, work.Txs...)

		header := database.BlockHeader{
			PrevBlockHash: work.PrevHash,
			Target:        work.Target,
			TimeStamp:     max(time.Now().UnixMilli(), work.MinTime),
		}

		b, err := database.NewBlock(header, txs)
		if err != nil {
			return fmt.Errorf("build block: %w", err)
		}

		if e.scan(ctx, &b) {
			if e.coord.Finish() {
				found <- b
			}
			return nil
		}
	}

	return nil
}

// scan searches the nonce space of the block header. It returns true with
// the nonce and hash of the block set when a solution is found.
func (e *Engine) scan(ctx context.Context, b *database.Block) bool {
	header := b.Header

	var count uint64
	for nonce := uint64(0); nonce < e.nonceSpan; nonce++ {
		if count == checkInterval {
			e.hashes.Add(count)
			count = 0

			if e.coord.done() || ctx.Err() != nil {
				return false
			}
		}

		header.Nonce = nonce
		hash := header.Hash()
		count++

		if hash.Less(header.Target) {
			e.hashes.Add(count)
			b.Header = header
			b.Hash = hash
			return true
		}
	}

	e.hashes.Add(count)
	return false
}
