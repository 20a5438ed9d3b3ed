// Package worker implements mining, peer updates, transaction sharing and
// chain reconciliation for the blockchain.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
	"github.com/ardanlabs/idchain/foundation/blockchain/reconcile"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	lru "github.com/hashicorp/golang-lru/v2"
)

// peerUpdateInterval represents the interval of finding new peer nodes
// and exchanging chain summaries with them.
const peerUpdateInterval = time.Minute

// relayCacheSize is the number of recently shared transactions remembered
// so the same transaction isn't shared again.
const relayCacheSize = 4096

// =============================================================================

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	reconciler   *reconcile.Reconciler
	relayed      *lru.Cache[bighash.Hash, struct{}]
	wg           sync.WaitGroup
	ticker       time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	txSharing    chan ledger.Tx
	summaries    chan peer.ChainSummary
	resyncs      chan peer.Peer
	headChanged  chan bool
	unsubscribe  func()
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	relayed, _ := lru.New[bighash.Hash, struct{}](relayCacheSize)

	w := Worker{
		state:        st,
		reconciler:   reconcile.New(st, st, evHandler),
		relayed:      relayed,
		ticker:       *time.NewTicker(peerUpdateInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		txSharing:    make(chan ledger.Tx, maxTxShareRequests),
		summaries:    make(chan peer.ChainSummary, maxSummaryRequests),
		resyncs:      make(chan peer.Peer, maxSummaryRequests),
		headChanged:  make(chan bool, 1),
		evHandler:    evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Peers learn about every change of the head.
	w.unsubscribe = st.Feed().Subscribe(w.signalHeadChanged)

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.shareTxOperations,
		w.reconcileOperations,
		w.summaryOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Start mining right away when this node is configured to.
	w.SignalStartMining()
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: unsubscribe from chain events")
	w.unsubscribe()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()

	w.evHandler("worker: shutdown: wait for reconciliations")
	w.reconciler.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining turned off")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. That G will not return from the function until done
// is called. This allows the caller to complete any state changes before a
// new mining operation takes place.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")

	return func() { close(wait) }
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
// A transaction shared recently is not shared again.
func (w *Worker) SignalShareTx(tx ledger.Tx) {
	if seen, _ := w.relayed.ContainsOrAdd(tx.Hash(), struct{}{}); seen {
		w.evHandler("worker: SignalShareTx: tx[%s] already shared", tx.Hash().Short())
		return
	}

	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// SignalReshareTx shares the transaction again even when it was shared
// before, as happens when a reorganization abandons the block holding it.
func (w *Worker) SignalReshareTx(tx ledger.Tx) {
	w.relayed.Remove(tx.Hash())
	w.SignalShareTx(tx)
}

// SignalReconcile signals the summary of a peer's chain was received. If
// maxSummaryRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalReconcile(summary peer.ChainSummary) {
	select {
	case w.summaries <- summary:
		w.evHandler("worker: SignalReconcile: peer[%s] summary signaled", summary.Host)
	default:
		w.evHandler("worker: SignalReconcile: queue full, summary dropped.")
	}
}

// SignalResync signals the peer sent a block that doesn't link to the head
// of the canonical chain. The peer's summary is requested so this node can
// reconcile with it. If maxSummaryRequests signals exist in the channel, we
// won't send these.
func (w *Worker) SignalResync(pr peer.Peer) {
	select {
	case w.resyncs <- pr:
		w.evHandler("worker: SignalResync: peer[%s] resync signaled", pr.Host)
	default:
		w.evHandler("worker: SignalResync: queue full, resync dropped.")
	}
}

// =============================================================================

// signalHeadChanged is subscribed to the chain events of the state. If
// there is already a signal pending, the pending broadcast covers this one.
func (w *Worker) signalHeadChanged(ev database.ChainEvent) {
	select {
	case w.headChanged <- true:
		w.evHandler("worker: signalHeadChanged: head[%s] size[%d]", ev.Head.Hash.Short(), ev.Size)
	default:
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
