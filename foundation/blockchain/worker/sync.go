package worker

import (
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// maxSummaryRequests represents the max number of peer summaries waiting to
// be compared with the local chain before summaries are dropped.
const maxSummaryRequests = 32

// =============================================================================

// Sync updates the peer list, mempool and chain from the known peers before
// the node starts its operations.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the summary of this peer's chain.
		summary, err := w.state.NetRequestChainSummary(pr)
		if err != nil {
			w.evHandler("worker: sync: NetRequestChainSummary: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(summary.KnownPeers)

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: NetRequestPeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			if err := w.state.SubmitTransaction(tx); err == nil {
				w.evHandler("worker: sync: NetRequestPeerMempool: %s: Add Tx: %s", pr.Host, tx.Hash().Short())
			}
		}

		// If this peer has a better chain, we need to adopt it.
		if w.isBetter(summary) {
			if _, err := w.reconciler.Reconcile(pr); err != nil {
				w.evHandler("worker: sync: Reconcile: %s: ERROR %s", pr.Host, err)
			}
		}
	}
}

// =============================================================================

// reconcileOperations handles the chain summaries received from peers.
func (w *Worker) reconcileOperations() {
	w.evHandler("worker: reconcileOperations: G started")
	defer w.evHandler("worker: reconcileOperations: G completed")

	for {
		select {
		case summary := <-w.summaries:
			if !w.isShutdown() {
				w.runReconcileOperation(summary)
			}
		case pr := <-w.resyncs:
			if !w.isShutdown() {
				w.runResyncOperation(pr)
			}
		case <-w.shut:
			w.evHandler("worker: reconcileOperations: received shut signal")
			return
		}
	}
}

// runReconcileOperation starts a reconciliation in the background when the
// peer advertises a better chain.
func (w *Worker) runReconcileOperation(summary peer.ChainSummary) {
	if summary.Host == "" || !w.isBetter(summary) {
		return
	}

	pr := peer.New(summary.Host)
	w.state.AddKnownPeer(pr)

	w.evHandler("worker: runReconcileOperation: peer[%s] size[%d] difficulty[%f]: dispatching", summary.Host, summary.Size, summary.TotalDifficulty)

	w.reconciler.Dispatch(pr, summary.HeadHash)
}

// runResyncOperation requests the summary of a peer whose block didn't link
// to the canonical head and reconciles when its chain is better.
func (w *Worker) runResyncOperation(pr peer.Peer) {
	summary, err := w.state.NetRequestChainSummary(pr)
	if err != nil {
		w.evHandler("worker: runResyncOperation: NetRequestChainSummary: %s: ERROR: %s", pr.Host, err)
		return
	}

	// The peer is reached at the host the block came from.
	summary.Host = pr.Host

	w.runReconcileOperation(summary)
}

// isBetter reports whether the summary describes a chain the fork choice
// would prefer over the canonical chain.
func (w *Worker) isBetter(summary peer.ChainSummary) bool {
	chain := w.state.Chain()
	if summary.HeadHash == chain.HeadHash() {
		return false
	}
	return summary.Better(chain.TotalDifficulty(), chain.Size())
}
