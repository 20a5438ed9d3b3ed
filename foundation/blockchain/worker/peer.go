package worker

import (
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// peerOperations handles finding new peers and exchanging chain summaries.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list and compares chains with every
// peer. A peer holding a better chain is reconciled with, and every peer is
// told about this node's chain so it can do the same.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the summary of this peer's chain.
		summary, err := w.state.NetRequestChainSummary(pr)
		if err != nil {
			w.evHandler("worker: runPeersOperation: NetRequestChainSummary: %s: ERROR: %s", pr.Host, err)
			w.state.RemoveKnownPeer(pr)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(summary.KnownPeers)

		w.SignalReconcile(summary)
	}

	// Get the latest peers and let them know this node is available and
	// what chain it holds.
	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetRequestAddPeer(pr); err != nil {
			w.evHandler("worker: runPeersOperation: NetRequestAddPeer: %s: ERROR: %s", pr.Host, err)
			continue
		}

		if err := w.state.NetSendSummary(pr); err != nil {
			w.evHandler("worker: runPeersOperation: NetSendSummary: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// addNewPeers takes the list of known peers and makes sure they are included
// in the nodes list of know peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	for _, pr := range knownPeers {
		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: adding peer-node %s", pr.Host)
		}
	}
}

// =============================================================================

// summaryOperations tells the known peers about the chain of this node every
// time the head changes.
func (w *Worker) summaryOperations() {
	w.evHandler("worker: summaryOperations: G started")
	defer w.evHandler("worker: summaryOperations: G completed")

	for {
		select {
		case <-w.headChanged:
			if !w.isShutdown() {
				w.runSummaryOperation()
			}
		case <-w.shut:
			w.evHandler("worker: summaryOperations: received shut signal")
			return
		}
	}
}

// runSummaryOperation sends the summary of the canonical chain to every
// known peer.
func (w *Worker) runSummaryOperation() {
	w.evHandler("worker: runSummaryOperation: started")
	defer w.evHandler("worker: runSummaryOperation: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetSendSummary(pr); err != nil {
			w.evHandler("worker: runSummaryOperation: NetSendSummary: %s: ERROR: %s", pr.Host, err)
		}
	}
}
