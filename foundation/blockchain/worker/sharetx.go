package worker

import "github.com/ardanlabs/idchain/foundation/blockchain/ledger"

// maxTxShareRequests is the capacity of the share queue. Transactions
// signaled while the queue is full are not shared.
const maxTxShareRequests = 100

// maxTxShareBatch bounds how many queued transactions one pass sends.
const maxTxShareBatch = 20

// =============================================================================

// shareTxOperations relays accepted transactions to the known peers.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if w.isShutdown() {
				continue
			}
			w.runShareTxOperation(w.drainTxs(tx))

		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// drainTxs collects the transactions already waiting in the queue behind
// the first one.
func (w *Worker) drainTxs(first ledger.Tx) []ledger.Tx {
	batch := []ledger.Tx{first}

	for len(batch) < maxTxShareBatch {
		select {
		case tx := <-w.txSharing:
			batch = append(batch, tx)
		default:
			return batch
		}
	}

	return batch
}

// runShareTxOperation sends the batch to every known peer.
func (w *Worker) runShareTxOperation(batch []ledger.Tx) {
	w.evHandler("worker: runShareTxOperation: started: txs[%d]", len(batch))
	defer w.evHandler("worker: runShareTxOperation: completed")

	for _, tx := range batch {
		w.state.NetSendTxToPeers(tx)
	}
}
