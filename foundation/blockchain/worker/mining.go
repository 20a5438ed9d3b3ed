package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
)

// miningOperations runs a mining round every time one is signaled.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines one block on the current head. The round ends
// when a block is found, mining is stopped or a head change cancels it.
// A cancelled round holds until the canceller calls done, so the next round
// starts on the new head.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: runMiningOperation: MINING: turned off")
		return
	}

	// A cancel signaled before this round began was meant for an older one.
	select {
	case done := <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained stale cancel")
		<-done
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg   sync.WaitGroup
		hold chan struct{}
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		hold = w.watchCancel(ctx, cancel)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		w.mineBlock(ctx)
	}()

	wg.Wait()

	if hold != nil {
		w.evHandler("worker: runMiningOperation: MINING: waiting for head change")
		<-hold
	}
}

// watchCancel cancels the round when a cancel is signaled and returns the
// channel the canceller closes once its state change is complete. It
// returns nil when the round ends on its own.
func (w *Worker) watchCancel(ctx context.Context, cancel context.CancelFunc) chan struct{} {
	select {
	case hold := <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		cancel()
		return hold
	case <-ctx.Done():
		return nil
	}
}

// mineBlock solves a block, proposes it to the peers and asks for the next
// round.
func (w *Worker) mineBlock(ctx context.Context) {
	start := time.Now()
	block, err := w.state.MineNewBlock(ctx)
	w.evHandler("worker: runMiningOperation: MINING: duration[%v]", time.Since(start))

	switch {
	case err == nil:
	case errors.Is(err, mining.ErrStopped):
		w.evHandler("worker: runMiningOperation: MINING: stopped")
		return
	case ctx.Err() != nil:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		return
	default:
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return
	}

	if err := w.state.NetSendBlockToPeers(block); err != nil {
		w.evHandler("worker: runMiningOperation: MINING: proposeBlockToPeers: WARNING %s", err)
	}

	w.SignalStartMining()
}
