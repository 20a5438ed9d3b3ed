// Package reconcile brings the canonical chain of a node in line with a
// peer holding a better chain. The peer's blocks are downloaded onto a fork
// of the local chain which is then offered to the chain manager.
package reconcile

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// BatchSize is the number of blocks requested from a peer at a time.
const BatchSize = 10

// Network is the behavior required to download a chain from a peer.
type Network interface {
	NetRequestTrace(pr peer.Peer) ([]bighash.Hash, error)
	NetRequestBlocks(pr peer.Peer, before bighash.Hash, max int) ([]database.Block, error)
}

// Manager is the behavior required of the owner of the canonical chain.
type Manager interface {
	Chain() *database.Chain
	ReplaceChain(candidate *database.Chain) (bool, error)
}

// =============================================================================

// Reconciler runs reconciliations against peers. Only one attempt per
// advertised head hash runs at a time.
type Reconciler struct {
	mgr Manager
	net Network
	ev  func(v string, args ...any)

	mu       sync.Mutex
	inFlight map[bighash.Hash]struct{}
	wg       sync.WaitGroup
}

// New constructs a reconciler for the manager's chain.
func New(mgr Manager, net Network, ev func(v string, args ...any)) *Reconciler {
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &Reconciler{
		mgr:      mgr,
		net:      net,
		ev:       ev,
		inFlight: make(map[bighash.Hash]struct{}),
	}
}

// Dispatch starts reconciling with the peer in the background. It returns
// false without doing anything when an attempt for the same head is
// already running.
func (r *Reconciler) Dispatch(pr peer.Peer, head bighash.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.inFlight[head]; exists {
		r.ev("reconcile: Dispatch: peer[%s] head[%s]: already in flight", pr.Host, head.Short())
		return false
	}
	r.inFlight[head] = struct{}{}

	r.wg.Add(1)
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.inFlight, head)
			r.mu.Unlock()

			r.wg.Done()
		}()

		if _, err := r.Reconcile(pr); err != nil {
			r.ev("reconcile: Dispatch: peer[%s]: ERROR: %s", pr.Host, err)
		}
	}()

	return true
}

// InFlight returns the number of running attempts.
func (r *Reconciler) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.inFlight)
}

// Wait blocks until every dispatched attempt is complete.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Reconcile downloads the chain of the peer and offers it to the manager.
// The local chain is forked at the first block it shares with the peer and
// the peer's blocks are pushed in batches until the peer has no more or one
// is rejected. It reports whether the downloaded chain was adopted. When it
// isn't, the blocks downloaded for it are deleted.
func (r *Reconciler) Reconcile(pr peer.Peer) (bool, error) {
	r.ev("reconcile: Reconcile: started: peer[%s]", pr.Host)
	defer r.ev("reconcile: Reconcile: completed: peer[%s]", pr.Host)

	trace, err := r.net.NetRequestTrace(pr)
	if err != nil {
		return false, fmt.Errorf("request trace: %w", err)
	}

	if len(trace) == 0 {
		return false, nil
	}

	current := r.mgr.Chain()
	common := current.FirstCommonBlock(trace)

	candidate, err := current.Fork(common)
	if err != nil {
		return false, fmt.Errorf("fork at %s: %w", common.Short(), err)
	}

	r.ev("reconcile: Reconcile: peer[%s]: common[%s]: branch[%s]", pr.Host, common.Short(), candidate.Branch())

	if err := r.download(pr, candidate); err != nil {
		r.discard(candidate, common)
		return false, err
	}

	replaced, err := r.mgr.ReplaceChain(candidate)
	if err != nil || !replaced {
		r.discard(candidate, common)
		return false, err
	}

	r.ev("reconcile: Reconcile: peer[%s]: adopted size[%d] head[%s]", pr.Host, candidate.Size(), candidate.HeadHash().Short())

	return true, nil
}

// download pushes the peer's blocks onto the candidate. A rejected block
// ends the download and the candidate keeps what was pushed before it.
func (r *Reconciler) download(pr peer.Peer, candidate *database.Chain) error {
	for {
		blocks, err := r.net.NetRequestBlocks(pr, candidate.HeadHash(), BatchSize)
		if err != nil {
			return fmt.Errorf("request blocks after %s: %w", candidate.HeadHash().Short(), err)
		}

		if len(blocks) == 0 {
			return nil
		}

		for _, b := range blocks {
			if err := candidate.PushBlock(b); err != nil {
				r.ev("reconcile: download: peer[%s]: %s", pr.Host, err)
				return nil
			}
		}
	}
}

// discard deletes the blocks the candidate holds past the common block.
func (r *Reconciler) discard(candidate *database.Chain, common bighash.Hash) {
	if err := candidate.Delete(common); err != nil {
		r.ev("reconcile: discard: branch[%s]: ERROR: %s", candidate.Branch(), err)
	}
}
