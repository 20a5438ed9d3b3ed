// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	v1 "github.com/ardanlabs/idchain/business/web/v1"
	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	"github.com/ardanlabs/idchain/foundation/web"
	"go.uber.org/zap"
)

// maxBlocks bounds the blocks returned by a single blocks request.
const maxBlocks = 100

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitPeer is called by a node so they can be added to the known peer list.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if h.State.AddKnownPeer(pr) {
		h.Log.Infow("adding peer", "traceid", v.TraceID, "host", pr.Host)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Status returns the summary of the canonical chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveSummary(), http.StatusOK)
}

// SubmitStatus accepts the summary of a peer's chain. A peer holding a
// better chain is queued for reconciliation.
func (h Handlers) SubmitStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var cs peer.ChainSummary
	if err := web.Decode(r, &cs); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if cs.Host == "" {
		return v1.NewRequestError(errors.New("summary has no host"), http.StatusBadRequest)
	}

	if h.State.Worker != nil {
		h.State.Worker.SignalReconcile(cs)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Trace returns the hashes of the canonical chain from the head back to
// genesis.
func (h Handlers) Trace(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trace, err := h.State.Chain().Trace()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, trace, http.StatusOK)
}

// BlocksAfter returns up to max blocks following the specified block, oldest
// first. A zero hash starts at genesis.
func (h Handlers) BlocksAfter(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	before, err := bighash.Parse(web.Param(r, "before"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	max, err := strconv.Atoi(web.Param(r, "max"))
	if err != nil || max < 1 {
		return v1.NewRequestError(errors.New("max must be a positive number"), http.StatusBadRequest)
	}
	if max > maxBlocks {
		max = maxBlocks
	}

	blocks, err := h.State.Chain().BlocksAfter(before, max)
	if err != nil {
		return err
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// SubmitBlock takes a block received from a peer, validates it and if that
// passes, adds the block to the canonical chain.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	// Converting rebuilds the merkle tree for the transactions.
	block, err := database.ToBlock(blockData)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.State.SubmitBlock(block); err != nil {

		// A block that doesn't link to the head means the sender holds a
		// chain this node hasn't seen.
		if errors.Is(err, database.ErrUnlinked) && h.State.Worker != nil {
			if host := r.Header.Get(state.HostHeader); host != "" {
				h.State.Worker.SignalResync(peer.New(host))
			}
		}

		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitTransaction adds a transaction shared by a peer to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var env ledger.Envelope
	if err := web.Decode(r, &env); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("add node tran", "traceid", v.TraceID, "tx", env.Tx.Hash().Short(), "kind", env.Tx.Kind())
	if err := h.State.SubmitTransaction(env.Tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transactions added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, ledger.Wrap(h.State.RetrieveMempool()), http.StatusOK)
}
