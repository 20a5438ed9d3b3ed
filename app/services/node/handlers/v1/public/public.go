// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	v1 "github.com/ardanlabs/idchain/business/web/v1"
	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	"github.com/ardanlabs/idchain/foundation/events"
	"github.com/ardanlabs/idchain/foundation/nameservice"
	"github.com/ardanlabs/idchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client. The topic
// query parameters select the events, no topic selects all of them.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID, r.URL.Query()["topic"]...)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(evt); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the state of the node and its canonical chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	chain := h.State.Chain()

	st := status{
		ChainSummary: h.State.RetrieveSummary(),
		Target:       h.State.CurrentTarget(),
		Mining:       h.State.RetrieveMiningStatus().String(),
		Allowed:      h.State.IsMiningAllowed(),
		Hashes:       h.State.RetrieveHashes(),
		Mined:        h.State.RetrieveMined(),
		Reorgs:       h.State.RetrieveReorgs(),
		Mempool:      h.State.RetrieveMempoolLength(),
		ChainID:      h.State.RetrieveGenesis().ChainID,
		Branch:       chain.Branch(),
	}
	if err := h.State.Refused(); err != nil {
		st.Refused = err.Error()
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Balance returns the balance of the account at the head of the canonical
// chain.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	req := accountRequest{Account: web.Param(r, "account")}
	if err := req.Validate(); err != nil {
		return err
	}

	account := ledger.Account(req.Account).Canonical()
	chain := h.State.Chain()

	bal, err := chain.Balance(account)
	if err != nil {
		return err
	}

	resp := balance{
		Account: account,
		Name:    h.NS.Lookup(account),
		Balance: bal,
		Head:    chain.HeadHash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Identity returns every account that registered the name, in the order
// the registrations were recorded.
func (h Handlers) Identity(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	req := identityRequest{Name: web.Param(r, "name")}
	if err := req.Validate(); err != nil {
		return err
	}

	chain := h.State.Chain()

	entries, err := chain.Identities(req.Name)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return v1.NewRequestError(fmt.Errorf("name %q is not registered", req.Name), http.StatusNotFound)
	}

	ids := make([]identity, len(entries))
	for i, ie := range entries {
		bal, err := chain.Balance(ie.Account)
		if err != nil {
			return err
		}

		ids[i] = identity{
			Name:     ie.Name,
			Account:  ie.Account,
			Known:    h.NS.Lookup(ie.Account),
			Balance:  bal,
			TxHash:   ie.Hash(),
			Position: i,
		}
	}

	return web.Respond(ctx, w, ids, http.StatusOK)
}

// BlocksByNumber returns the blocks between the two sequence numbers
// inclusive. The word latest selects the head.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	chain := h.State.Chain()
	latest := chain.Size() - 1

	seq := func(s string) (uint64, error) {
		if s == "" || strings.EqualFold(s, "latest") {
			return latest, nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, v1.NewRequestError(err, http.StatusBadRequest)
		}
		return n, nil
	}

	from, err := seq(web.Param(r, "from"))
	if err != nil {
		return err
	}
	to, err := seq(web.Param(r, "to"))
	if err != nil {
		return err
	}

	req := rangeRequest{From: from, To: to}
	if err := req.Validate(); err != nil {
		return err
	}

	blocks, err := chain.Blocks(req.From, req.To)
	if err != nil {
		return err
	}

	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// TxProof returns the merkle proof that the transaction is part of the
// block, along with the block tree with every unrelated subtree stubbed.
func (h Handlers) TxProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blockHash, err := bighash.Parse(web.Param(r, "block"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	txHash, err := bighash.Parse(web.Param(r, "tx"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	block, err := h.State.Chain().Get(blockHash)
	if err != nil {
		return err
	}

	var tx ledger.Tx
	for _, value := range block.Values() {
		if value.Hash() == txHash {
			tx = value
			break
		}
	}
	if tx == nil {
		return v1.NewRequestError(errors.New("transaction is not part of the block"), http.StatusNotFound)
	}

	hashes, order, err := block.Trans.Proof(tx)
	if err != nil {
		return err
	}

	tree, err := block.Proof(txHash)
	if err != nil {
		return err
	}

	resp := proof{
		Block:      block.Hash,
		MerkleRoot: block.Header.MerkleRoot,
		Header:     block.Header,
		Tx:         ledger.Envelope{Tx: tx},
		Hashes:     hashes,
		Order:      order,
		Tree:       tree,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var env ledger.Envelope
	if err := web.Decode(r, &env); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", env.Tx.Hash().Short(), "kind", env.Tx.Kind(), "payer", h.NS.Lookup(ledger.Payer(env.Tx)))
	if err := h.State.SubmitTransaction(env.Tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string       `json:"status"`
		Hash   bighash.Hash `json:"hash"`
	}{
		Status: "transactions added to mempool",
		Hash:   env.Tx.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, ledger.Wrap(h.State.RetrieveMempool()), http.StatusOK)
}

// StartMining allows mining rounds again.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.StartMining(); err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining started",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StopMining ends the running round and keeps new ones from starting.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.StopMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining stopped",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
