package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

const baseURL = "http://%s/v1/node"

// netTimeout bounds every request made to a peer.
const netTimeout = 10 * time.Second

// HostHeader carries the host of the node making a request to a peer.
const HostHeader = "X-Node-Host"

// NetSendBlockToPeers takes the new mined block and sends it to all know peers.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	var errs []error
	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/block/submit", fmt.Sprintf(baseURL, pr.Host))

		var status struct {
			Status string `json:"status"`
		}

		if err := s.send(http.MethodPost, url, database.NewBlockData(block), &status); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pr.Host, err))
			continue
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}

	return errors.Join(errs...)
}

// NetSendTxToPeers shares a new transaction with the known peers.
func (s *State) NetSendTxToPeers(tx ledger.Tx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		if err := s.send(http.MethodPost, url, ledger.Envelope{Tx: tx}, nil); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: %s: %s", pr.Host, err)
		}
	}
}

// NetSendSummary tells the peer about the chain of this node so it can
// reconcile when this chain is better.
func (s *State) NetSendSummary(pr peer.Peer) error {
	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))
	return s.send(http.MethodPost, url, s.RetrieveSummary(), nil)
}

// NetRequestAddPeer lets the peer know this node is available.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))
	return s.send(http.MethodPost, url, peer.New(s.host), nil)
}

// NetRequestChainSummary asks the peer what chain it holds and which peers
// it knows about.
func (s *State) NetRequestChainSummary(pr peer.Peer) (peer.ChainSummary, error) {
	s.evHandler("state: NetRequestChainSummary: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestChainSummary: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var cs peer.ChainSummary
	if err := s.send(http.MethodGet, url, nil, &cs); err != nil {
		return peer.ChainSummary{}, err
	}

	s.evHandler("state: NetRequestChainSummary: peer-node[%s]: size[%d]: head[%s]: peer-list[%d]", pr.Host, cs.Size, cs.HeadHash.Short(), len(cs.KnownPeers))

	return cs, nil
}

// NetRequestTrace asks the peer for the hashes of its chain, head first.
func (s *State) NetRequestTrace(pr peer.Peer) ([]bighash.Hash, error) {
	url := fmt.Sprintf("%s/trace", fmt.Sprintf(baseURL, pr.Host))

	var trace []bighash.Hash
	if err := s.send(http.MethodGet, url, nil, &trace); err != nil {
		return nil, err
	}

	return trace, nil
}

// NetRequestBlocks asks the peer for up to max blocks following the
// specified block, oldest first.
func (s *State) NetRequestBlocks(pr peer.Peer, before bighash.Hash, max int) ([]database.Block, error) {
	url := fmt.Sprintf("%s/blocks/%s/%d", fmt.Sprintf(baseURL, pr.Host), before, max)

	var data []database.BlockData
	if err := s.send(http.MethodGet, url, nil, &data); err != nil {
		return nil, err
	}

	blocks := make([]database.Block, len(data))
	for i, bd := range data {
		b, err := database.ToBlock(bd)
		if err != nil {
			return nil, fmt.Errorf("%s: block %s: %w", pr.Host, bd.Hash.Short(), err)
		}
		blocks[i] = b
	}

	return blocks, nil
}

// NetRequestPeerMempool asks the peer for the transactions in their mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]ledger.Tx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var envs []ledger.Envelope
	if err := s.send(http.MethodGet, url, nil, &envs); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(envs))

	return ledger.Unwrap(envs), nil
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func (s *State) send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	if s.host != "" {
		req.Header.Set(HostHeader, s.host)
	}

	client := http.Client{Timeout: netTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
