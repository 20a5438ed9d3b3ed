package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/idchain/app/services/node/handlers"
	"github.com/ardanlabs/idchain/business/sys/metrics"
	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	"github.com/ardanlabs/idchain/foundation/blockchain/worker"
	"github.com/ardanlabs/idchain/foundation/events"
	"github.com/ardanlabs/idchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	success = "✓"
	failed  = "✗"
)

const (
	reward = 700
	minerB = ledger.Account("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
)

type node struct {
	t       *testing.T
	state   *state.State
	public  http.Handler
	private http.Handler
	payer   ledger.Account
}

func newNode(t *testing.T) node {
	t.Helper()

	keys := t.TempDir()
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
	}
	if err := crypto.SaveECDSA(filepath.Join(keys, "payer.ecdsa"), pk); err != nil {
		t.Fatalf("\t%s\tShould be able to save a key: %v", failed, err)
	}
	payer := ledger.PublicKeyToAccount(pk.PublicKey)

	ns, err := nameservice.New(keys)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the name service: %v", failed, err)
	}

	st, err := state.New(state.Config{
		Host:           "localhost:9080",
		DBPath:         t.TempDir(),
		SelectStrategy: "fee",
		KnownPeers:     peer.NewPeerSet(),
		CacheSlots:     64,
		Genesis: genesis.Genesis{
			Date:             time.UnixMilli(time.Now().UnixMilli()),
			ChainID:          1,
			MiningReward:     reward,
			TargetBlockTime:  30,
			AdjustmentPeriod: 4,
			MaxTxPerBlock:    10,
			Balances:         map[string]int64{string(payer): 1000},
		},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	cfg := handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		Metrics:  metrics.New(),
		State:    st,
		NS:       ns,
		Evts:     events.New(),
	}

	return node{
		t:       t,
		state:   st,
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		payer:   payer,
	}
}

// call executes the request against the mux and decodes a 200 response.
func (n node) call(mux http.Handler, method string, path string, body any, status int, resp any) {
	n.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			n.t.Fatalf("\t%s\tShould be able to encode the body: %v", failed, err)
		}
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, &buf))

	if w.Code != status {
		n.t.Fatalf("\t%s\tShould receive %d for %s %s: got %d %s", failed, status, method, path, w.Code, w.Body.String())
	}

	if resp != nil {
		if err := json.NewDecoder(w.Body).Decode(resp); err != nil {
			n.t.Fatalf("\t%s\tShould be able to decode the response of %s: %v", failed, path, err)
		}
	}
}

// next solves an empty block on top of the canonical head.
func (n node) next() database.Block {
	n.t.Helper()

	head, err := n.state.Chain().Head()
	if err != nil {
		n.t.Fatalf("\t%s\tShould be able to read the head: %v", failed, err)
	}

	cb := ledger.NewCoinbase(n.state.Chain().Size(), 0, []ledger.Output{{Account: minerB, Value: reward}})
	header := database.BlockHeader{
		PrevBlockHash: head.Hash,
		Target:        bighash.MaxTarget,
		TimeStamp:     head.Header.TimeStamp + 30_000,
	}

	for {
		b, err := database.NewBlock(header, []ledger.Tx{cb})
		if err != nil {
			n.t.Fatalf("\t%s\tShould be able to build a block: %v", failed, err)
		}
		if b.IsValid() {
			return b
		}
		header.Nonce++
	}
}

// =============================================================================

func Test_PrivateRoutes(t *testing.T) {
	t.Log("Given the need to serve other nodes.")
	{
		n := newNode(t)

		var cs peer.ChainSummary
		n.call(n.private, http.MethodGet, "/v1/node/status", nil, http.StatusOK, &cs)
		if cs.Size != 1 || cs.HeadHash != n.state.Chain().HeadHash() {
			t.Fatalf("\t%s\tShould report the genesis chain: %+v", failed, cs)
		}
		t.Logf("\t%s\tShould report the genesis chain.", success)

		b := n.next()
		var accepted struct {
			Status string `json:"status"`
		}
		n.call(n.private, http.MethodPost, "/v1/node/block/submit", database.NewBlockData(b), http.StatusOK, &accepted)
		if n.state.Chain().Size() != 2 {
			t.Fatalf("\t%s\tShould add the submitted block.", failed)
		}
		t.Logf("\t%s\tShould add the submitted block.", success)

		stale := n.next()
		stale.Header.PrevBlockHash = bighash.FromUint64(1)
		n.call(n.private, http.MethodPost, "/v1/node/block/submit", database.NewBlockData(stale), http.StatusNotAcceptable, nil)
		t.Logf("\t%s\tShould reject a block that does not extend the head.", success)

		var trace []bighash.Hash
		n.call(n.private, http.MethodGet, "/v1/node/trace", nil, http.StatusOK, &trace)
		if len(trace) != 2 || trace[0] != b.Hash {
			t.Fatalf("\t%s\tShould trace from the head: %v", failed, trace)
		}
		t.Logf("\t%s\tShould trace from the head.", success)

		var blocks []database.BlockData
		n.call(n.private, http.MethodGet, fmt.Sprintf("/v1/node/blocks/%s/10", bighash.Zero), nil, http.StatusOK, &blocks)
		if len(blocks) != 2 || blocks[1].Hash != b.Hash {
			t.Fatalf("\t%s\tShould return the blocks after genesis oldest first: %d", failed, len(blocks))
		}
		n.call(n.private, http.MethodGet, fmt.Sprintf("/v1/node/blocks/%s/10", b.Hash), nil, http.StatusOK, &blocks)
		if len(blocks) != 0 {
			t.Fatalf("\t%s\tShould return nothing after the head: %d", failed, len(blocks))
		}
		n.call(n.private, http.MethodGet, fmt.Sprintf("/v1/node/blocks/%s/0", b.Hash), nil, http.StatusBadRequest, nil)
		t.Logf("\t%s\tShould serve blocks by the hash they follow.", success)

		n.call(n.private, http.MethodPost, "/v1/node/peers", peer.New("localhost:9081"), http.StatusNoContent, nil)
		if got := n.state.RetrieveKnownPeers(); len(got) != 1 || got[0].Host != "localhost:9081" {
			t.Fatalf("\t%s\tShould add the peer: %v", failed, got)
		}
		t.Logf("\t%s\tShould add the peer.", success)

		n.call(n.private, http.MethodPost, "/v1/node/status", peer.ChainSummary{}, http.StatusBadRequest, nil)
		t.Logf("\t%s\tShould reject a summary without a host.", success)
	}
}

func Test_PublicRoutes(t *testing.T) {
	t.Log("Given the need to serve wallets and viewers.")
	{
		n := newNode(t)

		var bal struct {
			Name    string `json:"name"`
			Balance int64  `json:"balance"`
		}
		n.call(n.public, http.MethodGet, "/v1/balance/"+string(n.payer), nil, http.StatusOK, &bal)
		if bal.Name != "payer" || bal.Balance != 1000 {
			t.Fatalf("\t%s\tShould report the named genesis balance: %+v", failed, bal)
		}
		t.Logf("\t%s\tShould report the named genesis balance.", success)

		var verr struct {
			Fields map[string]string `json:"fields"`
		}
		n.call(n.public, http.MethodGet, "/v1/balance/0x1234", nil, http.StatusBadRequest, &verr)
		if _, exists := verr.Fields["account"]; !exists {
			t.Fatalf("\t%s\tShould flag the account field: %v", failed, verr.Fields)
		}
		t.Logf("\t%s\tShould flag a malformed account.", success)

		w := httptest.NewRecorder()
		n.public.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/status", nil))
		if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" || w.Header().Get("Access-Control-Max-Age") == "" {
			t.Fatalf("\t%s\tShould answer a CORS preflight: %d %v", failed, w.Code, w.Header())
		}
		t.Logf("\t%s\tShould answer a CORS preflight.", success)

		n.call(n.public, http.MethodGet, "/v1/identity/nobody", nil, http.StatusNotFound, nil)
		t.Logf("\t%s\tShould not find an unregistered name.", success)

		n.call(n.public, http.MethodGet, "/v1/blocks/1/0", nil, http.StatusBadRequest, nil)
		var blocks []database.BlockData
		n.call(n.public, http.MethodGet, "/v1/blocks/0/latest", nil, http.StatusOK, &blocks)
		if len(blocks) != 1 {
			t.Fatalf("\t%s\tShould return the genesis block: %d", failed, len(blocks))
		}
		t.Logf("\t%s\tShould serve blocks by sequence number.", success)

		genesisBlock, err := database.ToBlock(blocks[0])
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the genesis block: %v", failed, err)
		}
		cb := genesisBlock.Values()[0]

		var prf struct {
			MerkleRoot bighash.Hash   `json:"merkle_root"`
			Hashes     []bighash.Hash `json:"hashes"`
		}
		n.call(n.public, http.MethodGet, fmt.Sprintf("/v1/tx/proof/%s/%s", genesisBlock.Hash, cb.Hash()), nil, http.StatusOK, &prf)
		if prf.MerkleRoot != genesisBlock.Header.MerkleRoot {
			t.Fatalf("\t%s\tShould prove against the block root: %s", failed, prf.MerkleRoot)
		}
		n.call(n.public, http.MethodGet, fmt.Sprintf("/v1/tx/proof/%s/%s", genesisBlock.Hash, bighash.FromUint64(9)), nil, http.StatusNotFound, nil)
		t.Logf("\t%s\tShould serve transaction proofs.", success)
	}
}

func Test_SubmitTransaction(t *testing.T) {
	t.Log("Given the need to accept transactions from wallets.")
	{
		n := newNode(t)

		pk, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		ie, err := ledger.NewIdentityEntry(1, "miner", pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign an identity: %v", failed, err)
		}

		n.call(n.public, http.MethodPost, "/v1/tx/submit", ledger.Envelope{Tx: ie}, http.StatusOK, nil)
		n.call(n.public, http.MethodPost, "/v1/tx/submit", ledger.Envelope{Tx: ie}, http.StatusBadRequest, nil)
		t.Logf("\t%s\tShould accept a transaction once.", success)

		var pending []ledger.Envelope
		n.call(n.private, http.MethodGet, "/v1/node/tx/list", nil, http.StatusOK, &pending)
		if len(pending) != 1 || pending[0].Tx.Hash() != ie.Hash() {
			t.Fatalf("\t%s\tShould list the pending transaction: %d", failed, len(pending))
		}
		t.Logf("\t%s\tShould list the pending transaction.", success)

		var status struct {
			Mempool int    `json:"mempool"`
			Allowed bool   `json:"mining_allowed"`
			Mining  string `json:"mining"`
		}
		n.call(n.public, http.MethodGet, "/v1/status", nil, http.StatusOK, &status)
		if status.Mempool != 1 || status.Allowed {
			t.Fatalf("\t%s\tShould report one pending and no mining without beneficiaries: %+v", failed, status)
		}
		t.Logf("\t%s\tShould report the node status.", success)
	}
}

func Test_Sync(t *testing.T) {
	t.Log("Given a new node started against a peer with a longer chain.")
	{
		a := newNode(t)

		for i := 0; i < 3; i++ {
			if err := a.state.SubmitBlock(a.next()); err != nil {
				t.Fatalf("\t%s\tShould be able to extend the peer chain: %v", failed, err)
			}
		}

		srv := httptest.NewServer(a.private)
		defer srv.Close()

		known := peer.NewPeerSet()
		known.Add(peer.New(strings.TrimPrefix(srv.URL, "http://")))

		b, err := state.New(state.Config{
			Host:           "localhost:9081",
			DBPath:         t.TempDir(),
			SelectStrategy: "fee",
			KnownPeers:     known,
			CacheSlots:     64,
			Genesis:        a.state.RetrieveGenesis(),
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}
		defer b.Shutdown()

		worker.Run(b, func(v string, args ...any) {})

		if b.Chain().Size() != 4 || b.Chain().HeadHash() != a.state.Chain().HeadHash() {
			t.Fatalf("\t%s\tShould adopt the peer chain during sync: size[%d]", failed, b.Chain().Size())
		}
		t.Logf("\t%s\tShould adopt the peer chain during sync.", success)

		bal, err := b.Chain().Balance(minerB)
		if err != nil || bal != 3*reward {
			t.Fatalf("\t%s\tShould carry the peer balances: %d %v", failed, bal, err)
		}
		t.Logf("\t%s\tShould carry the peer balances.", success)
	}
}

func Test_Resync(t *testing.T) {
	t.Log("Given a node receiving a block that extends a chain it hasn't seen.")
	{
		a := newNode(t)

		for i := 0; i < 3; i++ {
			if err := a.state.SubmitBlock(a.next()); err != nil {
				t.Fatalf("\t%s\tShould be able to extend the peer chain: %v", failed, err)
			}
		}

		srvA := httptest.NewServer(a.private)
		defer srvA.Close()

		b, err := state.New(state.Config{
			Host:           "localhost:9081",
			DBPath:         t.TempDir(),
			SelectStrategy: "fee",
			KnownPeers:     peer.NewPeerSet(),
			CacheSlots:     64,
			Genesis:        a.state.RetrieveGenesis(),
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}
		defer b.Shutdown()

		worker.Run(b, func(v string, args ...any) {})

		srvB := httptest.NewServer(handlers.PrivateMux(handlers.MuxConfig{
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			Metrics:  metrics.New(),
			State:    b,
			Evts:     events.New(),
		}))
		defer srvB.Close()

		head, err := a.state.Chain().Head()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the head: %v", failed, err)
		}

		data, err := json.Marshal(database.NewBlockData(head))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to encode the block: %v", failed, err)
		}

		req, err := http.NewRequest(http.MethodPost, srvB.URL+"/v1/node/block/submit", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build the request: %v", failed, err)
		}
		req.Header.Set(state.HostHeader, strings.TrimPrefix(srvA.URL, "http://"))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to send the block: %v", failed, err)
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			t.Fatalf("\t%s\tShould reject a block that doesn't link to the head.", failed)
		}
		t.Logf("\t%s\tShould reject a block that doesn't link to the head.", success)

		deadline := time.Now().Add(30 * time.Second)
		for b.Chain().HeadHash() != head.Hash {
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould reconcile with the sender: size[%d]", failed, b.Chain().Size())
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Logf("\t%s\tShould reconcile with the sender.", success)
	}
}
