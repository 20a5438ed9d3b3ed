package worker_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	"github.com/ardanlabs/idchain/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	minerA ledger.Account = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	minerB ledger.Account = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

func Test_MiningOperations(t *testing.T) {
	t.Log("Given a running worker with a beneficiary configured.")
	{
		payer, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key : %v", failed, err)
		}

		gen := genesis.Genesis{
			Date:             time.UnixMilli(time.Now().UnixMilli()),
			ChainID:          1,
			MiningReward:     700,
			TargetBlockTime:  30,
			AdjustmentPeriod: 4,
			MaxTxPerBlock:    10,
			Balances: map[string]int64{
				string(ledger.PublicKeyToAccount(payer.PublicKey)): 1000,
			},
		}

		ev := func(v string, args ...any) {}

		st, err := state.New(state.Config{
			Beneficiaries:  []mining.Payee{{Account: minerA, Share: 1}},
			Host:           "localhost:9080",
			DBPath:         t.TempDir(),
			Genesis:        gen,
			SelectStrategy: "fee",
			KnownPeers:     peer.NewPeerSet(),
			Miners:         2,
			CacheSlots:     64,
			EvHandler:      ev,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state : %v", failed, err)
		}

		worker.Run(st, ev)
		t.Logf("\t%s\tShould be able to start the worker.", success)

		tx := ledger.NewCurrencyTx(1, []ledger.Output{{Account: minerB, Value: 100}})
		tx, err = tx.AddInput(105, payer)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a payment : %v", failed, err)
		}

		if err := st.SubmitTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction : %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the transaction.", success)

		deadline := time.Now().Add(30 * time.Second)
		for !st.Chain().Contains(tx.Hash()) {
			if time.Now().After(deadline) {
				st.Shutdown()
				t.Fatalf("\t%s\tShould mine the transaction into the chain.", failed)
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Logf("\t%s\tShould mine the transaction into the chain.", success)

		if st.RetrieveMined() == 0 {
			t.Fatalf("\t%s\tShould count the mined blocks.", failed)
		}
		t.Logf("\t%s\tShould count the mined blocks.", success)

		st.StopMining()
		if st.IsMiningAllowed() {
			t.Fatalf("\t%s\tShould not allow mining once stopped.", failed)
		}
		t.Logf("\t%s\tShould not allow mining once stopped.", success)

		if err := st.Shutdown(); err != nil {
			t.Fatalf("\t%s\tShould be able to shutdown the node : %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to shutdown the node.", success)
	}
}

// summaryPeer is a peer node that records the chain summaries sent to it.
type summaryPeer struct {
	mu        sync.Mutex
	summaries []peer.ChainSummary
	hosts     []string
}

func (sp *summaryPeer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/node/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(peer.ChainSummary{Host: r.Host})
	})
	mux.HandleFunc("GET /v1/node/tx/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("POST /v1/node/status", func(w http.ResponseWriter, r *http.Request) {
		var cs peer.ChainSummary
		if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sp.mu.Lock()
		sp.summaries = append(sp.summaries, cs)
		sp.hosts = append(sp.hosts, r.Header.Get(state.HostHeader))
		sp.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/node/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// received returns the host header sent with the summary advertising the
// head, if one arrived.
func (sp *summaryPeer) received(head string) (string, bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	for i, cs := range sp.summaries {
		if cs.HeadHash.String() == head {
			return sp.hosts[i], true
		}
	}
	return "", false
}

func Test_HeadBroadcast(t *testing.T) {
	t.Log("Given a running worker with a known peer.")
	{
		var sp summaryPeer
		srv := httptest.NewServer(sp.handler())
		defer srv.Close()

		known := peer.NewPeerSet()
		known.Add(peer.New(strings.TrimPrefix(srv.URL, "http://")))

		payer, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key : %v", failed, err)
		}

		gen := genesis.Genesis{
			Date:             time.UnixMilli(time.Now().UnixMilli()),
			ChainID:          1,
			MiningReward:     700,
			TargetBlockTime:  30,
			AdjustmentPeriod: 4,
			MaxTxPerBlock:    10,
			Balances: map[string]int64{
				string(ledger.PublicKeyToAccount(payer.PublicKey)): 1000,
			},
		}

		ev := func(v string, args ...any) {}

		st, err := state.New(state.Config{
			Beneficiaries:  []mining.Payee{{Account: minerA, Share: 1}},
			Host:           "localhost:9080",
			DBPath:         t.TempDir(),
			Genesis:        gen,
			SelectStrategy: "fee",
			KnownPeers:     known,
			Miners:         2,
			CacheSlots:     64,
			EvHandler:      ev,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state : %v", failed, err)
		}
		defer st.Shutdown()

		worker.Run(st, ev)

		tx := ledger.NewCurrencyTx(1, []ledger.Output{{Account: minerB, Value: 100}})
		tx, err = tx.AddInput(105, payer)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a payment : %v", failed, err)
		}
		if err := st.SubmitTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction : %v", failed, err)
		}

		deadline := time.Now().Add(30 * time.Second)
		for !st.Chain().Contains(tx.Hash()) {
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould mine the transaction into the chain.", failed)
			}
			time.Sleep(10 * time.Millisecond)
		}
		st.StopMining()

		// Blocks mined after the transaction move the head further, so any
		// head the chain held at this point is acceptable.
		var host string
		var found bool
		for {
			if host, found = sp.received(st.Chain().HeadHash().String()); found {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould send the new head to the known peers.", failed)
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Logf("\t%s\tShould send the new head to the known peers.", success)

		if host != "localhost:9080" {
			t.Fatalf("\t%s\tShould name this node in the request : got %q", failed, host)
		}
		t.Logf("\t%s\tShould name this node in the request.", success)
	}
}
