package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const reward = 700

const (
	minerA ledger.Account = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	minerB ledger.Account = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

// =============================================================================

type fixture struct {
	t     *testing.T
	payer *ecdsa.PrivateKey
	gen   genesis.Genesis
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	payer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key : %v", failed, err)
	}

	gen := genesis.Genesis{
		Date:             time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
		ChainID:          1,
		MiningReward:     reward,
		TargetBlockTime:  30,
		AdjustmentPeriod: 4,
		MaxTxPerBlock:    10,
		Balances: map[string]int64{
			string(ledger.PublicKeyToAccount(payer.PublicKey)): 1000,
		},
	}

	return fixture{
		t:     t,
		payer: payer,
		gen:   gen,
	}
}

func (f fixture) newState(dir string) *state.State {
	f.t.Helper()

	s, err := state.New(state.Config{
		Beneficiaries:  []mining.Payee{{Account: minerA, Share: 1}},
		Host:           "localhost:9080",
		DBPath:         dir,
		Genesis:        f.gen,
		SelectStrategy: "fee",
		KnownPeers:     peer.NewPeerSet(),
		Miners:         2,
		CacheSlots:     64,
	})
	if err != nil {
		f.t.Fatalf("\t%s\tShould be able to construct the state : %v", failed, err)
	}

	return s
}

func (f fixture) genesisBlock() database.Block {
	f.t.Helper()

	b, err := f.gen.Block()
	if err != nil {
		f.t.Fatalf("\t%s\tShould be able to build the genesis block : %v", failed, err)
	}
	return b
}

// pay signs a payment of value to minerB from the funded account.
func (f fixture) pay(id uint64, value int64, fee int64) ledger.CurrencyTx {
	f.t.Helper()

	tx := ledger.NewCurrencyTx(id, []ledger.Output{{Account: minerB, Value: value}})
	tx, err := tx.AddInput(value+fee, f.payer)
	if err != nil {
		f.t.Fatalf("\t%s\tShould be able to sign a payment : %v", failed, err)
	}
	return tx
}

// block solves a block at the height on top of prev, spacing milliseconds
// later, paying the reward plus fees to the payee.
func (f fixture) block(prev database.Block, height uint64, spacing int64, payee ledger.Account, txs ...ledger.Tx) database.Block {
	f.t.Helper()
	return f.blockAt(bighash.MaxTarget, prev, height, spacing, payee, txs...)
}

// blockAt is block solved below the specified target.
func (f fixture) blockAt(target bighash.Hash, prev database.Block, height uint64, spacing int64, payee ledger.Account, txs ...ledger.Tx) database.Block {
	f.t.Helper()

	cb := ledger.NewCoinbase(height, 0, []ledger.Output{{Account: payee, Value: reward + mining.Fees(txs)}})

	header := database.BlockHeader{
		PrevBlockHash: prev.Hash,
		Target:        target,
		TimeStamp:     prev.Header.TimeStamp + spacing,
	}

	for {
		b, err := database.NewBlock(header, append([]ledger.Tx{cb}, txs...))
		if err != nil {
			f.t.Fatalf("\t%s\tShould be able to build a block : %v", failed, err)
		}
		if b.IsValid() {
			return b
		}
		header.Nonce++
	}
}

// recorder is a worker that remembers the transactions it is asked to
// share again.
type recorder struct {
	mu       sync.Mutex
	reshared []bighash.Hash
}

func (r *recorder) Shutdown()                                 {}
func (r *recorder) SignalStartMining()                        {}
func (r *recorder) SignalCancelMining() func()                { return func() {} }
func (r *recorder) SignalShareTx(tx ledger.Tx)                {}
func (r *recorder) SignalReconcile(summary peer.ChainSummary) {}
func (r *recorder) SignalResync(pr peer.Peer)                 {}

func (r *recorder) SignalReshareTx(tx ledger.Tx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reshared = append(r.reshared, tx.Hash())
}

// =============================================================================

func Test_Registry(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	t.Log("Given the need to manage a database path with a single state.")
	{
		s := f.newState(dir)

		if found, exists := state.Lookup(dir); !exists || found != s {
			t.Fatalf("\t%s\tShould be able to look up the state by path.", failed)
		}
		t.Logf("\t%s\tShould be able to look up the state by path.", success)

		if _, err := state.New(state.Config{DBPath: dir, Genesis: f.gen, SelectStrategy: "fee"}); err == nil {
			t.Fatalf("\t%s\tShould not manage the same path twice.", failed)
		}
		t.Logf("\t%s\tShould not manage the same path twice.", success)

		if s.Chain().Size() != 1 || s.Chain().HeadHash() != f.genesisBlock().Hash {
			t.Fatalf("\t%s\tShould start with the genesis block : size[%d]", failed, s.Chain().Size())
		}
		t.Logf("\t%s\tShould start with the genesis block.", success)

		if s.CurrentTarget() != bighash.MaxTarget {
			t.Fatalf("\t%s\tShould mine the first period at the genesis target : %s", failed, s.CurrentTarget())
		}
		t.Logf("\t%s\tShould mine the first period at the genesis target.", success)

		if err := s.Shutdown(); err != nil {
			t.Fatalf("\t%s\tShould be able to shutdown : %v", failed, err)
		}
		if _, exists := state.Lookup(dir); exists {
			t.Fatalf("\t%s\tShould release the path on shutdown.", failed)
		}
		t.Logf("\t%s\tShould release the path on shutdown.", success)

		s = f.newState(dir)
		if s.Chain().Size() != 1 {
			t.Fatalf("\t%s\tShould reopen the stored chain : size[%d]", failed, s.Chain().Size())
		}
		t.Logf("\t%s\tShould reopen the stored chain.", success)
		s.Shutdown()

		other := f.gen
		other.ChainID = 2
		if _, err := state.New(state.Config{DBPath: dir, Genesis: other, SelectStrategy: "fee"}); err == nil {
			t.Fatalf("\t%s\tShould refuse a database built from another genesis.", failed)
		}
		if _, exists := state.Lookup(dir); exists {
			t.Fatalf("\t%s\tShould release the path when construction fails.", failed)
		}
		t.Logf("\t%s\tShould refuse a database built from another genesis.", success)
	}
}

func Test_MineNewBlock(t *testing.T) {
	f := newFixture(t)

	t.Log("Given the need to mine pending transactions into the chain.")
	{
		s := f.newState(t.TempDir())
		defer s.Shutdown()

		tx := f.pay(1, 100, 9)

		if err := s.SubmitTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction : %v", failed, err)
		}
		if err := s.SubmitTransaction(tx); err == nil {
			t.Fatalf("\t%s\tShould not accept the transaction twice.", failed)
		}
		t.Logf("\t%s\tShould accept the transaction once.", success)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		b, err := s.MineNewBlock(ctx)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block : %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		chain := s.Chain()
		if chain.Size() != 2 || chain.HeadHash() != b.Hash || !chain.Contains(tx.Hash()) {
			t.Fatalf("\t%s\tShould add the block with the transaction as head.", failed)
		}
		t.Logf("\t%s\tShould add the block with the transaction as head.", success)

		if s.RetrieveMempoolLength() != 0 || s.RetrieveMined() != 1 {
			t.Fatalf("\t%s\tShould purge the mined transaction : pending[%d]", failed, s.RetrieveMempoolLength())
		}
		t.Logf("\t%s\tShould purge the mined transaction.", success)

		bal, err := chain.Balance(minerA)
		if err != nil || bal != reward+9 {
			t.Fatalf("\t%s\tShould pay the reward plus fees to the beneficiary : %d", failed, bal)
		}
		t.Logf("\t%s\tShould pay the reward plus fees to the beneficiary.", success)

		if err := s.SubmitTransaction(tx); err == nil {
			t.Fatalf("\t%s\tShould not accept a transaction already in the chain.", failed)
		}
		t.Logf("\t%s\tShould not accept a transaction already in the chain.", success)
	}
}

func Test_SubmitBlockTarget(t *testing.T) {
	f := newFixture(t)

	t.Log("Given blocks from a peer extending the head.")
	{
		s := f.newState(t.TempDir())
		defer s.Shutdown()

		gb := f.genesisBlock()

		easy := f.blockAt(bighash.Max, gb, 1, 30_000, minerB)
		if err := s.SubmitBlock(easy); !errors.Is(err, database.ErrRejected) {
			t.Fatalf("\t%s\tShould reject a block mined above the required target : %v", failed, err)
		}
		if s.Chain().Size() != 1 {
			t.Fatalf("\t%s\tShould leave the chain unchanged : size[%d]", failed, s.Chain().Size())
		}
		t.Logf("\t%s\tShould reject a block mined above the required target.", success)

		b1 := f.block(gb, 1, 1_000, minerB)
		if err := s.SubmitBlock(b1); err != nil {
			t.Fatalf("\t%s\tShould accept a block mined at the required target : %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a block mined at the required target.", success)

		required := s.CurrentTarget()
		if got := bighash.Difficulty(required); math.Abs(got-4) > 1e-9 {
			t.Fatalf("\t%s\tShould require four times the work after a fast block : %f", failed, got)
		}

		stale := f.block(b1, 2, 30_000, minerB)
		if err := s.SubmitBlock(stale); !errors.Is(err, database.ErrRejected) {
			t.Fatalf("\t%s\tShould reject a block ignoring the retarget : %v", failed, err)
		}

		hard := f.blockAt(required, b1, 2, 30_000, minerB)
		if err := s.SubmitBlock(hard); err != nil {
			t.Fatalf("\t%s\tShould accept a block mined at the retargeted target : %v", failed, err)
		}
		t.Logf("\t%s\tShould follow the retargeted target.", success)
	}
}

func Test_ReplaceChain(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	t.Log("Given the need to adopt a better chain.")
	{
		s := f.newState(dir)

		rec := &recorder{}
		s.Worker = rec

		events := make(chan database.ChainEvent, 10)
		unsub := s.Feed().Subscribe(func(ev database.ChainEvent) { events <- ev })
		defer unsub()

		gb := f.genesisBlock()
		tx := f.pay(1, 100, 3)

		b1 := f.block(gb, 1, 30_000, minerA, tx)
		b2 := f.block(b1, 2, 30_000, minerA)
		for _, b := range []database.Block{b1, b2} {
			if err := s.SubmitBlock(b); err != nil {
				t.Fatalf("\t%s\tShould accept the block : %v", failed, err)
			}
		}
		if err := s.SubmitBlock(b2); err == nil {
			t.Fatalf("\t%s\tShould reject a block pushed twice.", failed)
		}
		t.Logf("\t%s\tShould accept each block once.", success)

		current := s.Chain()

		empty, err := current.Fork(bighash.Zero)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to fork : %v", failed, err)
		}
		if replaced, _ := s.ReplaceChain(empty); replaced {
			t.Fatalf("\t%s\tShould never adopt an invalid chain.", failed)
		}
		t.Logf("\t%s\tShould never adopt an invalid chain.", success)

		candidate, err := current.Fork(gb.Hash)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to fork : %v", failed, err)
		}

		c1 := f.block(gb, 1, 2000, minerB)
		c2 := f.block(c1, 2, 2000, minerB)
		for _, b := range []database.Block{c1, c2} {
			if err := candidate.PushBlock(b); err != nil {
				t.Fatalf("\t%s\tShould be able to push to the candidate : %v", failed, err)
			}
		}

		if state.Better(current, candidate) || state.Better(candidate, current) {
			t.Fatalf("\t%s\tShould prefer neither of two equal chains.", failed)
		}
		if replaced, err := s.ReplaceChain(candidate); replaced || err != nil {
			t.Fatalf("\t%s\tShould keep the current chain on a tie : %v", failed, err)
		}
		t.Logf("\t%s\tShould keep the current chain on a tie.", success)

		c3 := f.block(c2, 3, 2000, minerB)
		if err := candidate.PushBlock(c3); err != nil {
			t.Fatalf("\t%s\tShould be able to push to the candidate : %v", failed, err)
		}

		if !state.Better(current, candidate) || state.Better(candidate, current) {
			t.Fatalf("\t%s\tShould prefer the heavier chain in one direction only.", failed)
		}
		t.Logf("\t%s\tShould prefer the heavier chain in one direction only.", success)

		replaced, err := s.ReplaceChain(candidate)
		if err != nil || !replaced {
			t.Fatalf("\t%s\tShould adopt the heavier chain : %v", failed, err)
		}
		if s.Chain() != candidate || s.Chain().HeadHash() != c3.Hash || s.RetrieveReorgs() != 1 {
			t.Fatalf("\t%s\tShould make the candidate canonical.", failed)
		}
		t.Logf("\t%s\tShould make the candidate canonical.", success)

		s.Chain().Wait()
		var sawReplace bool
		for len(events) > 0 {
			if ev := <-events; ev.Replaced && ev.Head.Hash == c3.Hash {
				sawReplace = true
			}
		}
		if !sawReplace {
			t.Fatalf("\t%s\tShould notify subscribers of the replacement.", failed)
		}
		t.Logf("\t%s\tShould notify subscribers of the replacement.", success)

		pending := s.RetrieveMempool()
		if len(pending) != 1 || pending[0].Hash() != tx.Hash() {
			t.Fatalf("\t%s\tShould return abandoned transactions to the mempool : pending[%d]", failed, len(pending))
		}
		t.Logf("\t%s\tShould return abandoned transactions to the mempool.", success)

		rec.mu.Lock()
		reshared := rec.reshared
		rec.mu.Unlock()
		if len(reshared) != 1 || reshared[0] != tx.Hash() {
			t.Fatalf("\t%s\tShould share abandoned transactions again : reshared[%d]", failed, len(reshared))
		}
		t.Logf("\t%s\tShould share abandoned transactions again.", success)

		files, err := os.ReadDir(filepath.Join(dir, "blocks"))
		if err != nil || len(files) != 4 {
			t.Fatalf("\t%s\tShould keep only the canonical block files : %d", failed, len(files))
		}
		t.Logf("\t%s\tShould keep only the canonical block files.", success)

		if err := s.Shutdown(); err != nil {
			t.Fatalf("\t%s\tShould be able to shutdown : %v", failed, err)
		}

		s = f.newState(dir)
		defer s.Shutdown()

		if s.Chain().Size() != 4 || s.Chain().HeadHash() != c3.Hash || s.RetrieveMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould reopen the adopted chain and pending set : size[%d]", failed, s.Chain().Size())
		}
		t.Logf("\t%s\tShould reopen the adopted chain and pending set.", success)
	}
}

func Test_Difficulty(t *testing.T) {
	type table struct {
		name    string
		blocks  int
		spacing int64
		exp     float64
	}

	tt := []table{
		{name: "genesis-only", blocks: 1, spacing: 30_000, exp: 1},
		{name: "first-period", blocks: 3, spacing: 30_000, exp: 1},
		{name: "first-period-fast", blocks: 3, spacing: 15_000, exp: 2},
		{name: "first-period-slow", blocks: 2, spacing: 60_000, exp: 0.5},
		{name: "on-time", blocks: 4, spacing: 30_000, exp: 1},
		{name: "too-fast", blocks: 4, spacing: 1_000, exp: 4},
		{name: "too-slow", blocks: 4, spacing: 1_000_000, exp: 0.25},
		{name: "second-period", blocks: 8, spacing: 30_000, exp: 1},
		{name: "mid-period", blocks: 6, spacing: 1_000, exp: 4},
	}

	t.Log("Given the need to retarget the difficulty every period.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				fx := newFixture(t)

				chain, err := database.Open(database.Config{
					DBPath:       t.TempDir(),
					MiningReward: reward,
					CacheSlots:   64,
				})
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to open a chain : %v", failed, testID, err)
				}

				prev := fx.genesisBlock()
				if err := chain.PushBlock(prev); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to push genesis : %v", failed, testID, err)
				}

				for i := 1; i < tst.blocks; i++ {
					prev = fx.block(prev, uint64(i), tst.spacing, minerA)
					if err := chain.PushBlock(prev); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to push block %d : %v", failed, testID, i, err)
					}
				}

				got, err := state.Difficulty(chain, fx.gen.AdjustmentPeriod, fx.gen.TargetBlockTime)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to calculate the difficulty : %v", failed, testID, err)
				}

				if math.Abs(got-tst.exp) > 1e-9 {
					t.Fatalf("\t%s\tTest %d:\tShould get difficulty %f : got %f", failed, testID, tst.exp, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get difficulty %f.", success, testID, tst.exp)
			}

			t.Run(tst.name, f)
		}
	}
}
