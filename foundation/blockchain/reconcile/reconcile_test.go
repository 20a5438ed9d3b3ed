package reconcile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
	"github.com/ardanlabs/idchain/foundation/blockchain/reconcile"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const reward = 700

const (
	minerA ledger.Account = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	minerB ledger.Account = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

var gen = genesis.Genesis{
	Date:             time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	ChainID:          1,
	MiningReward:     reward,
	TargetBlockTime:  30,
	AdjustmentPeriod: 120,
	MaxTxPerBlock:    10,
	Balances: map[string]int64{
		string(minerA): 1000,
	},
}

// =============================================================================

// network serves a chain held in process as if it was a remote peer.
type network struct {
	chain     *database.Chain
	gate      chan struct{}
	failAfter int
	calls     int
}

func (n *network) NetRequestTrace(pr peer.Peer) ([]bighash.Hash, error) {
	if n.gate != nil {
		<-n.gate
	}
	return n.chain.Trace()
}

func (n *network) NetRequestBlocks(pr peer.Peer, before bighash.Hash, max int) ([]database.Block, error) {
	n.calls++
	if n.failAfter > 0 && n.calls > n.failAfter {
		return nil, errors.New("connection reset")
	}
	return n.chain.BlocksAfter(before, max)
}

// =============================================================================

func solve(t *testing.T, prev database.Block, height uint64, payee ledger.Account) database.Block {
	t.Helper()

	cb := ledger.NewCoinbase(height, 0, []ledger.Output{{Account: payee, Value: reward}})

	header := database.BlockHeader{
		PrevBlockHash: prev.Hash,
		Target:        bighash.MaxTarget,
		TimeStamp:     prev.Header.TimeStamp + 30_000,
	}

	for {
		b, err := database.NewBlock(header, []ledger.Tx{cb})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a block : %v", failed, err)
		}
		if b.IsValid() {
			return b
		}
		header.Nonce++
	}
}

// extend solves n blocks on top of the last block, paying the payee.
func extend(t *testing.T, blocks []database.Block, n int, payee ledger.Account) []database.Block {
	t.Helper()

	out := append([]database.Block(nil), blocks...)
	for i := 0; i < n; i++ {
		out = append(out, solve(t, out[len(out)-1], uint64(len(out)), payee))
	}
	return out
}

// remote opens a chain in its own directory holding the blocks.
func remote(t *testing.T, blocks []database.Block) *database.Chain {
	t.Helper()

	chain, err := database.Open(database.Config{
		DBPath:       t.TempDir(),
		MiningReward: reward,
		CacheSlots:   64,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the remote chain : %v", failed, err)
	}

	for _, b := range blocks {
		if err := chain.PushBlock(b); err != nil {
			t.Fatalf("\t%s\tShould be able to push to the remote chain : %v", failed, err)
		}
	}

	return chain
}

// local constructs a node state holding the blocks after genesis.
func local(t *testing.T, dir string, blocks []database.Block) *state.State {
	t.Helper()

	s, err := state.New(state.Config{
		Beneficiaries:  []mining.Payee{{Account: minerA, Share: 1}},
		Host:           "localhost:9080",
		DBPath:         dir,
		Genesis:        gen,
		SelectStrategy: "fee",
		CacheSlots:     64,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state : %v", failed, err)
	}
	t.Cleanup(func() { s.Shutdown() })

	for _, b := range blocks[1:] {
		if err := s.SubmitBlock(b); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a local block : %v", failed, err)
		}
	}

	return s
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	files, err := os.ReadDir(filepath.Join(dir, "blocks"))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to read the block files : %v", failed, err)
	}
	return len(files)
}

// =============================================================================

func Test_Reconcile(t *testing.T) {
	gb, err := gen.Block()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the genesis block : %v", failed, err)
	}

	shared := extend(t, []database.Block{gb}, 2, minerA)
	ours := extend(t, shared, 2, minerA)
	theirs := extend(t, shared, 5, minerB)

	pr := peer.New("peer:9080")

	t.Log("Given the need to adopt the chain of a peer holding more work.")
	{
		dir := t.TempDir()
		s := local(t, dir, ours)

		if s.Chain().Size() != 5 || countFiles(t, dir) != 5 {
			t.Fatalf("\t%s\tShould start with five blocks.", failed)
		}

		r := reconcile.New(s, &network{chain: remote(t, theirs)}, nil)

		replaced, err := r.Reconcile(pr)
		if err != nil || !replaced {
			t.Fatalf("\t%s\tShould adopt the peer's chain : %v", failed, err)
		}
		t.Logf("\t%s\tShould adopt the peer's chain.", success)

		chain := s.Chain()
		if chain.Size() != 8 || chain.HeadHash() != theirs[7].Hash || !chain.IsValid() {
			t.Fatalf("\t%s\tShould hold the eight blocks of the peer : size[%d]", failed, chain.Size())
		}
		t.Logf("\t%s\tShould hold the eight blocks of the peer.", success)

		for _, b := range ours[3:] {
			if _, err := chain.Get(b.Hash); err == nil {
				t.Fatalf("\t%s\tShould no longer hold abandoned block %s.", failed, b.Hash.Short())
			}
		}
		if countFiles(t, dir) != 8 {
			t.Fatalf("\t%s\tShould delete the two abandoned block files : files[%d]", failed, countFiles(t, dir))
		}
		t.Logf("\t%s\tShould delete the two abandoned block files.", success)
	}

	t.Log("Given the need to ignore a peer holding less work.")
	{
		dir := t.TempDir()
		s := local(t, dir, ours)

		shorter := extend(t, shared, 1, minerB)
		r := reconcile.New(s, &network{chain: remote(t, shorter)}, nil)

		replaced, err := r.Reconcile(pr)
		if err != nil || replaced {
			t.Fatalf("\t%s\tShould keep the local chain : %v", failed, err)
		}
		if s.Chain().HeadHash() != ours[4].Hash || countFiles(t, dir) != 5 {
			t.Fatalf("\t%s\tShould discard the downloaded blocks : files[%d]", failed, countFiles(t, dir))
		}
		t.Logf("\t%s\tShould keep the local chain and discard the downloaded blocks.", success)
	}

	t.Log("Given the need to survive a peer that fails mid download.")
	{
		dir := t.TempDir()
		s := local(t, dir, ours)

		r := reconcile.New(s, &network{chain: remote(t, theirs), failAfter: 1}, nil)

		if _, err := r.Reconcile(pr); err == nil {
			t.Fatalf("\t%s\tShould report the failed download.", failed)
		}
		if s.Chain().HeadHash() != ours[4].Hash || countFiles(t, dir) != 5 {
			t.Fatalf("\t%s\tShould discard the partial download : files[%d]", failed, countFiles(t, dir))
		}
		t.Logf("\t%s\tShould report the failure and discard the partial download.", success)
	}
}

func Test_Dispatch(t *testing.T) {
	gb, err := gen.Block()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the genesis block : %v", failed, err)
	}

	ours := extend(t, []database.Block{gb}, 1, minerA)
	theirs := extend(t, []database.Block{gb}, 3, minerB)

	t.Log("Given the need to run one reconciliation per advertised head.")
	{
		s := local(t, t.TempDir(), ours)

		net := network{chain: remote(t, theirs), gate: make(chan struct{})}
		r := reconcile.New(s, &net, nil)

		pr := peer.New("peer:9080")
		head := theirs[3].Hash

		if !r.Dispatch(pr, head) {
			t.Fatalf("\t%s\tShould start the first attempt.", failed)
		}
		if r.Dispatch(pr, head) || r.InFlight() != 1 {
			t.Fatalf("\t%s\tShould not start a second attempt for the same head.", failed)
		}
		t.Logf("\t%s\tShould not start a second attempt for the same head.", success)

		close(net.gate)
		r.Wait()

		if r.InFlight() != 0 || s.Chain().HeadHash() != head {
			t.Fatalf("\t%s\tShould complete the attempt and adopt the chain.", failed)
		}
		t.Logf("\t%s\tShould complete the attempt and adopt the chain.", success)

		if !r.Dispatch(pr, head) {
			t.Fatalf("\t%s\tShould accept a new attempt once the first is done.", failed)
		}
		r.Wait()
		t.Logf("\t%s\tShould accept a new attempt once the first is done.", success)
	}
}
