package genesis_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	data := `{"date":"2026-10-01T00:00:00Z","chain_id":7,"mining_reward":700,"balances":{"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32":100}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	g, err := genesis.Load(path)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the genesis file : %s", failed, err)
	}
	t.Logf("\t%s\tShould be able to load the genesis file.", success)

	if g.TargetBlockTime != genesis.DefaultTargetBlockTime || g.AdjustmentPeriod != genesis.DefaultAdjustmentPeriod || g.MaxTxPerBlock != genesis.DefaultMaxTxPerBlock {
		t.Fatalf("\t%s\tShould apply the defaults : %+v", failed, g)
	}
	t.Logf("\t%s\tShould apply the defaults.", success)
}

func TestBlock(t *testing.T) {
	g := genesis.Genesis{
		Date:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		ChainID: 1,
		Balances: map[string]int64{
			"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32": 100,
			"0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4": 50,
		},
	}

	b1, err := g.Block()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the genesis block : %s", failed, err)
	}
	b2, _ := g.Block()

	if !b1.IsValid() || !b1.Equal(b2) {
		t.Fatalf("\t%s\tShould build the same solved block every time.", failed)
	}
	t.Logf("\t%s\tShould build the same solved block every time.", success)

	if !b1.Header.PrevBlockHash.IsZero() {
		t.Fatalf("\t%s\tShould link to the zero hash.", failed)
	}
	t.Logf("\t%s\tShould link to the zero hash.", success)

	if got := b1.Effects()[ledger.Account("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")]; got != 50 {
		t.Fatalf("\t%s\tShould carry the initial allocation : got %d", failed, got)
	}
	t.Logf("\t%s\tShould carry the initial allocation.", success)

	g.Balances["not-an-account"] = 1
	if _, err := g.Block(); err == nil {
		t.Fatalf("\t%s\tShould reject an invalid account.", failed)
	}
	t.Logf("\t%s\tShould reject an invalid account.", success)
}
