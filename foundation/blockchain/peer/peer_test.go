package peer_test

import (
	"testing"

	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host1"}, {Host: "host2"}, {Host: "host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, peer := range tst.peers {
				ps.Add(peer)
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not add a known peer twice.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			ps.Remove(tst.peers[0])
			if ps.Len() != len(tst.peers)-1 {
				t.Fatalf("Test %s:\tShould be able to remove a peer.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Better(t *testing.T) {
	type table struct {
		name       string
		summary    peer.ChainSummary
		difficulty float64
		size       uint64
		better     bool
	}

	tt := []table{
		{name: "more-work", summary: peer.ChainSummary{TotalDifficulty: 3, Size: 2}, difficulty: 2, size: 5, better: true},
		{name: "less-work", summary: peer.ChainSummary{TotalDifficulty: 1, Size: 9}, difficulty: 2, size: 5, better: false},
		{name: "same-work-longer", summary: peer.ChainSummary{TotalDifficulty: 2, Size: 6}, difficulty: 2, size: 5, better: true},
		{name: "same-work-same-size", summary: peer.ChainSummary{TotalDifficulty: 2, Size: 5}, difficulty: 2, size: 5, better: false},
	}

	t.Log("Given the need to compare chain summaries.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				if got := tst.summary.Better(tst.difficulty, tst.size); got != tst.better {
					t.Fatalf("\t%s\tTest %d:\tShould get %t : got %t", failed, testID, tst.better, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get %t.", success, testID, tst.better)
			}

			t.Run(tst.name, f)
		}
	}
}
