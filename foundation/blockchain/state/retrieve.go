package state

import (
	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
	"github.com/ardanlabs/idchain/foundation/blockchain/notify"
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// Chain returns the canonical chain. The value is replaced, never mutated
// in place, when a better chain is adopted.
func (s *State) Chain() *database.Chain {
	return s.chain.Load()
}

// Feed returns the feed chain events are published to.
func (s *State) Feed() *notify.Feed[database.ChainEvent] {
	return s.feed
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []ledger.Tx {
	return s.mempool.Copy()
}

// RetrieveMempoolLength returns the current length of the mempool.
func (s *State) RetrieveMempoolLength() int {
	return s.mempool.Count()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveSummary returns what this node advertises about its chain.
func (s *State) RetrieveSummary() peer.ChainSummary {
	chain := s.chain.Load()

	return peer.ChainSummary{
		Host:            s.host,
		Size:            chain.Size(),
		TotalDifficulty: chain.TotalDifficulty(),
		HeadHash:        chain.HeadHash(),
		KnownPeers:      s.RetrieveKnownPeers(),
	}
}

// RetrieveMiningStatus returns the state of the current or last mining round.
func (s *State) RetrieveMiningStatus() mining.Status {
	return s.engine.Status()
}

// RetrieveHashes returns the number of hashes computed by this node.
func (s *State) RetrieveHashes() uint64 {
	return s.engine.Hashes()
}

// RetrieveMined returns the number of blocks this node mined and added.
func (s *State) RetrieveMined() uint64 {
	return s.mined.Load()
}

// RetrieveReorgs returns the number of times the canonical chain was
// replaced.
func (s *State) RetrieveReorgs() uint64 {
	return s.reorgs.Load()
}
