// Package peer maintains the peer related information such as the set
// of know peers and their status.
package peer

import (
	"sync"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New constructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// ChainSummary represents what a peer advertises about its chain. Two
// nodes with the same head hash are assumed to hold the same chain.
type ChainSummary struct {
	Host            string       `json:"host"`
	Size            uint64       `json:"size"`
	TotalDifficulty float64      `json:"total_difficulty"`
	HeadHash        bighash.Hash `json:"head_hash"`
	KnownPeers      []Peer       `json:"known_peers"`
}

// Better reports whether the summary describes a chain the fork choice
// prefers over a chain with the specified difficulty and size.
func (cs ChainSummary) Better(difficulty float64, size uint64) bool {
	return cs.TotalDifficulty > difficulty || (cs.TotalDifficulty == difficulty && cs.Size > size)
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns a list of the known peers.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}

// Len returns the number of known peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}
