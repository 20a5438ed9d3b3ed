package state

import (
	"github.com/ardanlabs/idchain/foundation/blockchain/peer"
)

// AddKnownPeer provides the ability to add a new peer.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	if peer.Match(s.host) {
		return false
	}
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}

// IsMiningAllowed reports whether this node should be running mining
// rounds.
func (s *State) IsMiningAllowed() bool {
	return s.miners > 0 && len(s.beneficiaries) > 0 && !s.engine.IsStopped() && s.Refused() == nil
}

// StartMining allows mining rounds again and starts one.
func (s *State) StartMining() error {
	if err := s.Refused(); err != nil {
		return err
	}

	s.engine.Start()

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// StopMining ends the running round and keeps new rounds from starting
// until StartMining is called.
func (s *State) StopMining() {
	s.engine.Stop()
}
