package webrtc

import (
	"github.com/pion/webrtc/v4"
)

// Signaler decouples the peer-link logic from the signaling transport. The
// application layer provides a concrete implementation (the relay client);
// tests provide in-memory doubles.
type Signaler interface {
	// SendDescription forwards a local SDP description to the opponent.
	SendDescription(connID, opponentWsID string, desc webrtc.SessionDescription) error
	// SendCandidate forwards a gathered ICE candidate to the opponent.
	SendCandidate(connID, opponentWsID string, cand webrtc.ICECandidateInit) error
}
