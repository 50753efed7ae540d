package webrtc

import (
	"github.com/okarpov/peerLink/pkg/subs"
)

// RemovePeerConnection notifies the session-scoped handler that one of its
// peer links has closed, so the session can drop it and decide whether the
// whole session should tear down.
type RemovePeerConnection struct {
	ConnID       string
	OpponentWsID string
	Reason       string
}

// RouterKey routes the notification to the session-scoped handler.
func (m *RemovePeerConnection) RouterKey() string { return subs.SessionKey(m.ConnID) }

var _ subs.Message = (*RemovePeerConnection)(nil)
