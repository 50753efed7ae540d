// Package api defines the signaling messages exchanged with the relay and the
// WebSocket client that carries them. The relay itself is an external
// collaborator: it is assumed to deliver opaque payloads reliably and in order
// to a given (connection, peer) pair.
package api

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/okarpov/peerLink/pkg/subs"
)

// SessionKind distinguishes calls from file transfers at the signaling level.
type SessionKind string

const (
	KindCall SessionKind = "call"
	KindFile SessionKind = "file"
)

// FileMeta describes the file being offered in a file-transfer session.
type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime,omitempty"`
}

// SignalPayload is the WebRTC payload wrapper: exactly one of the fields is
// set. An SDP description, an ICE candidate, or an opaque application message
// forwarded to the peer link.
type SignalPayload struct {
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Message     json.RawMessage            `json:"message,omitempty"`
}

// IsEmpty reports whether none of the payload variants is present.
func (p *SignalPayload) IsEmpty() bool {
	return p == nil || (p.Description == nil && p.Candidate == nil && len(p.Message) == 0)
}

// RTCSignal is a signaling payload addressed to one peer link.
type RTCSignal struct {
	ConnID       string        `json:"connId"`
	RoomID       string        `json:"roomId,omitempty"`
	UserID       string        `json:"userId,omitempty"`
	OpponentWsID string        `json:"opponentWsId"`
	Content      SignalPayload `json:"content"`
}

// RouterKey routes the signal to the peer link it is addressed to.
func (s *RTCSignal) RouterKey() string {
	return subs.PeerKey(s.ConnID, s.OpponentWsID)
}

// OfferCall announces a brand-new incoming session. It reaches the
// application through the relay client's offer callback rather than the
// router, because no handler is subscribed for a connection id nobody has
// seen yet.
type OfferCall struct {
	ConnID       string      `json:"connId"`
	RoomID       string      `json:"roomId"`
	UserID       string      `json:"userId"`
	OpponentWsID string      `json:"opponentWsId"`
	Kind         SessionKind `json:"kind"`
	Meta         *FileMeta   `json:"meta,omitempty"`
}

// ReplyCall tells the session handler that a new opponent is answering its
// offer and wants to connect.
type ReplyCall struct {
	ConnID       string `json:"connId"`
	RoomID       string `json:"roomId,omitempty"`
	UserID       string `json:"userId,omitempty"`
	OpponentWsID string `json:"opponentWsId"`
}

// RouterKey routes the reply to the session-scoped handler.
func (m *ReplyCall) RouterKey() string { return subs.SessionKey(m.ConnID) }

// AcceptCall tells the session handler that an opponent agreed to join.
type AcceptCall struct {
	ConnID       string `json:"connId"`
	OpponentWsID string `json:"opponentWsId"`
}

// RouterKey routes the acceptance to the session-scoped handler.
func (m *AcceptCall) RouterKey() string { return subs.SessionKey(m.ConnID) }

// DeclineCall tells the session handler that an opponent refused to join.
type DeclineCall struct {
	ConnID       string `json:"connId"`
	OpponentWsID string `json:"opponentWsId"`
}

// RouterKey routes the refusal to the session-scoped handler.
func (m *DeclineCall) RouterKey() string { return subs.SessionKey(m.ConnID) }

var (
	_ subs.Message = (*RTCSignal)(nil)
	_ subs.Message = (*ReplyCall)(nil)
	_ subs.Message = (*AcceptCall)(nil)
	_ subs.Message = (*DeclineCall)(nil)
)
