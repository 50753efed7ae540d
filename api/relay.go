package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/okarpov/peerLink/pkg/subs"
)

// Relay frame actions. The relay forwards frames verbatim to the addressed
// peer; the only frame it answers itself is the offer, which it acknowledges
// with setConnectionId carrying the freshly assigned connection id.
const (
	actionOffer           = "offerCall"
	actionReply           = "replyCall"
	actionAccept          = "acceptCall"
	actionDecline         = "declineCall"
	actionSignal          = "sendRtcData"
	actionDestroy         = "destroyConnection"
	actionSetConnectionID = "setConnectionId"
)

const offerAckTimeout = 10 * time.Second

// frame is the single wire envelope for every relay exchange.
type frame struct {
	Action       string         `json:"action"`
	MessageID    uint64         `json:"messageId,omitempty"`
	ConnID       string         `json:"connId,omitempty"`
	RoomID       string         `json:"roomId,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	OpponentWsID string         `json:"opponentWsId,omitempty"`
	Kind         SessionKind    `json:"kind,omitempty"`
	Meta         *FileMeta      `json:"meta,omitempty"`
	Content      *SignalPayload `json:"content,omitempty"`
}

// RelayClient is the WebSocket client for the external signaling relay.
// Inbound frames are decoded and handed to the router; brand-new offers,
// which cannot have a subscriber yet, are delivered through the OnOffer
// callback instead.
type RelayClient struct {
	conn   *websocket.Conn
	router *subs.Router
	selfID string
	logger *slog.Logger

	writeMu sync.Mutex

	nextID  atomic.Uint64
	ackMu   sync.Mutex
	acks    map[uint64]chan string
	onOffer func(*OfferCall)
}

// Dial connects to the relay at wsURL and identifies as userID. The returned
// client does not read from the socket until Run is called.
func Dial(ctx context.Context, wsURL, userID string, router *subs.Router, onOffer func(*OfferCall)) (*RelayClient, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &RelayClient{
		conn:    conn,
		router:  router,
		selfID:  userID,
		logger:  slog.Default().With("component", "relay", "userId", userID),
		acks:    make(map[uint64]chan string),
		onOffer: onOffer,
	}, nil
}

// SelfID returns the ws identifier this client registered with.
func (c *RelayClient) SelfID() string { return c.selfID }

// Run reads frames from the relay until the context is cancelled or the
// socket fails. It must run in its own goroutine.
func (c *RelayClient) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay read failed: %w", err)
		}
		c.dispatch(data)
	}
}

// dispatch decodes one inbound frame and routes it. Malformed frames are
// logged and dropped; one bad message must not take the relay session down.
func (c *RelayClient) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Error("Failed to decode relay frame", "error", err)
		return
	}

	switch f.Action {
	case actionSetConnectionID:
		c.resolveAck(f.MessageID, f.ConnID)
	case actionOffer:
		offer := &OfferCall{
			ConnID:       f.ConnID,
			RoomID:       f.RoomID,
			UserID:       f.UserID,
			OpponentWsID: f.OpponentWsID,
			Kind:         f.Kind,
			Meta:         f.Meta,
		}
		if c.onOffer == nil {
			c.logger.Warn("Dropping incoming offer, no offer handler installed", "connId", f.ConnID)
			return
		}
		c.onOffer(offer)
	case actionReply:
		c.router.Notify(&ReplyCall{ConnID: f.ConnID, RoomID: f.RoomID, UserID: f.UserID, OpponentWsID: f.OpponentWsID})
	case actionAccept:
		c.router.Notify(&AcceptCall{ConnID: f.ConnID, OpponentWsID: f.OpponentWsID})
	case actionDecline:
		c.router.Notify(&DeclineCall{ConnID: f.ConnID, OpponentWsID: f.OpponentWsID})
	case actionSignal:
		if f.Content == nil || f.Content.IsEmpty() {
			c.logger.Warn("Dropping signal frame with empty content", "connId", f.ConnID, "opponentWsId", f.OpponentWsID)
			return
		}
		c.router.Notify(&RTCSignal{
			ConnID:       f.ConnID,
			RoomID:       f.RoomID,
			UserID:       f.UserID,
			OpponentWsID: f.OpponentWsID,
			Content:      *f.Content,
		})
	default:
		c.logger.Warn("Ignoring relay frame with unknown action", "action", f.Action)
	}
}

// OfferCall asks the relay to open a new session in roomID and returns the
// connection id the relay assigned to it.
func (c *RelayClient) OfferCall(ctx context.Context, roomID string, kind SessionKind, meta *FileMeta) (string, error) {
	id := c.nextID.Add(1)
	ack := make(chan string, 1)

	c.ackMu.Lock()
	c.acks[id] = ack
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.acks, id)
		c.ackMu.Unlock()
	}()

	err := c.write(&frame{
		Action:    actionOffer,
		MessageID: id,
		RoomID:    roomID,
		UserID:    c.selfID,
		Kind:      kind,
		Meta:      meta,
	})
	if err != nil {
		return "", err
	}

	ackCtx, cancel := context.WithTimeout(ctx, offerAckTimeout)
	defer cancel()

	select {
	case connID := <-ack:
		return connID, nil
	case <-ackCtx.Done():
		return "", fmt.Errorf("no connection id from relay: %w", ackCtx.Err())
	}
}

// ReplyCall notifies the offering side that we received its offer and are
// preparing an answer.
func (c *RelayClient) ReplyCall(connID, roomID string) error {
	return c.write(&frame{Action: actionReply, ConnID: connID, RoomID: roomID, UserID: c.selfID})
}

// AcceptCall notifies the offering side that the local user agreed to join.
func (c *RelayClient) AcceptCall(connID string) error {
	return c.write(&frame{Action: actionAccept, ConnID: connID, UserID: c.selfID})
}

// DeclineCall notifies the offering side that the local user refused.
func (c *RelayClient) DeclineCall(connID string) error {
	return c.write(&frame{Action: actionDecline, ConnID: connID, UserID: c.selfID})
}

// Destroy tells the relay the initiating side is tearing the session down.
func (c *RelayClient) Destroy(connID string) error {
	return c.write(&frame{Action: actionDestroy, ConnID: connID, UserID: c.selfID})
}

// SendDescription forwards a local SDP description to one opponent.
func (c *RelayClient) SendDescription(connID, opponentWsID string, desc webrtc.SessionDescription) error {
	return c.write(&frame{
		Action:       actionSignal,
		ConnID:       connID,
		UserID:       c.selfID,
		OpponentWsID: opponentWsID,
		Content:      &SignalPayload{Description: &desc},
	})
}

// SendCandidate forwards a gathered ICE candidate to one opponent.
func (c *RelayClient) SendCandidate(connID, opponentWsID string, cand webrtc.ICECandidateInit) error {
	return c.write(&frame{
		Action:       actionSignal,
		ConnID:       connID,
		UserID:       c.selfID,
		OpponentWsID: opponentWsID,
		Content:      &SignalPayload{Candidate: &cand},
	})
}

// Close closes the underlying socket.
func (c *RelayClient) Close() error {
	return c.conn.Close()
}

func (c *RelayClient) resolveAck(messageID uint64, connID string) {
	c.ackMu.Lock()
	ack, ok := c.acks[messageID]
	c.ackMu.Unlock()
	if !ok {
		c.logger.Warn("Received ack for unknown message", "messageId", messageID)
		return
	}
	ack <- connID
}

func (c *RelayClient) write(f *frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("relay write %s failed: %w", f.Action, err)
	}
	return nil
}
