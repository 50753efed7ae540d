package webrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/okarpov/peerLink/api"
	"github.com/okarpov/peerLink/pkg/subs"
)

const (
	// MTU used by the ICE agent for inbound packets.
	MTU uint = 1400

	maxPendingOutbound = 256
)

// ErrLinkClosed is returned for operations on a link that has already been
// torn down.
var ErrLinkClosed = errors.New("peer link is closed")

// ErrQueueFull is returned when the pending outbound queue overflows before
// the link ever connects.
var ErrQueueFull = errors.New("pending outbound queue is full")

// ConnectTrigger selects which platform event promotes the link to connected:
// call links wait for an active ICE connection, file links for their data
// channel to open.
type ConnectTrigger int

const (
	// ConnectOnICE promotes the link when ICE reports connected
	ConnectOnICE ConnectTrigger = iota
	// ConnectOnDataChannel promotes the link when the data channel opens
	ConnectOnDataChannel
)

// WebrtcAPI wraps a shared pion API instance. Using webrtc.NewAPI is crucial
// for managing multiple PeerConnections in one application.
type WebrtcAPI struct {
	api *webrtc.API
}

// NewWebrtcAPI creates an API suitable for data-channel links.
func NewWebrtcAPI() *WebrtcAPI {
	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	settings.SetReceiveMTU(MTU)

	return &WebrtcAPI{api: webrtc.NewAPI(webrtc.WithSettingEngine(settings))}
}

// NewWebrtcAPIWith creates an API from caller-supplied options. The call
// layer uses this to install its media engine and interceptors.
func NewWebrtcAPIWith(opts ...func(*webrtc.API)) *WebrtcAPI {
	return &WebrtcAPI{api: webrtc.NewAPI(opts...)}
}

// Config holds the configuration for creating a new PeerLink.
type Config struct {
	ConnID       string
	OpponentWsID string
	SelfWsID     string

	Signaler Signaler
	Router   *subs.Router

	ICEServers    []webrtc.ICEServer
	BandwidthKbps uint64
	ConnectOn     ConnectTrigger
}

// PeerLink wraps one underlying WebRTC connection to exactly one opponent
// within a session. It owns SDP/ICE negotiation, the send/receive data
// channel and the connection-status state machine.
type PeerLink struct {
	connID     string
	opponentID string
	selfID     string
	offerer    bool
	connectOn  ConnectTrigger

	sig       Signaler
	router    *subs.Router
	logger    *slog.Logger
	bandwidth uint64

	pc *webrtc.PeerConnection

	mu           sync.Mutex
	status       LinkStatus
	dcState      DataChannelState
	dc           *webrtc.DataChannel
	pending      [][]byte
	earlyCands   []webrtc.ICECandidateInit
	warnedClosed bool

	// Variant hooks; set before negotiation starts, never replaced after.
	onConnected        func()
	onICEDisconnect    func(reason string)
	onNegotiationError func(op string, err error)
	onChannelOpen      func()
	onChannelClose     func()
	onChannelMessage   func(data []byte)
	onAppMessage       func(data []byte)
}

// NewPeerLink creates the underlying native connection, subscribes the link
// to its pair-scoped router key and wires the ICE callbacks. The link starts
// in status new; negotiation begins with CreateOffer or with the first
// remote description.
func (a *WebrtcAPI) NewPeerLink(config Config) (*PeerLink, error) {
	if config.Signaler == nil {
		return nil, errors.New("signaler is not configured")
	}
	if config.Router == nil {
		return nil, errors.New("router is not configured")
	}

	iceServers := config.ICEServers
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	pc, err := a.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	l := &PeerLink{
		connID:     config.ConnID,
		opponentID: config.OpponentWsID,
		selfID:     config.SelfWsID,
		offerer:    ShouldCreateOffer(config.SelfWsID, config.OpponentWsID),
		connectOn:  config.ConnectOn,
		sig:        config.Signaler,
		router:     config.Router,
		bandwidth:  config.BandwidthKbps,
		pc:         pc,
		status:     StatusNew,
		logger: slog.Default().With(
			"component", "peerlink",
			"connId", config.ConnID,
			"opponentWsId", config.OpponentWsID,
		),
	}

	if err := l.router.Subscribe(subs.PeerKey(l.connID, l.opponentID), l); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if err := l.sig.SendCandidate(l.connID, l.opponentID, candidate.ToJSON()); err != nil {
			l.logger.Warn("Failed to forward ICE candidate", "error", err)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		l.logger.Debug("ICE connection state changed", "state", state.String())
		switch state {
		case webrtc.ICEConnectionStateConnected:
			if l.connectOn == ConnectOnICE {
				l.markConnected()
			}
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			l.iceDown("ice " + state.String())
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		l.adoptDataChannel(dc)
	})

	return l, nil
}

// OpponentID returns the opponent this link connects to.
func (l *PeerLink) OpponentID() string { return l.opponentID }

// ConnID returns the owning session's connection id.
func (l *PeerLink) ConnID() string { return l.connID }

// IsOfferer reports whether this side initiates negotiation, as decided by
// glare resolution at construction.
func (l *PeerLink) IsOfferer() bool { return l.offerer }

// Status returns the current lifecycle status.
func (l *PeerLink) Status() LinkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// ChannelState returns the current data-channel state.
func (l *PeerLink) ChannelState() DataChannelState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dcState
}

// SetOnConnected installs a hook fired once when the link becomes connected.
func (l *PeerLink) SetOnConnected(fn func()) { l.onConnected = fn }

// SetOnICEDisconnect replaces the default reaction to an ICE failure, which
// is Close. File links use this to fail their transfer record first.
func (l *PeerLink) SetOnICEDisconnect(fn func(reason string)) { l.onICEDisconnect = fn }

// SetOnNegotiationError installs a hook fired when an SDP/ICE platform call
// is rejected. The link state is left as is; negotiation is never retried
// automatically.
func (l *PeerLink) SetOnNegotiationError(fn func(op string, err error)) { l.onNegotiationError = fn }

// SetOnChannelOpen installs a hook fired when the data channel opens.
func (l *PeerLink) SetOnChannelOpen(fn func()) { l.onChannelOpen = fn }

// SetOnChannelClose installs a hook fired when the data channel closes under
// the link, before any teardown of the link itself.
func (l *PeerLink) SetOnChannelClose(fn func()) { l.onChannelClose = fn }

// SetOnChannelMessage installs the receiver for data-channel messages.
func (l *PeerLink) SetOnChannelMessage(fn func(data []byte)) { l.onChannelMessage = fn }

// SetOnAppMessage installs the receiver for application envelopes that arrive
// through the signaling wrapper rather than the data channel.
func (l *PeerLink) SetOnAppMessage(fn func(data []byte)) { l.onAppMessage = fn }

// AddTrack forwards a local media track to the native connection.
func (l *PeerLink) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return l.pc.AddTrack(track)
}

// RemoveTrack detaches a previously added sender.
func (l *PeerLink) RemoveTrack(sender *webrtc.RTPSender) error {
	return l.pc.RemoveTrack(sender)
}

// OnTrack registers the remote-track callback on the native connection.
func (l *PeerLink) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	l.pc.OnTrack(fn)
}

// HandleMessage implements subs.Handler: the router delivers the link's
// signaling traffic here.
func (l *PeerLink) HandleMessage(msg subs.Message) {
	sig, ok := msg.(*api.RTCSignal)
	if !ok {
		l.logger.Warn("Ignoring unexpected message type", "type", fmt.Sprintf("%T", msg))
		return
	}
	l.HandleRemoteSignal(&sig.Content)
}

// HandleRemoteSignal dispatches one inbound signaling payload by shape. Any
// platform rejection is logged and reported through the negotiation-error
// hook; the connection stays in its current state so the caller can retry
// with a fresh offer.
func (l *PeerLink) HandleRemoteSignal(payload *api.SignalPayload) {
	l.mu.Lock()
	if l.status == StatusClosed {
		if !l.warnedClosed {
			l.warnedClosed = true
			l.logger.Warn("Dropping signaling for closed link")
		}
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	switch {
	case payload.Description != nil:
		l.handleDescription(*payload.Description)
	case payload.Candidate != nil:
		// Candidates may race ahead of the matching description; hold them
		// until a remote description exists.
		if l.pc.RemoteDescription() == nil {
			l.mu.Lock()
			l.earlyCands = append(l.earlyCands, *payload.Candidate)
			l.mu.Unlock()
			return
		}
		if err := l.pc.AddICECandidate(*payload.Candidate); err != nil {
			l.negotiationFailed("add ice candidate", err)
		}
	case len(payload.Message) > 0:
		if l.onAppMessage != nil {
			l.onAppMessage(payload.Message)
			return
		}
		l.logger.Warn("Dropping application message, no receiver installed")
	default:
		l.logger.Warn("Ignoring unrecognized signaling payload")
	}
}

// CreateOffer generates a local description, applies the bandwidth ceiling
// and forwards it through the signaling channel. Valid on any link that is
// not closed; renegotiation on a connected link goes through here as well,
// regardless of which side offered originally.
func (l *PeerLink) CreateOffer() error {
	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if l.status == StatusNew {
		l.status = StatusNegotiating
	}
	l.mu.Unlock()

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		l.negotiationFailed("create offer", err)
		return fmt.Errorf("failed to create offer: %w", err)
	}

	// The native side must receive the description exactly as produced;
	// only the copy that goes on the wire gets the bandwidth line. The
	// remote applies it through SetRemoteDescription.
	if err := l.pc.SetLocalDescription(offer); err != nil {
		l.negotiationFailed("set local description", err)
		return fmt.Errorf("failed to set local description: %w", err)
	}

	wire, err := withBandwidthCap(offer, l.bandwidth)
	if err != nil {
		l.negotiationFailed("cap bandwidth", err)
		return err
	}

	if err := l.sig.SendDescription(l.connID, l.opponentID, wire); err != nil {
		return fmt.Errorf("failed to send offer: %w", err)
	}
	return nil
}

// CreateDataChannel opens the link's data channel from the offerer side.
func (l *PeerLink) CreateDataChannel(label string) error {
	dc, err := l.pc.CreateDataChannel(label, nil)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	l.adoptDataChannel(dc)
	return nil
}

// DataChannel returns the underlying native channel, or nil before one has
// been created or adopted. File links use it for buffered-amount flow control.
func (l *PeerLink) DataChannel() *webrtc.DataChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dc
}

// Send delivers an application payload over the data channel. While the link
// is not yet connected the payload is queued in submission order and flushed
// once, in order, after the transition to connected.
func (l *PeerLink) Send(data []byte) error {
	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if l.status != StatusConnected || l.dc == nil {
		if len(l.pending) >= maxPendingOutbound {
			l.mu.Unlock()
			return ErrQueueFull
		}
		l.pending = append(l.pending, data)
		l.mu.Unlock()
		return nil
	}
	dc := l.dc
	l.mu.Unlock()
	return dc.Send(data)
}

// Close tears the link down: sets the terminal status, closes the data
// channel and the native connection, unsubscribes from the router and tells
// the owning session to remove this link. Idempotent; every effect happens
// exactly once.
func (l *PeerLink) Close(reason string) {
	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return
	}
	l.status = StatusClosed
	dc := l.dc
	if dc != nil {
		l.dcState = DataChannelClosing
	}
	l.pending = nil
	l.mu.Unlock()

	if dc != nil {
		if err := dc.Close(); err != nil {
			l.logger.Debug("Data channel close failed", "error", err)
		}
		l.mu.Lock()
		l.dcState = DataChannelClosed
		l.mu.Unlock()
	}

	if err := l.pc.Close(); err != nil {
		l.logger.Debug("Native connection close failed", "error", err)
	}

	l.router.Unsubscribe(subs.PeerKey(l.connID, l.opponentID))
	l.logger.Info("Peer link closed", "reason", reason)

	l.router.Notify(&RemovePeerConnection{
		ConnID:       l.connID,
		OpponentWsID: l.opponentID,
		Reason:       reason,
	})
}

// handleDescription applies a remote description and answers it when it is
// an offer. Answering keys off the description type rather than the original
// offerer role, because either side may renegotiate after a device change.
func (l *PeerLink) handleDescription(desc webrtc.SessionDescription) {
	l.mu.Lock()
	if l.status == StatusNew {
		l.status = StatusNegotiating
	}
	l.mu.Unlock()

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		l.negotiationFailed("set remote description", err)
		return
	}

	l.mu.Lock()
	held := l.earlyCands
	l.earlyCands = nil
	l.mu.Unlock()
	for _, cand := range held {
		if err := l.pc.AddICECandidate(cand); err != nil {
			l.negotiationFailed("add held ice candidate", err)
		}
	}

	if desc.Type != webrtc.SDPTypeOffer {
		return
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		l.negotiationFailed("create answer", err)
		return
	}

	// Same contract as CreateOffer: the unmodified answer goes to the
	// native side, the capped copy goes on the wire.
	if err := l.pc.SetLocalDescription(answer); err != nil {
		l.negotiationFailed("set local description", err)
		return
	}

	wire, err := withBandwidthCap(answer, l.bandwidth)
	if err != nil {
		l.negotiationFailed("cap bandwidth", err)
		return
	}

	if err := l.sig.SendDescription(l.connID, l.opponentID, wire); err != nil {
		l.logger.Error("Failed to send answer", "error", err)
	}
}

// markConnected promotes the link and flushes the pending outbound queue in
// submission order, exactly once.
func (l *PeerLink) markConnected() {
	l.mu.Lock()
	if !l.status.CanTransitionTo(StatusConnected) {
		l.mu.Unlock()
		return
	}
	l.status = StatusConnected
	queued := l.pending
	l.pending = nil
	dc := l.dc
	onConnected := l.onConnected
	l.mu.Unlock()

	l.logger.Info("Peer link connected", "queued", len(queued))

	if dc != nil {
		for _, data := range queued {
			if err := dc.Send(data); err != nil {
				l.logger.Error("Failed to flush queued payload", "error", err)
			}
		}
	}

	if onConnected != nil {
		onConnected()
	}
}

// iceDown reacts to a lost ICE connection. This is the call-termination
// signal for the opponent: the link is not recoverable, a fresh session is
// required.
func (l *PeerLink) iceDown(reason string) {
	l.mu.Lock()
	closed := l.status == StatusClosed
	l.mu.Unlock()
	if closed {
		return
	}
	if l.onICEDisconnect != nil {
		l.onICEDisconnect(reason)
		return
	}
	l.Close(reason)
}

func (l *PeerLink) adoptDataChannel(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.dcState = DataChannelConnecting
	l.mu.Unlock()

	dc.OnOpen(func() {
		l.mu.Lock()
		l.dcState = DataChannelOpen
		onOpen := l.onChannelOpen
		l.mu.Unlock()

		if l.connectOn == ConnectOnDataChannel {
			l.markConnected()
		}
		if onOpen != nil {
			onOpen()
		}
	})

	dc.OnClose(func() {
		l.mu.Lock()
		l.dcState = DataChannelClosed
		onClose := l.onChannelClose
		l.mu.Unlock()
		if onClose != nil {
			onClose()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if l.onChannelMessage != nil {
			l.onChannelMessage(msg.Data)
		}
	})
}

func (l *PeerLink) negotiationFailed(op string, err error) {
	l.logger.Error("Negotiation step rejected", "op", op, "error", err)
	if l.onNegotiationError != nil {
		l.onNegotiationError(op, err)
	}
}
