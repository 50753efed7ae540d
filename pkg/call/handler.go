package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/okarpov/peerLink/api"
	appevents "github.com/okarpov/peerLink/internal/app_events"
	callevents "github.com/okarpov/peerLink/internal/app_events/call"
	"github.com/okarpov/peerLink/pkg/concurrency"
	"github.com/okarpov/peerLink/pkg/subs"
	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

// Control is the relay surface the handler drives: call-control messages
// plus the per-link signaling of rtc.Signaler. *api.RelayClient satisfies it.
type Control interface {
	SelfID() string
	OfferCall(ctx context.Context, roomID string, kind api.SessionKind, meta *api.FileMeta) (string, error)
	ReplyCall(connID, roomID string) error
	AcceptCall(connID string) error
	DeclineCall(connID string) error
	Destroy(connID string) error
	rtc.Signaler
}

// ErrCallActive is returned when a second call is started while one is
// already running.
var ErrCallActive = errors.New("a call session is already active")

// ErrNoCall is returned when an operation needs a session and none exists.
var ErrNoCall = errors.New("no active call session")

// Handler owns one call session end to end: device capture, the offer and
// answer flows, one CallLink per opponent, stream replacement and teardown.
type Handler struct {
	ctrl      Control
	router    *subs.Router
	webrtcAPI *rtc.WebrtcAPI
	capturer  Capturer
	media     *LocalMedia
	guard     *concurrency.ConcurrencyGuard
	meter     *Meter
	notify    func(appevents.AppUIMessage)
	logger    *slog.Logger

	mu            sync.Mutex
	session       *rtc.Session
	links         map[string]*CallLink
	acceptedPeers []string
	stopMeter     func()
	connID        string
	roomID        string
}

// NewHandler wires a call handler. notify may be nil when no frontend is
// attached.
func NewHandler(ctrl Control, router *subs.Router, webrtcAPI *rtc.WebrtcAPI, capturer Capturer, notify func(appevents.AppUIMessage)) *Handler {
	h := &Handler{
		ctrl:      ctrl,
		router:    router,
		webrtcAPI: webrtcAPI,
		capturer:  capturer,
		media:     NewLocalMedia(),
		guard:     concurrency.NewConcurrencyGuard(),
		notify:    notify,
		logger:    slog.Default().With("component", "callhandler"),
	}
	h.meter = NewMeter(func(level float64) {
		h.emit(callevents.AudioLevelMsg{Level: level})
	})
	return h
}

// Meter exposes the local microphone level meter.
func (h *Handler) Meter() *Meter { return h.meter }

// Media exposes the local media state for device selection and toggles.
func (h *Handler) Media() *LocalMedia { return h.media }

// Devices enumerates the capturable devices.
func (h *Handler) Devices() []DeviceInfo { return h.capturer.Devices() }

func (h *Handler) emit(msg appevents.AppUIMessage) {
	if h.notify != nil {
		h.notify(msg)
	}
}

// CaptureInput acquires local media per the current toggles and swaps it in
// as the shared stream. Only one capture runs at a time. Partial failures
// are surfaced but do not abort the capture; a fully failed capture does.
func (h *Handler) CaptureInput(ctx context.Context) error {
	req := h.media.Toggles()
	if req.Empty() {
		h.media.Replace(NewStream())
		h.resetMeterFeed()
		return nil
	}

	return h.guard.Execute(func() error {
		stream, capErr := h.capturer.Capture(ctx, req)
		if stream == nil {
			if capErr.IsEmpty() {
				return errors.New("capture produced no stream")
			}
			return capErr
		}
		if !capErr.IsEmpty() {
			h.logger.Warn("Capture partially failed", "error", capErr.Error())
			h.emit(appevents.AppErrorMsg{Err: capErr})
		}
		h.media.Replace(stream)
		h.resetMeterFeed()
		return nil
	})
}

// resetMeterFeed repoints the volume meter at the current stream's microphone
// track. Tracks that cannot hand out raw samples leave the meter idle.
func (h *Handler) resetMeterFeed() {
	h.stopMeterFeed()

	stream := h.media.Stream()
	if stream == nil {
		return
	}
	track, ok := stream.Find(KindAudio, false)
	if !ok {
		return
	}
	source, ok := track.(SampleSource)
	if !ok {
		return
	}
	stop, err := source.StartSampleFeed(h.meter.Push)
	if err != nil {
		h.logger.Warn("Audio meter feed unavailable", "error", err)
		return
	}
	h.mu.Lock()
	h.stopMeter = stop
	h.mu.Unlock()
}

func (h *Handler) stopMeterFeed() {
	h.mu.Lock()
	stop := h.stopMeter
	h.stopMeter = nil
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// OfferCall starts a new call: capture, obtain a connection id from the
// relay and subscribe the session-scoped handler under it.
func (h *Handler) OfferCall(ctx context.Context, roomID string, toggles Request) error {
	h.mu.Lock()
	if h.session != nil {
		h.mu.Unlock()
		return ErrCallActive
	}
	h.mu.Unlock()

	h.media.SetToggles(toggles.Mic, toggles.Video, toggles.Screen)
	h.media.SelectDevices(toggles.MicID, "", toggles.WebcamID)
	if err := h.CaptureInput(ctx); err != nil {
		return err
	}

	connID, err := h.ctrl.OfferCall(ctx, roomID, api.KindCall, nil)
	if err != nil {
		return err
	}
	if err := h.attachSession(connID, roomID); err != nil {
		return err
	}

	h.media.SetStatus(StatusSentOffer)
	h.logger.Info("Call offered", "roomId", roomID, "connId", connID)
	return nil
}

// InitAndDisplayOffer reacts to an incoming call offer: it records the
// session, tells the relay it is replying, surfaces the incoming-call model
// and immediately creates the peer link for the offering opponent. A second
// concurrent offer is rejected with a log line, never a panic.
func (h *Handler) InitAndDisplayOffer(offer *api.OfferCall) {
	h.mu.Lock()
	if h.session != nil {
		h.mu.Unlock()
		h.logger.Error("Rejecting offer, session already active",
			"connId", offer.ConnID, "activeConnId", h.connID)
		return
	}
	h.mu.Unlock()

	if err := h.attachSession(offer.ConnID, offer.RoomID); err != nil {
		h.logger.Error("Failed to attach session for offer", "error", err)
		return
	}
	h.media.SetStatus(StatusReceivedOffer)

	if err := h.ctrl.ReplyCall(offer.ConnID, offer.RoomID); err != nil {
		h.logger.Error("Failed to send reply", "error", err)
	}
	h.connectTo(offer.OpponentWsID)

	h.emit(callevents.IncomingCallMsg{ConnID: offer.ConnID, RoomID: offer.RoomID})
}

// DoAnswer accepts the incoming call: capture media, notify the relay and
// connect every acceptance queued while capture was pending, in queue order.
func (h *Handler) DoAnswer(ctx context.Context, toggles Request) error {
	h.mu.Lock()
	if h.session == nil {
		h.mu.Unlock()
		return ErrNoCall
	}
	connID := h.connID
	h.mu.Unlock()

	if h.media.Status() != StatusReceivedOffer {
		return ErrNoCall
	}

	h.media.SetToggles(toggles.Mic, toggles.Video, toggles.Screen)
	h.media.SelectDevices(toggles.MicID, "", toggles.WebcamID)
	if err := h.CaptureInput(ctx); err != nil {
		return err
	}
	h.media.SetStatus(StatusAccepted)

	if err := h.ctrl.AcceptCall(connID); err != nil {
		return err
	}

	h.mu.Lock()
	queued := h.acceptedPeers
	h.acceptedPeers = nil
	links := make([]*CallLink, 0, len(h.links))
	for _, link := range h.links {
		links = append(links, link)
	}
	h.mu.Unlock()

	// Links created while the offer was on display attached the captured
	// stream without offering. Now that the acceptance is on the wire the
	// remote side is subscribed, so the offerer legs among them start
	// negotiation.
	for _, link := range links {
		if link.Link().IsOfferer() && link.Link().Status() == rtc.StatusNew {
			if err := link.Negotiate(); err != nil {
				h.logger.Error("Initial offer after accept failed",
					"opponentWsId", link.OpponentID(), "error", err)
			}
		}
	}

	for _, opponent := range queued {
		h.connectTo(opponent)
	}
	return nil
}

// OnAcceptReply reacts to an opponent's acceptance. An initiator with its
// stream ready connects the opponent straight away; a side still answering
// queues the acceptance until its own capture completes.
func (h *Handler) OnAcceptReply(msg *api.AcceptCall) {
	if h.media.Status() == StatusReceivedOffer {
		h.mu.Lock()
		h.acceptedPeers = append(h.acceptedPeers, msg.OpponentWsID)
		h.mu.Unlock()
		h.logger.Info("Queued acceptance until local capture completes",
			"opponentWsId", msg.OpponentWsID)
		return
	}
	h.connectTo(msg.OpponentWsID)
}

// ToggleDevice flips one input. A live track just flips its enabled flag;
// with no such track this is a device add, which means a full re-capture and
// renegotiation with every opponent.
func (h *Handler) ToggleDevice(ctx context.Context, device string) error {
	req := h.media.Toggles()
	var kind string
	var shared, nowOn bool
	switch device {
	case "mic":
		req.Mic = !req.Mic
		kind, shared, nowOn = KindAudio, false, req.Mic
	case "video":
		req.Video = !req.Video
		kind, shared, nowOn = KindVideo, false, req.Video
	case "screen":
		req.Screen = !req.Screen
		kind, shared, nowOn = KindVideo, true, req.Screen
	default:
		return errors.New("unknown device: " + device)
	}
	h.media.SetToggles(req.Mic, req.Video, req.Screen)

	if stream := h.media.Stream(); stream != nil {
		if t, ok := stream.Find(kind, shared); ok {
			t.SetEnabled(nowOn)
			return nil
		}
	}
	if !nowOn {
		// Toggled off an input that has no live track; nothing to do.
		return nil
	}
	return h.UpdateConnection(ctx)
}

// UpdateConnection re-captures per the current toggles; replacing the shared
// stream notifies every link, which reattaches and renegotiates.
func (h *Handler) UpdateConnection(ctx context.Context) error {
	return h.CaptureInput(ctx)
}

// HangCall ends the session. Idempotent: with no session it only clears
// local media state.
func (h *Handler) HangCall(reason string) {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()

	if session == nil {
		h.media.Clear()
		return
	}
	session.HangUp(reason)
}

// HandleMessage implements subs.Handler for the session-scoped key. Replies,
// acceptances, refusals and link-removal notices all arrive here.
func (h *Handler) HandleMessage(msg subs.Message) {
	switch m := msg.(type) {
	case *api.ReplyCall:
		h.logger.Info("Opponent replying", "opponentWsId", m.OpponentWsID)
	case *api.AcceptCall:
		h.OnAcceptReply(m)
	case *api.DeclineCall:
		h.logger.Info("Opponent declined", "opponentWsId", m.OpponentWsID)
		h.removePeer(m.OpponentWsID, "declined")
	case *rtc.RemovePeerConnection:
		h.removePeer(m.OpponentWsID, m.Reason)
	default:
		h.logger.Warn("Unhandled session message", "type", msg.RouterKey())
	}
}

func (h *Handler) attachSession(connID, roomID string) error {
	session := rtc.NewSession(connID, func(reason string) { h.onTeardown(reason) })
	if err := h.router.Subscribe(subs.SessionKey(connID), h); err != nil {
		return err
	}

	h.mu.Lock()
	h.session = session
	h.links = make(map[string]*CallLink)
	h.connID = connID
	h.roomID = roomID
	h.mu.Unlock()
	return nil
}

func (h *Handler) connectTo(opponentWsID string) {
	h.mu.Lock()
	if h.session == nil {
		h.mu.Unlock()
		h.logger.Error("Cannot connect peer without a session", "opponentWsId", opponentWsID)
		return
	}
	if _, exists := h.links[opponentWsID]; exists {
		h.mu.Unlock()
		return
	}
	connID := h.connID
	session := h.session
	h.mu.Unlock()

	link, err := NewCallLink(h.webrtcAPI, rtc.Config{
		ConnID:       connID,
		OpponentWsID: opponentWsID,
		SelfWsID:     h.ctrl.SelfID(),
		Signaler:     h.ctrl,
		Router:       h.router,
	})
	if err != nil {
		h.logger.Error("Failed to create call link", "opponentWsId", opponentWsID, "error", err)
		return
	}

	h.mu.Lock()
	h.links[opponentWsID] = link
	h.mu.Unlock()
	if !session.AddLink(link) {
		link.Close("duplicate link")
		return
	}

	h.media.AddConsumer(link)
	if stream := h.media.Stream(); stream != nil {
		if err := link.AttachStream(stream); err != nil {
			h.logger.Error("Failed to attach stream", "opponentWsId", opponentWsID, "error", err)
		}
	}
	// While the offer is still on display the opponent has not subscribed
	// its link yet; the initial offer for that leg goes out in DoAnswer,
	// after the acceptance.
	if link.Link().IsOfferer() && h.media.Status() != StatusReceivedOffer {
		if err := link.Negotiate(); err != nil {
			h.logger.Error("Failed to send offer", "opponentWsId", opponentWsID, "error", err)
		}
	}

	h.emit(callevents.PeerJoinedMsg{OpponentWsID: opponentWsID})
}

func (h *Handler) removePeer(opponentWsID, reason string) {
	h.mu.Lock()
	link, ok := h.links[opponentWsID]
	if ok {
		delete(h.links, opponentWsID)
	}
	session := h.session
	h.mu.Unlock()

	if !ok || session == nil {
		return
	}
	h.media.RemoveConsumer(link)
	session.RemoveLink(opponentWsID, reason)
	h.emit(callevents.PeerLeftMsg{OpponentWsID: opponentWsID, Reason: reason})
}

func (h *Handler) onTeardown(reason string) {
	h.mu.Lock()
	connID := h.connID
	h.session = nil
	h.links = nil
	h.acceptedPeers = nil
	h.connID = ""
	h.roomID = ""
	h.mu.Unlock()

	if connID != "" {
		h.router.Unsubscribe(subs.SessionKey(connID))
		if err := h.ctrl.Destroy(connID); err != nil {
			h.logger.Warn("Failed to destroy relay session", "error", err)
		}
	}
	h.stopMeterFeed()
	h.media.Clear()
	h.logger.Info("Call ended", "reason", reason)
	h.emit(callevents.CallEndedMsg{Reason: reason})
}
