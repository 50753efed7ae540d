package call

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarpov/peerLink/api"
	appevents "github.com/okarpov/peerLink/internal/app_events"
	callevents "github.com/okarpov/peerLink/internal/app_events/call"
	"github.com/okarpov/peerLink/pkg/subs"
	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

type fakeTrack struct {
	baseTrack
	local webrtc.TrackLocal

	mu      sync.Mutex
	stopped bool
	onStop  func()
	push    func([]int16)
}

func newFakeTrack(t *testing.T, id, kind string, shared bool) *fakeTrack {
	t.Helper()
	mime := webrtc.MimeTypeVP8
	if kind == KindAudio {
		mime = webrtc.MimeTypeOpus
	}
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime}, id, "test",
	)
	require.NoError(t, err)
	return &fakeTrack{
		baseTrack: baseTrack{id: id, kind: kind, shared: shared, enabled: true},
		local:     local,
	}
}

func (f *fakeTrack) Local() webrtc.TrackLocal { return f.local }

func (f *fakeTrack) StartSampleFeed(push func([]int16)) (func(), error) {
	f.mu.Lock()
	f.push = push
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.push = nil
		f.mu.Unlock()
	}, nil
}

func (f *fakeTrack) feed(samples []int16) {
	f.mu.Lock()
	push := f.push
	f.mu.Unlock()
	if push != nil {
		push(samples)
	}
}

func (f *fakeTrack) Stop() error {
	f.mu.Lock()
	f.stopped = true
	onStop := f.onStop
	f.mu.Unlock()
	if onStop != nil {
		onStop()
	}
	return nil
}

type fakeCapturer struct {
	t *testing.T

	mu       sync.Mutex
	captures int
	last     *Stream
}

func (c *fakeCapturer) Capture(_ context.Context, req Request) (*Stream, *CaptureError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures++

	stream := NewStream()
	if req.Mic {
		stream.Add(newFakeTrack(c.t, fmt.Sprintf("mic-%d", c.captures), KindAudio, false))
	}
	if req.Video {
		stream.Add(newFakeTrack(c.t, fmt.Sprintf("cam-%d", c.captures), KindVideo, false))
	}
	if req.Screen {
		stream.Add(newFakeTrack(c.t, fmt.Sprintf("screen-%d", c.captures), KindVideo, true))
	}
	c.last = stream
	return stream, nil
}

func (c *fakeCapturer) Devices() []DeviceInfo {
	return []DeviceInfo{{ID: "mic0", Label: "Fake Mic", Kind: KindAudio}}
}

func (c *fakeCapturer) captureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

type sentDescription struct {
	opponent string
	sdpType  webrtc.SDPType
}

type fakeControl struct {
	mu           sync.Mutex
	selfID       string
	nextConn     string
	accepted     []string
	replied      []string
	destroyed    []string
	descriptions []sentDescription
}

func (c *fakeControl) SelfID() string { return c.selfID }

func (c *fakeControl) OfferCall(_ context.Context, roomID string, _ api.SessionKind, _ *api.FileMeta) (string, error) {
	return c.nextConn, nil
}

func (c *fakeControl) ReplyCall(connID, _ string) error {
	c.mu.Lock()
	c.replied = append(c.replied, connID)
	c.mu.Unlock()
	return nil
}

func (c *fakeControl) AcceptCall(connID string) error {
	c.mu.Lock()
	c.accepted = append(c.accepted, connID)
	c.mu.Unlock()
	return nil
}

func (c *fakeControl) DeclineCall(string) error { return nil }

func (c *fakeControl) Destroy(connID string) error {
	c.mu.Lock()
	c.destroyed = append(c.destroyed, connID)
	c.mu.Unlock()
	return nil
}

func (c *fakeControl) SendDescription(_, opponentWsID string, desc webrtc.SessionDescription) error {
	c.mu.Lock()
	c.descriptions = append(c.descriptions, sentDescription{opponent: opponentWsID, sdpType: desc.Type})
	c.mu.Unlock()
	return nil
}

func (c *fakeControl) SendCandidate(_, _ string, _ webrtc.ICECandidateInit) error { return nil }

func (c *fakeControl) sentDescriptions() []sentDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentDescription(nil), c.descriptions...)
}

type recordedUI struct {
	mu   sync.Mutex
	msgs []appevents.AppUIMessage
}

func (r *recordedUI) sink(msg appevents.AppUIMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordedUI) joinedOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if joined, ok := m.(callevents.PeerJoinedMsg); ok {
			out = append(out, joined.OpponentWsID)
		}
	}
	return out
}

func newTestHandler(t *testing.T, selfID string) (*Handler, *fakeCapturer, *fakeControl, *recordedUI, *subs.Router) {
	t.Helper()
	router := subs.NewRouter()
	ctrl := &fakeControl{selfID: selfID, nextConn: "c1"}
	capturer := &fakeCapturer{t: t}
	ui := &recordedUI{}
	h := NewHandler(ctrl, router, rtc.NewWebrtcAPI(), capturer, ui.sink)
	t.Cleanup(func() { h.HangCall("test done") })
	return h, capturer, ctrl, ui, router
}

func TestTwoOpponentsShareOneCapturedStream(t *testing.T) {
	h, capturer, _, _, router := newTestHandler(t, "ws-100")
	ctx := context.Background()

	require.NoError(t, h.OfferCall(ctx, "room-1", Request{Mic: true, Video: true}))
	assert.Equal(t, 1, capturer.captureCount())
	assert.Equal(t, StatusSentOffer, h.Media().Status())

	router.Notify(&api.AcceptCall{ConnID: "c1", OpponentWsID: "ws-5"})
	router.Notify(&api.AcceptCall{ConnID: "c1", OpponentWsID: "ws-7"})

	h.mu.Lock()
	linkCount := len(h.links)
	h.mu.Unlock()
	assert.Equal(t, 2, linkCount)

	// Both opponents attach to the stream captured for the offer; no second
	// capture happens.
	assert.Equal(t, 1, capturer.captureCount())
}

func TestAcceptedPeersFlushedInOrder(t *testing.T) {
	h, _, ctrl, ui, router := newTestHandler(t, "ws-100")

	h.InitAndDisplayOffer(&api.OfferCall{ConnID: "c2", RoomID: "room-1", OpponentWsID: "ws-900"})
	assert.Equal(t, StatusReceivedOffer, h.Media().Status())
	assert.Equal(t, []string{"c2"}, ctrl.replied)

	// Acceptances arriving before local capture completes are queued, not
	// connected.
	router.Notify(&api.AcceptCall{ConnID: "c2", OpponentWsID: "ws-300"})
	router.Notify(&api.AcceptCall{ConnID: "c2", OpponentWsID: "ws-400"})
	assert.Equal(t, []string{"ws-900"}, ui.joinedOrder())

	require.NoError(t, h.DoAnswer(context.Background(), Request{Mic: true}))
	assert.Equal(t, StatusAccepted, h.Media().Status())
	assert.Equal(t, []string{"c2"}, ctrl.accepted)
	assert.Equal(t, []string{"ws-900", "ws-300", "ws-400"}, ui.joinedOrder())
}

func TestAnswererHoldsInitialOfferUntilAccepting(t *testing.T) {
	// ws-900 wins glare against ws-100, so the answering side is also the
	// offerer of the pair. Its initial offer must still wait for the
	// acceptance; before that the initiator has no link subscribed and the
	// offer would be lost.
	h, _, ctrl, _, _ := newTestHandler(t, "ws-900")

	h.InitAndDisplayOffer(&api.OfferCall{ConnID: "c2", RoomID: "room-1", OpponentWsID: "ws-100"})
	assert.Empty(t, ctrl.sentDescriptions(), "no SDP may leave before the accept")

	require.NoError(t, h.DoAnswer(context.Background(), Request{Mic: true}))

	sent := ctrl.sentDescriptions()
	require.Len(t, sent, 1)
	assert.Equal(t, "ws-100", sent[0].opponent)
	assert.Equal(t, webrtc.SDPTypeOffer, sent[0].sdpType)

	ctrl.mu.Lock()
	accepted := append([]string(nil), ctrl.accepted...)
	ctrl.mu.Unlock()
	assert.Equal(t, []string{"c2"}, accepted)
}

func TestAnswerLosingGlareSendsNoOffer(t *testing.T) {
	h, _, ctrl, _, _ := newTestHandler(t, "ws-100")

	h.InitAndDisplayOffer(&api.OfferCall{ConnID: "c2", RoomID: "room-1", OpponentWsID: "ws-900"})
	require.NoError(t, h.DoAnswer(context.Background(), Request{Mic: true}))

	// ws-900 offers for this pair; the local side only ever answers.
	assert.Empty(t, ctrl.sentDescriptions())
}

func TestSecondConcurrentOfferIsRejected(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t, "ws-100")

	h.InitAndDisplayOffer(&api.OfferCall{ConnID: "c2", RoomID: "room-1", OpponentWsID: "ws-900"})

	assert.NotPanics(t, func() {
		h.InitAndDisplayOffer(&api.OfferCall{ConnID: "c9", RoomID: "room-2", OpponentWsID: "ws-901"})
	})

	h.mu.Lock()
	connID := h.connID
	h.mu.Unlock()
	assert.Equal(t, "c2", connID, "active session must survive a second offer")

	assert.ErrorIs(t, h.OfferCall(context.Background(), "room-3", Request{Mic: true}), ErrCallActive)
}

func TestToggleLiveTrackFlipsEnabledOnly(t *testing.T) {
	h, capturer, _, _, _ := newTestHandler(t, "ws-100")
	ctx := context.Background()

	require.NoError(t, h.OfferCall(ctx, "room-1", Request{Mic: true, Video: true}))
	require.Equal(t, 1, capturer.captureCount())

	before := h.Media().Stream()
	track, ok := before.Find(KindAudio, false)
	require.True(t, ok)
	require.True(t, track.Enabled())

	require.NoError(t, h.ToggleDevice(ctx, "mic"))
	assert.False(t, track.Enabled())
	require.NoError(t, h.ToggleDevice(ctx, "mic"))
	assert.True(t, track.Enabled())

	assert.Equal(t, 1, capturer.captureCount(), "mute/unmute must not re-capture")
	assert.Same(t, before, h.Media().Stream(), "mute/unmute must not replace the stream")
}

func TestToggleMissingTrackRecaptures(t *testing.T) {
	h, capturer, _, _, _ := newTestHandler(t, "ws-100")
	ctx := context.Background()

	require.NoError(t, h.OfferCall(ctx, "room-1", Request{Mic: true}))
	require.Equal(t, 1, capturer.captureCount())

	// No live video track exists, so this is a device add.
	require.NoError(t, h.ToggleDevice(ctx, "video"))
	assert.Equal(t, 2, capturer.captureCount())

	stream := h.Media().Stream()
	_, ok := stream.Find(KindVideo, false)
	assert.True(t, ok)
}

func TestCaptureFeedsAudioMeter(t *testing.T) {
	h, _, _, ui, _ := newTestHandler(t, "ws-100")

	require.NoError(t, h.OfferCall(context.Background(), "room-1", Request{Mic: true}))

	track, ok := h.Media().Stream().Find(KindAudio, false)
	require.True(t, ok)
	mic, ok := track.(*fakeTrack)
	require.True(t, ok)

	loud := make([]int16, 480)
	for i := range loud {
		loud[i] = 12000
	}
	mic.feed(loud)

	assert.Greater(t, h.Meter().Level(), 0.0)

	ui.mu.Lock()
	var level *callevents.AudioLevelMsg
	for _, m := range ui.msgs {
		if msg, ok := m.(callevents.AudioLevelMsg); ok {
			level = &msg
			break
		}
	}
	ui.mu.Unlock()
	require.NotNil(t, level, "meter pushes must surface as level messages")
	assert.Greater(t, level.Level, 0.0)
}

func TestHangCallIsIdempotent(t *testing.T) {
	h, _, ctrl, _, _ := newTestHandler(t, "ws-100")
	ctx := context.Background()

	require.NoError(t, h.OfferCall(ctx, "room-1", Request{Mic: true}))

	h.HangCall("done")
	assert.NotPanics(t, func() { h.HangCall("done") })

	assert.Equal(t, StatusNotInited, h.Media().Status())
	ctrl.mu.Lock()
	destroyed := len(ctrl.destroyed)
	ctrl.mu.Unlock()
	assert.Equal(t, 1, destroyed, "relay session must be destroyed exactly once")
}
