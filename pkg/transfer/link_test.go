package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarpov/peerLink/api"
	"github.com/okarpov/peerLink/pkg/fileInfo"
	"github.com/okarpov/peerLink/pkg/subs"
	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

type loopSignaler struct {
	mu   sync.Mutex
	peer *rtc.PeerLink
}

func (s *loopSignaler) setPeer(l *rtc.PeerLink) {
	s.mu.Lock()
	s.peer = l
	s.mu.Unlock()
}

func (s *loopSignaler) target() *rtc.PeerLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *loopSignaler) SendDescription(_, _ string, desc webrtc.SessionDescription) error {
	d := desc
	go s.target().HandleRemoteSignal(&api.SignalPayload{Description: &d})
	return nil
}

func (s *loopSignaler) SendCandidate(_, _ string, cand webrtc.ICECandidateInit) error {
	c := cand
	go s.target().HandleRemoteSignal(&api.SignalPayload{Candidate: &c})
	return nil
}

func newFileLinkPair(t *testing.T) (senderSide, receiverSide *rtc.PeerLink) {
	t.Helper()
	webrtcAPI := rtc.NewWebrtcAPI()
	router := subs.NewRouter()

	toReceiver := &loopSignaler{}
	toSender := &loopSignaler{}

	senderSide, err := webrtcAPI.NewPeerLink(rtc.Config{
		ConnID: "f1", SelfWsID: "ws-2", OpponentWsID: "ws-1",
		Signaler: toReceiver, Router: router, ConnectOn: rtc.ConnectOnDataChannel,
	})
	require.NoError(t, err)

	receiverSide, err = webrtcAPI.NewPeerLink(rtc.Config{
		ConnID: "f1", SelfWsID: "ws-1", OpponentWsID: "ws-2",
		Signaler: toSender, Router: router, ConnectOn: rtc.ConnectOnDataChannel,
	})
	require.NoError(t, err)

	toReceiver.setPeer(receiverSide)
	toSender.setPeer(senderSide)

	t.Cleanup(func() {
		senderSide.Close("test done")
		receiverSide.Close("test done")
	})
	return senderSide, receiverSide
}

func TestSendAndReceiveFile(t *testing.T) {
	node := writeTempFile(t, 48*1024)
	destDir := t.TempDir()

	senderSide, receiverSide := newFileLinkPair(t)

	sender, err := NewSenderLink(senderSide, node, nil, nil, nil)
	require.NoError(t, err)

	var receiver *ReceiverLink
	receiver, err = NewReceiverLink(receiverSide, destDir, nil, nil, func(*Record) {
		go func() {
			if err := receiver.Accept(); err != nil {
				t.Errorf("accept failed: %v", err)
			}
		}()
	})
	require.NoError(t, err)

	require.NoError(t, senderSide.CreateDataChannel("file"))
	require.NoError(t, senderSide.CreateOffer())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, sender.Offer(ctx, nil))
	require.NoError(t, sender.Transfer(ctx))
	require.NoError(t, receiver.Wait(ctx))

	st, _ := sender.Record().StatusOf("ws-1")
	assert.Equal(t, StatusFinished, st)
	st, _ = receiver.Record().StatusOf("ws-2")
	assert.Equal(t, StatusFinished, st)

	got, err := os.ReadFile(filepath.Join(destDir, node.Name))
	require.NoError(t, err)
	want, err := os.ReadFile(node.Path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDeclinedOffer(t *testing.T) {
	node := writeTempFile(t, 4*1024)
	destDir := t.TempDir()

	senderSide, receiverSide := newFileLinkPair(t)

	sender, err := NewSenderLink(senderSide, node, nil, nil, nil)
	require.NoError(t, err)

	var receiver *ReceiverLink
	receiver, err = NewReceiverLink(receiverSide, destDir, nil, nil, func(*Record) {
		go func() {
			if err := receiver.Decline("busy"); err != nil {
				t.Errorf("decline failed: %v", err)
			}
		}()
	})
	require.NoError(t, err)

	require.NoError(t, senderSide.CreateDataChannel("file"))
	require.NoError(t, senderSide.CreateOffer())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	assert.ErrorIs(t, sender.Offer(ctx, nil), ErrDeclined)
	assert.ErrorIs(t, sender.Transfer(ctx), ErrNotInProgress)

	st, _ := sender.Record().StatusOf("ws-1")
	assert.Equal(t, StatusDeclinedByOpponent, st)
	st, _ = receiver.Record().StatusOf("ws-2")
	assert.Equal(t, StatusDeclinedByYou, st)
}

type idleSignaler struct{}

func (idleSignaler) SendDescription(_, _ string, _ webrtc.SessionDescription) error { return nil }
func (idleSignaler) SendCandidate(_, _ string, _ webrtc.ICECandidateInit) error     { return nil }

func newIdleSenderLink(t *testing.T, connID, opponentWsID string, record *Record, node fileInfo.FileNode) *SenderLink {
	t.Helper()
	link, err := rtc.NewWebrtcAPI().NewPeerLink(rtc.Config{
		ConnID: connID, SelfWsID: "ws-9", OpponentWsID: opponentWsID,
		Signaler: idleSignaler{}, Router: subs.NewRouter(), ConnectOn: rtc.ConnectOnDataChannel,
	})
	require.NoError(t, err)
	t.Cleanup(func() { link.Close("test done") })

	sender, err := NewSenderLink(link, node, record, nil, nil)
	require.NoError(t, err)
	return sender
}

func TestSendersShareOneRecordAcrossOpponents(t *testing.T) {
	node := writeTempFile(t, 1024)
	record := NewSendingRecord(node)

	s1 := newIdleSenderLink(t, "f2", "ws-1", record, node)
	s2 := newIdleSenderLink(t, "f3", "ws-2", record, node)

	assert.Same(t, record, s1.Record())
	assert.Same(t, record, s2.Record())

	// Both opponents live in the one record, and the whole send only counts
	// as settled when every one of them reached an outcome.
	_, ok := record.StatusOf("ws-1")
	assert.True(t, ok)
	_, ok = record.StatusOf("ws-2")
	assert.True(t, ok)
	assert.False(t, record.AllTerminal())

	require.NoError(t, record.SetStatus("ws-1", StatusInProgress))
	require.NoError(t, record.SetStatus("ws-1", StatusFinished))
	assert.False(t, record.AllTerminal())

	require.NoError(t, record.SetStatus("ws-2", StatusDeclinedByOpponent))
	assert.True(t, record.AllTerminal())
}

func TestOfferCanceledBeforeDecisionFailsRecord(t *testing.T) {
	node := writeTempFile(t, 1024)
	sender := newIdleSenderLink(t, "f4", "ws-1", nil, node)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sender.Offer(ctx, nil), context.Canceled)
	st, ok := sender.Record().StatusOf("ws-1")
	require.True(t, ok)
	assert.Equal(t, StatusError, st, "an abandoned offer must not stay pending")
}

func TestChannelClosedMidTransferEndsInError(t *testing.T) {
	node := writeTempFile(t, 4*1024)
	destDir := t.TempDir()

	senderSide, receiverSide := newFileLinkPair(t)

	sender, err := NewSenderLink(senderSide, node, nil, nil, nil)
	require.NoError(t, err)

	var receiver *ReceiverLink
	receiver, err = NewReceiverLink(receiverSide, destDir, nil, nil, func(*Record) {
		go func() {
			if err := receiver.Accept(); err != nil {
				t.Errorf("accept failed: %v", err)
			}
		}()
	})
	require.NoError(t, err)

	require.NoError(t, senderSide.CreateDataChannel("file"))
	require.NoError(t, senderSide.CreateOffer())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, sender.Offer(ctx, nil))

	// The opponent vanishes while the transfer is accepted but unfinished.
	senderSide.Close("opponent gone")

	require.Eventually(t, func() bool {
		st, ok := receiver.Record().StatusOf("ws-2")
		return ok && st == StatusError
	}, 20*time.Second, 50*time.Millisecond, "record must not stay in_progress after the channel died")

	assert.Error(t, receiver.Wait(ctx))
}
