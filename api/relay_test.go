package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarpov/peerLink/pkg/subs"
)

var upgrader = websocket.Upgrader{}

// fakeRelay runs a one-connection relay: it acks offers with a fixed
// connection id and pushes every frame from pushCh to the client.
func fakeRelay(t *testing.T, connID string, pushCh <-chan frame) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		go func() {
			for f := range pushCh {
				if err := conn.WriteJSON(f); err != nil {
					return
				}
			}
		}()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Action == actionOffer {
				ack := frame{Action: actionSetConnectionID, MessageID: f.MessageID, ConnID: connID}
				if err := conn.WriteJSON(ack); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func dialTestClient(t *testing.T, server *httptest.Server, router *subs.Router, onOffer func(*OfferCall)) *RelayClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client, err := Dial(ctx, wsURL(server), "user-42", router, onOffer)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	go client.Run(ctx)
	return client
}

func TestOfferCallReturnsAssignedConnectionID(t *testing.T) {
	push := make(chan frame)
	defer close(push)
	server := fakeRelay(t, "conn-77", push)
	defer server.Close()

	client := dialTestClient(t, server, subs.NewRouter(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connID, err := client.OfferCall(ctx, "room-1", KindCall, nil)
	require.NoError(t, err)
	assert.Equal(t, "conn-77", connID)
}

func TestInboundSignalReachesPairSubscriber(t *testing.T) {
	push := make(chan frame)
	defer close(push)
	server := fakeRelay(t, "conn-77", push)
	defer server.Close()

	router := subs.NewRouter()
	got := make(chan *RTCSignal, 1)
	require.NoError(t, router.Subscribe(subs.PeerKey("conn-77", "op-3"), subs.HandlerFunc(func(msg subs.Message) {
		if sig, ok := msg.(*RTCSignal); ok {
			got <- sig
		}
	})))

	dialTestClient(t, server, router, nil)

	candidate := "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host"
	push <- frame{
		Action:       actionSignal,
		ConnID:       "conn-77",
		OpponentWsID: "op-3",
		Content:      &SignalPayload{Candidate: &webrtc.ICECandidateInit{Candidate: candidate}},
	}

	select {
	case sig := <-got:
		require.NotNil(t, sig.Content.Candidate)
		assert.Equal(t, candidate, sig.Content.Candidate.Candidate)
	case <-time.After(5 * time.Second):
		t.Fatal("signal never reached the pair subscriber")
	}
}

func TestIncomingOfferHitsCallback(t *testing.T) {
	push := make(chan frame)
	defer close(push)
	server := fakeRelay(t, "conn-77", push)
	defer server.Close()

	got := make(chan *OfferCall, 1)
	dialTestClient(t, server, subs.NewRouter(), func(o *OfferCall) { got <- o })

	push <- frame{
		Action:       actionOffer,
		ConnID:       "conn-88",
		RoomID:       "room-1",
		UserID:       "user-7",
		OpponentWsID: "op-7",
		Kind:         KindFile,
		Meta:         &FileMeta{Name: "report.pdf", Size: 1024},
	}

	select {
	case offer := <-got:
		assert.Equal(t, "conn-88", offer.ConnID)
		assert.Equal(t, KindFile, offer.Kind)
		require.NotNil(t, offer.Meta)
		assert.Equal(t, "report.pdf", offer.Meta.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("offer never reached the callback")
	}
}

func TestMalformedFrameDoesNotKillTheReadLoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		require.NoError(t, conn.WriteJSON(frame{Action: actionAccept, ConnID: "c1", OpponentWsID: "op-1"}))
		// Hold the connection open until the client is done.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	router := subs.NewRouter()
	got := make(chan subs.Message, 1)
	require.NoError(t, router.Subscribe(subs.SessionKey("c1"), subs.HandlerFunc(func(msg subs.Message) { got <- msg })))

	dialTestClient(t, server, router, nil)

	select {
	case msg := <-got:
		accept, ok := msg.(*AcceptCall)
		require.True(t, ok)
		assert.Equal(t, "op-1", accept.OpponentWsID)
	case <-time.After(5 * time.Second):
		t.Fatal("frame after the malformed one was never delivered")
	}
}
