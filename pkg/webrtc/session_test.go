package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	id     string
	closed int
	reason string
}

func (l *fakeLink) OpponentID() string { return l.id }
func (l *fakeLink) Close(reason string) {
	l.closed++
	l.reason = reason
}

func TestSessionDuplicateLinkRefused(t *testing.T) {
	s := NewSession("c1", nil)

	require.True(t, s.AddLink(&fakeLink{id: "ws-1"}))
	assert.False(t, s.AddLink(&fakeLink{id: "ws-1"}))
	assert.Equal(t, 1, s.Len())

	require.True(t, s.AddLink(&fakeLink{id: "ws-2"}))
	assert.Equal(t, 2, s.Len())
}

func TestSessionTearsDownWhenLastLinkLeaves(t *testing.T) {
	var teardowns []string
	s := NewSession("c1", func(reason string) { teardowns = append(teardowns, reason) })

	s.AddLink(&fakeLink{id: "ws-1"})
	s.AddLink(&fakeLink{id: "ws-2"})

	s.RemoveLink("ws-1", "ice failed")
	assert.Empty(t, teardowns, "session with remaining links must stay up")

	s.RemoveLink("ws-2", "opponent left")
	require.Equal(t, []string{"opponent left"}, teardowns)

	// Removing an unknown opponent after teardown is a no-op.
	s.RemoveLink("ws-3", "stray")
	assert.Len(t, teardowns, 1)
}

func TestSessionHangUpClosesEveryLinkOnce(t *testing.T) {
	a := &fakeLink{id: "ws-1"}
	b := &fakeLink{id: "ws-2"}

	var teardowns int
	s := NewSession("c1", func(string) { teardowns++ })
	s.AddLink(a)
	s.AddLink(b)

	s.HangUp("hangup")
	s.HangUp("hangup")

	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, "hangup", a.reason)
	assert.Equal(t, 1, teardowns)
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.AddLink(&fakeLink{id: "ws-9"}), "torn session must refuse new links")
}

func TestSessionEmptyRemoveBeforeAnyLink(t *testing.T) {
	var teardowns int
	s := NewSession("c1", func(string) { teardowns++ })

	// A remove before any link ever attached must not tear the session down.
	s.RemoveLink("ws-1", "stray")
	assert.Zero(t, teardowns)
}
