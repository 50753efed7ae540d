package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord() *Record {
	return NewReceivingRecord("photo.jpg", 2048, "image/jpeg", "abc123")
}

func TestRecordLifecycle(t *testing.T) {
	r := newTestRecord()
	r.AddOpponent("ws-1")

	st, ok := r.StatusOf("ws-1")
	require.True(t, ok)
	assert.Equal(t, StatusNotDecided, st)

	require.NoError(t, r.SetStatus("ws-1", StatusInProgress))
	require.NoError(t, r.AddBytes("ws-1", 1024))
	require.NoError(t, r.AddBytes("ws-1", 1024))

	p, ok := r.ProgressOf("ws-1")
	require.True(t, ok)
	assert.Equal(t, int64(2048), p.BytesDone)
	assert.Equal(t, int64(2048), p.TotalBytes)

	require.NoError(t, r.SetStatus("ws-1", StatusFinished))
	assert.ErrorIs(t, r.SetStatus("ws-1", StatusError), ErrInvalidTransition)
}

func TestRecordRejectsInvalidMoves(t *testing.T) {
	r := newTestRecord()
	r.AddOpponent("ws-1")

	assert.ErrorIs(t, r.SetStatus("ws-1", StatusFinished), ErrInvalidTransition)
	assert.ErrorIs(t, r.SetStatus("ws-9", StatusInProgress), ErrUnknownOpponent)
	assert.ErrorIs(t, r.AddBytes("ws-1", 10), ErrNotInProgress)
	assert.ErrorIs(t, r.AddBytes("ws-9", 10), ErrUnknownOpponent)
}

func TestRecordFailSparesTerminalOutcomes(t *testing.T) {
	r := newTestRecord()
	r.AddOpponent("ws-1")
	r.AddOpponent("ws-2")

	require.NoError(t, r.SetStatus("ws-1", StatusInProgress))
	require.NoError(t, r.SetStatus("ws-1", StatusFinished))
	require.NoError(t, r.SetStatus("ws-2", StatusDeclinedByYou))

	r.Fail("ws-1")
	r.Fail("ws-2")

	st, _ := r.StatusOf("ws-1")
	assert.Equal(t, StatusFinished, st)
	st, _ = r.StatusOf("ws-2")
	assert.Equal(t, StatusDeclinedByYou, st)
}

func TestRecordFailWhileInProgress(t *testing.T) {
	r := newTestRecord()
	r.AddOpponent("ws-1")
	require.NoError(t, r.SetStatus("ws-1", StatusInProgress))

	r.Fail("ws-1")
	st, _ := r.StatusOf("ws-1")
	assert.Equal(t, StatusError, st)
}

func TestRecordListeners(t *testing.T) {
	r := newTestRecord()

	var got []Progress
	r.Subscribe(func(p Progress) { got = append(got, p) })

	r.AddOpponent("ws-1")
	require.NoError(t, r.SetStatus("ws-1", StatusInProgress))
	require.NoError(t, r.AddBytes("ws-1", 512))

	require.Len(t, got, 3)
	assert.Equal(t, StatusNotDecided, got[0].Status)
	assert.Equal(t, StatusInProgress, got[1].Status)
	assert.Equal(t, int64(512), got[2].BytesDone)
}

func TestRecordAllTerminal(t *testing.T) {
	r := newTestRecord()
	assert.False(t, r.AllTerminal(), "empty record has nothing to finish")

	r.AddOpponent("ws-1")
	r.AddOpponent("ws-2")
	assert.False(t, r.AllTerminal())

	require.NoError(t, r.SetStatus("ws-1", StatusInProgress))
	require.NoError(t, r.SetStatus("ws-1", StatusFinished))
	assert.False(t, r.AllTerminal(), "one opponent still undecided")

	require.NoError(t, r.SetStatus("ws-2", StatusDeclinedByOpponent))
	assert.True(t, r.AllTerminal())
}

func TestRecordDuplicateOpponentIsNoOp(t *testing.T) {
	r := newTestRecord()
	r.AddOpponent("ws-1")
	require.NoError(t, r.SetStatus("ws-1", StatusInProgress))

	r.AddOpponent("ws-1")
	st, _ := r.StatusOf("ws-1")
	assert.Equal(t, StatusInProgress, st, "re-adding must not reset status")
}
