package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "not_decided", StatusNotDecided.String())
	assert.Equal(t, "declined_by_opponent", StatusDeclinedByOpponent.String())
	assert.Equal(t, "declined_by_you", StatusDeclinedByYou.String())
	assert.Equal(t, "in_progress", StatusInProgress.String())
	assert.Equal(t, "finished", StatusFinished.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNotDecided.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusDeclinedByOpponent.IsTerminal())
	assert.True(t, StatusDeclinedByYou.IsTerminal())
	assert.True(t, StatusFinished.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusNotDecided.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusNotDecided.CanTransitionTo(StatusDeclinedByOpponent))
	assert.True(t, StatusNotDecided.CanTransitionTo(StatusDeclinedByYou))
	assert.True(t, StatusNotDecided.CanTransitionTo(StatusError))
	assert.False(t, StatusNotDecided.CanTransitionTo(StatusFinished))

	assert.True(t, StatusInProgress.CanTransitionTo(StatusFinished))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusError))
	assert.False(t, StatusInProgress.CanTransitionTo(StatusDeclinedByOpponent))

	for _, terminal := range []Status{StatusFinished, StatusError, StatusDeclinedByYou, StatusDeclinedByOpponent} {
		for next := StatusNotDecided; next <= StatusError; next++ {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}
