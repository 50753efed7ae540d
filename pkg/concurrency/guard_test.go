package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsTask(t *testing.T) {
	guard := NewConcurrencyGuard()

	ran := false
	err := guard.Execute(func() error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, guard.Busy())
}

func TestSecondExecuteFailsFast(t *testing.T) {
	guard := NewConcurrencyGuard()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = guard.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.True(t, guard.Busy())
	err := guard.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.Eventually(t, func() bool { return !guard.Busy() }, time.Second, 10*time.Millisecond)
}

func TestGuardReleasedAfterTaskError(t *testing.T) {
	guard := NewConcurrencyGuard()

	err := guard.Execute(func() error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)

	require.NoError(t, guard.Execute(func() error { return nil }))
}
