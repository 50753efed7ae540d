// Package concurrency provides a mutual-exclusion guard for operations that
// must never overlap, such as device capture or a running file transfer.
package concurrency

import (
	"errors"
	"sync"
)

// ErrBusy is returned when the guarded operation is already running.
var ErrBusy = errors.New("operation already in progress")

// ConcurrencyGuard serializes an operation: a second Execute while the first
// is still running fails fast with ErrBusy instead of queueing behind it.
type ConcurrencyGuard struct {
	mu   sync.Mutex
	busy bool
}

// NewConcurrencyGuard creates an idle guard.
func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{}
}

// Execute runs task unless another task is in flight. The guard is released
// when task returns, whatever its outcome.
func (g *ConcurrencyGuard) Execute(task func() error) error {
	if !g.tryAcquire() {
		return ErrBusy
	}
	defer g.release()
	return task()
}

// Busy reports whether a guarded task is currently running.
func (g *ConcurrencyGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

func (g *ConcurrencyGuard) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

func (g *ConcurrencyGuard) release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}
