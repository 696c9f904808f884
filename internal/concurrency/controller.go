// Package concurrency implements the process-wide Concurrency Controller:
// a single execution lock that serializes command execution with
// timeout-bounded acquisition, an early-release path for deferred actions,
// and a bounded re-acquire for the deferred click callback. It is
// deliberately independent of intent.IntentLock; callers that need both
// must acquire the execution lock first to respect the documented
// lock-ordering discipline.
package concurrency

import (
	"context"
	"time"
)

// ExecutionLock is a single-holder, timeout-acquirable lock guarding
// command execution.
type ExecutionLock struct {
	ch chan struct{}
}

// NewExecutionLock returns a ready-to-use, initially-unlocked
// ExecutionLock.
func NewExecutionLock() *ExecutionLock {
	l := &ExecutionLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// TryAcquire blocks until the lock is free, ctx is done, or timeout
// elapses, whichever comes first.
func (l *ExecutionLock) TryAcquire(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release returns the lock to the free state.
func (l *ExecutionLock) Release() {
	select {
	case l.ch <- struct{}{}:
	default:
		panic("concurrency: Release called without a held lock")
	}
}

// Guard wraps one acquisition of the execution lock with a local
// `acquired` boolean so Release is called exactly once regardless of how
// the guarded call returns: normal completion, an early release (deferred
// WAITING), or a panic that unwinds through the caller holding the Guard.
type Guard struct {
	lock     *ExecutionLock
	acquired bool
}

// Acquire attempts to take the lock within timeout. The zero value of
// Guard is safe to use; ReleaseEarly and the deferred Release below are
// both safe to call multiple times.
func Acquire(ctx context.Context, lock *ExecutionLock, timeout time.Duration) (*Guard, bool) {
	if !lock.TryAcquire(ctx, timeout) {
		return nil, false
	}
	return &Guard{lock: lock, acquired: true}, true
}

// ReleaseEarly releases the lock immediately — used when a handler
// returns WAITING_FOR_USER_ACTION so a second command may proceed while
// the first waits for a click. Calling it more than once, or calling the
// deferred Release after it, is a no-op.
func (g *Guard) ReleaseEarly() {
	if g == nil || !g.acquired {
		return
	}
	g.acquired = false
	g.lock.Release()
}

// Release is the normal/guaranteed release path, invoked via `defer`
// immediately after Acquire succeeds. It is a no-op if ReleaseEarly (or a
// prior Release) already ran, which is what makes double-release
// impossible.
func (g *Guard) Release() {
	if g == nil || !g.acquired {
		return
	}
	g.acquired = false
	g.lock.Release()
}

// ReAcquire implements the deferred click callback's bounded re-acquire:
// it takes the execution lock with budget (default 15 s) so the deferred
// placement runs with exclusive access, just like any other command.
func ReAcquire(ctx context.Context, lock *ExecutionLock, budget time.Duration) (*Guard, bool) {
	return Acquire(ctx, lock, budget)
}
