// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

// Waker is the advisory readiness signal between producers and the owning
// goroutine's native idle loop. Notify is called on every enqueue and must
// never block; Drain discards accumulated readiness before a dispatch cycle
// so stale signals do not cause spurious wake-ups.
//
// The waker is advisory, not load-bearing: correctness comes from the
// channel's own blocking receive, the waker only lets an external event loop
// avoid polling. Implementations may coalesce notifications; the only
// contract is "readable while work is pending".
type Waker interface {
	Notify()
	Drain()
	Close() error
}

// NoopWaker is a Waker that does nothing. Suitable when the owning goroutine
// services the channel with blocking receives or explicit ProcessPending
// calls and no external event loop is involved.
type NoopWaker struct{}

func (NoopWaker) Notify()      {}
func (NoopWaker) Drain()       {}
func (NoopWaker) Close() error { return nil }

// FuncWaker adapts a callback into a Waker. The callback runs on the
// notifying goroutine and must not block; it is typically used in tests or
// to bridge into an in-process scheduler.
type FuncWaker struct {
	OnNotify func()
	OnDrain  func()
}

func (w *FuncWaker) Notify() {
	if w.OnNotify != nil {
		w.OnNotify()
	}
}

func (w *FuncWaker) Drain() {
	if w.OnDrain != nil {
		w.OnDrain()
	}
}

func (w *FuncWaker) Close() error { return nil }
