// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"context"
	"sync/atomic"
	"time"
)

// Payload is the unit of work handed to the embedded runtime. Ownership
// transfers to the bridge on submission.
type Payload struct {
	// Source is the program text passed to the runtime's protected-call
	// entry point.
	Source string
	// Expect is the result shape the call site wants. KindAny accepts
	// whatever the runtime produces; any other kind turns a shape mismatch
	// into a TypeMismatch error result.
	Expect Kind
}

// Request lifecycle states. A request starts pending; the producer may
// abandon it (timeout/cancellation) and the dispatcher claims it before
// execution. The two transitions race on a single CAS, so a request is
// either executed to completion or never executed at all — a timed-out
// producer can walk away without the dispatcher later writing into a
// request nobody owns.
const (
	statePending int32 = iota
	stateAbandoned
	stateExecuting
	stateDone
)

// Request is an owned unit of work: a payload, a result slot written exactly
// once by the dispatcher, and a one-shot completion.
type Request struct {
	payload Payload
	id      string

	result TypedResult
	state  atomic.Int32
	done   chan struct{}

	enqueued time.Time
}

// newRequest builds a request ready for submission.
func newRequest(p Payload, id string) *Request {
	return &Request{
		payload: p,
		id:      id,
		done:    make(chan struct{}),
	}
}

// ID returns the request identifier assigned at submission.
func (r *Request) ID() string { return r.id }

// claim attempts to take ownership for execution. It fails if the producer
// already abandoned the request, in which case the payload must not run.
func (r *Request) claim() bool {
	return r.state.CompareAndSwap(statePending, stateExecuting)
}

// abandon attempts to withdraw the request before execution starts. On
// success the dispatcher will skip it entirely. Failure means execution is
// already underway (or finished); the result will be written but the
// producer is no longer watching.
func (r *Request) abandon() bool {
	return r.state.CompareAndSwap(statePending, stateAbandoned)
}

// complete stores the result and signals the waiting producer. Must only be
// called after a successful claim.
func (r *Request) complete(res TypedResult) {
	r.result = res
	r.state.Store(stateDone)
	close(r.done)
}

// await blocks the producer until completion, bounded by a poll-and-recheck
// loop: the wait is sliced into short intervals repeated up to the deadline,
// so a wedged owning goroutine surfaces as ErrTimedOut rather than a hang.
// Context cancellation is honored between slices and abandons the request.
func (r *Request) await(ctx context.Context, interval, timeout time.Duration) (TypedResult, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-r.done:
			return r.result, nil
		case <-ctx.Done():
			r.abandon()
			select {
			case <-r.done:
				// Completion raced the cancellation; the result is valid.
				return r.result, nil
			default:
				return TypedResult{}, ctx.Err()
			}
		case <-timer.C:
		}

		if timeout > 0 && !time.Now().Before(deadline) {
			r.abandon()
			select {
			case <-r.done:
				return r.result, nil
			default:
				// The request may still be pending (now withdrawn) or mid
				// execution on a wedged owning goroutine; either way the
				// producer stops watching. The dispatcher retains its own
				// reference and completing an abandoned request is harmless.
				return TypedResult{}, ErrTimedOut
			}
		}

		slice := interval
		if timeout > 0 {
			if remain := time.Until(deadline); remain < slice {
				slice = remain
			}
		}
		timer.Reset(slice)
	}
}
